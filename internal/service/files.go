package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cortexai/opsinsight/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFile is returned for extensions the pipeline cannot read.
var ErrUnsupportedFile = errors.New("unsupported file type")

// FileKind separates spreadsheet-like uploads from free text.
type FileKind string

const (
	FileTabular FileKind = "tabular"
	FileText    FileKind = "text"
)

const maxTextRunes = 20000

// File is an uploaded file already read into memory.
type File struct {
	Path  string
	Name  string
	Kind  FileKind
	Table *models.Table // FileTabular
	Text  string        // FileText

	// TotalRows counts every data row in a tabular file, including rows
	// beyond the load cap.
	TotalRows int
}

// FileProvider returns the file the current question refers to, if any.
type FileProvider interface {
	Current(ctx context.Context) (*File, bool)
}

// StaticFile serves a file loaded up front, e.g. from a CLI flag.
type StaticFile struct {
	File *File
}

func (s StaticFile) Current(context.Context) (*File, bool) {
	return s.File, s.File != nil
}

// DirFileProvider serves the most recently modified supported file in an
// upload directory.
type DirFileProvider struct {
	dir     string
	maxRows int
}

func NewDirFileProvider(dir string, maxRows int) *DirFileProvider {
	return &DirFileProvider{dir: dir, maxRows: maxRows}
}

func (p *DirFileProvider) Current(context.Context) (*File, bool) {
	if p.dir == "" {
		return nil, false
	}
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", p.dir).Msg("cannot list upload directory")
		return nil, false
	}

	var newest string
	var newestMod int64
	for _, e := range entries {
		if e.IsDir() || !supported(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest, newestMod = e.Name(), mod
		}
	}
	if newest == "" {
		return nil, false
	}

	f, err := LoadFile(filepath.Join(p.dir, newest), p.maxRows)
	if err != nil {
		log.Warn().Err(err).Str("file", newest).Msg("cannot read uploaded file")
		return nil, false
	}
	return f, true
}

var (
	tabularExt = map[string]bool{".xlsx": true, ".xlsm": true, ".csv": true}
	textExt    = map[string]bool{".txt": true, ".md": true, ".log": true, ".json": true}
)

func supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return tabularExt[ext] || textExt[ext]
}

// LoadFile reads a spreadsheet, CSV or text file. Tabular files use their
// first row as the header; maxRows caps data rows (0 = unlimited).
func LoadFile(path string, maxRows int) (*File, error) {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))

	var (
		table *models.Table
		total int
		err   error
	)
	switch {
	case ext == ".csv":
		table, total, err = readCSV(path, maxRows)
	case tabularExt[ext]:
		table, total, err = readWorkbook(path, maxRows)
	case textExt[ext]:
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("read %s: %w", name, rerr)
		}
		text := []rune(string(data))
		if len(text) > maxTextRunes {
			text = text[:maxTextRunes]
		}
		return &File{Path: path, Name: name, Kind: FileText, Text: string(text)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return &File{Path: path, Name: name, Kind: FileTabular, Table: table, TotalRows: total}, nil
}

func readWorkbook(path string, maxRows int) (*models.Table, int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, 0, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, 0, fmt.Errorf("sheet %q: %w", sheets[0], err)
	}
	t, total := toTable(rows, maxRows)
	return t, total, nil
}

func readCSV(path string, maxRows int) (*models.Table, int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, 0, err
	}
	t, total := toTable(records, maxRows)
	return t, total, nil
}

// toTable treats the first row as the header and pads ragged rows. It also
// returns the number of non-blank data rows seen.
func toTable(records [][]string, maxRows int) (*models.Table, int) {
	t := &models.Table{Rows: [][]any{}}
	if len(records) == 0 {
		return t, 0
	}
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		t.Columns = append(t.Columns, h)
	}
	total := 0
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		total++
		if maxRows > 0 && len(t.Rows) >= maxRows {
			continue
		}
		row := make([]any, len(t.Columns))
		for i := range row {
			if i < len(rec) {
				row[i] = rec[i]
			} else {
				row[i] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, total
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

package chart

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cortexai/opsinsight/internal/models"
	"github.com/rs/zerolog/log"
)

// Synthesize builds one Spec per usable plan entry, in plan order. statements
// lists statement names in plan order so entries can refer to results by
// position. Entries that cannot be drawn are skipped and logged.
func Synthesize(plan []PlanEntry, statements []string, results models.ResultSet) []Spec {
	specs := make([]Spec, 0, len(plan))
	for i, entry := range plan {
		table, ok := resolve(entry.Source, statements, results)
		if !ok {
			log.Debug().Int("entry", i).Str("source", entry.Source.String()).Msg("chart skipped: no result")
			continue
		}
		spec, err := build(entry, table)
		if err != nil {
			log.Warn().Int("entry", i).Str("title", entry.Title).Err(err).Msg("chart skipped")
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}

func resolve(ref SourceRef, statements []string, results models.ResultSet) (*models.Table, bool) {
	name := ref.Name
	if ref.ByPos {
		if ref.Index < 0 || ref.Index >= len(statements) {
			return nil, false
		}
		name = statements[ref.Index]
	} else if _, ok := results[name]; !ok {
		if i, err := strconv.Atoi(name); err == nil && i >= 0 && i < len(statements) {
			name = statements[i]
		}
	}
	t, ok := results[name]
	if !ok || t.Empty() {
		return nil, false
	}
	return t, true
}

func build(e PlanEntry, t *models.Table) (Spec, error) {
	typ := Type(strings.ToLower(string(e.Type)))
	if !typ.Valid() {
		return Spec{}, fmt.Errorf("unsupported chart type %q", e.Type)
	}
	spec := Spec{
		Type:  typ,
		Title: strings.TrimSpace(e.Title),
		Style: Style{XLabel: e.XLabel, YLabel: e.YLabel, ShowLegend: true},
	}
	if spec.Title == "" {
		spec.Title = strings.TrimSpace(e.YField + " by " + e.XField)
	}

	var err error
	switch typ {
	case Mixed:
		err = buildMixed(&spec, e, t)
	case Scatter:
		err = buildScatter(&spec, e, t)
	default:
		err = buildSingle(&spec, e, t)
	}
	return spec, err
}

// columns resolves every named field or reports the first missing one.
func columns(t *models.Table, fields ...string) ([]int, error) {
	idx := make([]int, len(fields))
	for i, f := range fields {
		if f == "" {
			return nil, fmt.Errorf("missing field mapping")
		}
		if idx[i] = t.ColumnIndex(f); idx[i] < 0 {
			return nil, fmt.Errorf("field %q not in result columns %v", f, t.Columns)
		}
	}
	return idx, nil
}

// aggregate sums each value column per distinct label, keeping first-seen order.
func aggregate(t *models.Table, labelCol int, valueCols ...int) ([]string, [][]float64) {
	pos := make(map[string]int)
	var labels []string
	sums := make([][]float64, len(valueCols))
	for _, row := range t.Rows {
		label := Label(cell(row, labelCol))
		i, seen := pos[label]
		if !seen {
			i = len(labels)
			pos[label] = i
			labels = append(labels, label)
			for s := range sums {
				sums[s] = append(sums[s], 0)
			}
		}
		for s, c := range valueCols {
			if v, ok := Number(cell(row, c)); ok {
				sums[s][i] += v
			}
		}
	}
	return labels, sums
}

func buildSingle(spec *Spec, e PlanEntry, t *models.Table) error {
	idx, err := columns(t, e.XField, e.YField)
	if err != nil {
		return err
	}
	labels, sums := aggregate(t, idx[0], idx[1])
	palette := Palette(len(labels))

	series := Series{Label: firstNonEmpty(e.YLabel, e.YField), Values: sums[0]}
	switch spec.Type {
	case Line:
		series.BorderColor = []string{lineStroke}
		series.BackgroundColor = []string{lineFill}
		series.Fill = true
	case Bar:
		series.BackgroundColor = palette
		series.BorderColor = opaque(palette)
	default:
		series.BackgroundColor = palette
	}

	spec.Data = Data{Labels: labels, Series: []Series{series}}
	return nil
}

func buildMixed(spec *Spec, e PlanEntry, t *models.Table) error {
	idx, err := columns(t, e.XField, e.YField, e.Y2Field)
	if err != nil {
		return err
	}
	labels, sums := aggregate(t, idx[0], idx[1], idx[2])

	colors := defaultMixedColors
	if len(e.Colors) >= 2 {
		colors = [2]string{e.Colors[0], e.Colors[1]}
	}

	spec.Style.Y2Label = e.Y2Field
	spec.Data = Data{
		Labels: labels,
		Series: []Series{
			{
				Label:           e.YField,
				Type:            Bar,
				Values:          sums[0],
				BackgroundColor: []string{colors[0]},
				YAxisID:         "y",
				Order:           1,
			},
			{
				Label:       e.Y2Field,
				Type:        Line,
				Values:      sums[1],
				BorderColor: []string{colors[1]},
				YAxisID:     "y1",
				Order:       0,
			},
		},
	}
	return nil
}

func buildScatter(spec *Spec, e PlanEntry, t *models.Table) error {
	idx, err := columns(t, e.XField, e.YField)
	if err != nil {
		return err
	}
	colorCol, sizeCol := -1, -1
	if e.ColorField != "" {
		if colorCol = t.ColumnIndex(e.ColorField); colorCol < 0 {
			return fmt.Errorf("color field %q not in result columns", e.ColorField)
		}
	}
	if e.SizeField != "" {
		if sizeCol = t.ColumnIndex(e.SizeField); sizeCol < 0 {
			return fmt.Errorf("size field %q not in result columns", e.SizeField)
		}
	}

	pos := make(map[string]int)
	var groups []Series
	for _, row := range t.Rows {
		x, okX := Number(cell(row, idx[0]))
		y, okY := Number(cell(row, idx[1]))
		if !okX || !okY {
			continue
		}
		r := defaultRadius
		if sizeCol >= 0 {
			if s, ok := Number(cell(row, sizeCol)); ok {
				r = s / 100
			}
		}

		group := firstNonEmpty(e.YLabel, e.YField)
		if colorCol >= 0 {
			group = Label(cell(row, colorCol))
		}
		i, seen := pos[group]
		if !seen {
			i = len(groups)
			pos[group] = i
			groups = append(groups, Series{Label: group})
		}
		groups[i].Points = append(groups[i].Points, Point{X: x, Y: y, R: r})
	}
	if len(groups) == 0 {
		return fmt.Errorf("no numeric points")
	}

	for i, c := range Palette(len(groups)) {
		groups[i].BackgroundColor = []string{c}
	}
	spec.Data = Data{Series: groups}
	return nil
}

func cell(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Number converts a result cell to a finite float64. Strings may carry
// thousands separators or a trailing percent sign.
func Number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, finite(x)
	case float32:
		return float64(x), finite(float64(x))
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil && finite(f)
	case []byte:
		return Number(string(x))
	case string:
		s := strings.TrimSuffix(strings.ReplaceAll(strings.TrimSpace(x), ",", ""), "%")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil && finite(f)
	case fmt.Stringer:
		return Number(x.String())
	default:
		return 0, false
	}
}

// Label renders a result cell as a category label.
func Label(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

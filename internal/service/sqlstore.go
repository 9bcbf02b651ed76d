package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cortexai/opsinsight/internal/models"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLStore reaches a database through database/sql. Each Open creates a fresh
// handle pinned to a single connection; nothing is pooled across batches.
type SQLStore struct {
	driver  string
	maxRows int
	open    func() (*sql.DB, error)
}

// NewSQLStore supports the pgx, mysql and sqlite drivers.
func NewSQLStore(driver, dsn string, maxRows int) (*SQLStore, error) {
	switch driver {
	case "pgx", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("store dsn is required for driver %q", driver)
	}
	return &SQLStore{
		driver:  driver,
		maxRows: maxRows,
		open:    func() (*sql.DB, error) { return sql.Open(driver, dsn) },
	}, nil
}

// NewSQLStoreWithOpener uses open to obtain the handle, which lets tests hand
// in a mocked or in-memory database.
func NewSQLStoreWithOpener(dialect string, maxRows int, open func() (*sql.DB, error)) *SQLStore {
	return &SQLStore{driver: dialect, maxRows: maxRows, open: open}
}

func (s *SQLStore) Dialect() string {
	switch s.driver {
	case "pgx":
		return "postgres"
	default:
		return s.driver
	}
}

// Open implements Store
func (s *SQLStore) Open(ctx context.Context) (Conn, error) {
	db, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.driver, err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", s.driver, err)
	}
	return &sqlConn{db: db, conn: conn, maxRows: s.maxRows}, nil
}

type sqlConn struct {
	db      *sql.DB
	conn    *sql.Conn
	maxRows int
}

func (c *sqlConn) Query(ctx context.Context, query string) (*models.Table, error) {
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	table := &models.Table{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if c.maxRows > 0 && len(table.Rows) >= c.maxRows {
			log.Warn().Int("max_rows", c.maxRows).Msg("result truncated")
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i := range vals {
			vals[i] = normalizeValue(vals[i])
		}
		table.Rows = append(table.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return table, nil
}

func (c *sqlConn) Close() error {
	cerr := c.conn.Close()
	if err := c.db.Close(); err != nil {
		return err
	}
	return cerr
}

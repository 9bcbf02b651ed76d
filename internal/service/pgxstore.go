package service

import (
	"context"
	"fmt"

	"github.com/cortexai/opsinsight/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"
)

// PgxStore talks to PostgreSQL with the native pgx driver.
type PgxStore struct {
	dsn     string
	maxRows int
}

func NewPgxStore(dsn string, maxRows int) *PgxStore {
	return &PgxStore{dsn: dsn, maxRows: maxRows}
}

func (s *PgxStore) Dialect() string { return "postgres" }

// Open implements Store
func (s *PgxStore) Open(ctx context.Context) (Conn, error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx.Connect: %w", err)
	}
	return &pgxConn{conn: conn, maxRows: s.maxRows}, nil
}

type pgxConn struct {
	conn    *pgx.Conn
	maxRows int
}

func (c *pgxConn) Query(ctx context.Context, sql string) (*models.Table, error) {
	rows, err := c.conn.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	table := &models.Table{Columns: make([]string, len(fields)), Rows: [][]any{}}
	for i, f := range fields {
		table.Columns[i] = f.Name
	}

	for rows.Next() {
		if c.maxRows > 0 && len(table.Rows) >= c.maxRows {
			log.Warn().Int("max_rows", c.maxRows).Msg("result truncated")
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read values: %w", err)
		}
		for i, v := range vals {
			vals[i] = pgxValue(v)
		}
		table.Rows = append(table.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return table, nil
}

func (c *pgxConn) Close() error {
	return c.conn.Close(context.Background())
}

// pgxValue flattens NUMERIC into float64 so charts and JSON see plain numbers.
func pgxValue(v any) any {
	if n, ok := v.(pgtype.Numeric); ok {
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return normalizeValue(v)
}

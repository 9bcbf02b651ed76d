package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cortexai/opsinsight/internal/models"
)

// ErrUnknownDriver is returned by NewStore for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown store driver")

// Store opens connections to the relational store the pipeline queries.
type Store interface {
	Open(ctx context.Context) (Conn, error)
	// Dialect names the SQL flavour, used in the synthesis prompt.
	Dialect() string
}

// Conn is one logical connection, used for a single statement batch.
type Conn interface {
	Query(ctx context.Context, sql string) (*models.Table, error)
	Close() error
}

// StoreConfig selects and configures a store implementation.
type StoreConfig struct {
	Driver  string // postgres | pgx | mysql | sqlite | bigquery
	DSN     string
	MaxRows int

	// bigquery only
	ProjectID       string
	CredentialsFile string
	Location        string
	MaxBytes        int64
}

// NewStore builds the store named by cfg.Driver.
func NewStore(cfg StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql":
		return NewPgxStore(cfg.DSN, cfg.MaxRows), nil
	case "pgx", "mysql", "sqlite":
		return NewSQLStore(strings.ToLower(cfg.Driver), cfg.DSN, cfg.MaxRows)
	case "bigquery":
		return NewBigQueryStore(cfg.ProjectID, cfg.CredentialsFile, cfg.Location, cfg.MaxBytes, cfg.MaxRows), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// normalizeValue turns driver-specific scalars into JSON-friendly values.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
		return x
	default:
		return v
	}
}

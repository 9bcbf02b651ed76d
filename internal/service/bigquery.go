package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/cortexai/opsinsight/internal/models"
	"github.com/cortexai/opsinsight/internal/security"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ErrCostLimit is returned when a dry run exceeds the configured byte ceiling.
var ErrCostLimit = errors.New("bigquery cost limit")

// BigQueryStore runs statements against a BigQuery dataset. A client is
// created per batch and closed with the connection.
type BigQueryStore struct {
	projectID       string
	credentialsFile string
	location        string
	maxRows         int
	cost            *security.CostTracker
}

func NewBigQueryStore(projectID, credentialsFile, location string, maxBytes int64, maxRows int) *BigQueryStore {
	return &BigQueryStore{
		projectID:       projectID,
		credentialsFile: credentialsFile,
		location:        location,
		maxRows:         maxRows,
		cost:            security.NewCostTracker(maxBytes),
	}
}

func (s *BigQueryStore) Dialect() string { return "bigquery" }

// Open implements Store
func (s *BigQueryStore) Open(ctx context.Context) (Conn, error) {
	var opts []option.ClientOption
	if s.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.credentialsFile))
	}

	client, err := bigquery.NewClient(ctx, s.projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	if s.location != "" {
		client.Location = s.location
	}
	return &bqConn{client: client, store: s}, nil
}

type bqConn struct {
	client *bigquery.Client
	store  *BigQueryStore
}

func (c *bqConn) Close() error {
	return c.client.Close()
}

// Query dry-runs the statement against the byte limit first, then executes it.
func (c *bqConn) Query(ctx context.Context, sql string) (*models.Table, error) {
	if c.store.cost.MaxBytes() > 0 {
		bytes, err := c.estimate(ctx, sql)
		if err != nil {
			return nil, err
		}
		if msg := c.store.cost.Check(bytes); msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrCostLimit, msg)
		}
	}

	start := time.Now()
	job, err := c.client.Query(sql).Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("job wait: %w", err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	if stats := job.LastStatus().Statistics; stats != nil {
		c.store.cost.LogQueryCost(sql, stats.TotalBytesProcessed, time.Since(start).Milliseconds())
	}

	it, err := job.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("job read: %w", err)
	}

	table := &models.Table{Rows: [][]any{}}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if table.Columns == nil {
			for _, f := range it.Schema {
				table.Columns = append(table.Columns, f.Name)
			}
		}
		if c.store.maxRows > 0 && len(table.Rows) >= c.store.maxRows {
			log.Warn().Int("max_rows", c.store.maxRows).Msg("result truncated")
			break
		}
		vals := make([]any, len(row))
		for i, v := range row {
			vals[i] = normalizeValue(v)
		}
		table.Rows = append(table.Rows, vals)
	}
	if table.Columns == nil {
		for _, f := range it.Schema {
			table.Columns = append(table.Columns, f.Name)
		}
	}
	return table, nil
}

func (c *bqConn) estimate(ctx context.Context, sql string) (int64, error) {
	q := c.client.Query(sql)
	q.DryRun = true
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("dry run: %w", err)
	}
	if stats := job.LastStatus().Statistics; stats != nil {
		return stats.TotalBytesProcessed, nil
	}
	return 0, nil
}

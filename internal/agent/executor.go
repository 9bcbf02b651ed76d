package agent

import (
	"context"
	"time"

	"github.com/cortexai/opsinsight/internal/metrics"
	"github.com/cortexai/opsinsight/internal/models"
	"github.com/cortexai/opsinsight/internal/security"
	"github.com/cortexai/opsinsight/internal/service"
	"github.com/rs/zerolog/log"
)

// Batch is the outcome of one statement batch. Results only holds statements
// that passed the gate and ran without error.
type Batch struct {
	Results  models.ResultSet
	Rejected []string
	Failed   []string
}

// Executor runs gate-approved statements on one store connection.
type Executor struct {
	store  service.Store
	gate   *security.SQLGate
	masker *security.DataMasker
	audit  *security.AuditLogger
}

func NewExecutor(store service.Store, gate *security.SQLGate, masker *security.DataMasker, audit *security.AuditLogger) *Executor {
	return &Executor{store: store, gate: gate, masker: masker, audit: audit}
}

// Execute runs statements in order. Rejected and failing statements are
// logged and left out of Results; they never stop the rest of the batch.
func (e *Executor) Execute(ctx context.Context, stmts []Statement) *Batch {
	batch := &Batch{Results: make(models.ResultSet, len(stmts))}

	approved := make([]Statement, 0, len(stmts))
	for _, st := range stmts {
		if msg := e.gate.Check(st.SQL); msg != "" {
			log.Warn().Str("statement", st.Name).Str("reason", msg).Msg("statement rejected")
			e.audit.LogRejection(st.Name, st.SQL, msg)
			metrics.Statements.WithLabelValues("rejected").Inc()
			batch.Rejected = append(batch.Rejected, st.Name)
			continue
		}
		approved = append(approved, st)
	}
	if len(approved) == 0 {
		return batch
	}

	if e.store == nil {
		log.Error().Msg("no store configured")
		return failAll(batch, approved)
	}
	conn, err := e.store.Open(ctx)
	if err != nil {
		log.Error().Err(err).Msg("store connection failed")
		return failAll(batch, approved)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}()

	for _, st := range approved {
		start := time.Now()
		table, err := conn.Query(ctx, st.SQL)
		ms := time.Since(start).Milliseconds()
		if err != nil {
			log.Warn().Err(err).Str("statement", st.Name).Msg("statement failed")
			e.audit.LogStatement(st.Name, st.SQL, ms, 0, false, err.Error())
			metrics.Statements.WithLabelValues("failed").Inc()
			batch.Failed = append(batch.Failed, st.Name)
			continue
		}
		if table == nil {
			table = &models.Table{Columns: []string{}, Rows: [][]any{}}
		}
		if e.masker != nil {
			table = e.masker.MaskTable(table)
		}
		e.audit.LogStatement(st.Name, st.SQL, ms, len(table.Rows), true, "")
		metrics.Statements.WithLabelValues("ok").Inc()
		batch.Results[st.Name] = table
	}
	return batch
}

func failAll(batch *Batch, stmts []Statement) *Batch {
	for _, st := range stmts {
		metrics.Statements.WithLabelValues("failed").Inc()
		batch.Failed = append(batch.Failed, st.Name)
	}
	return batch
}

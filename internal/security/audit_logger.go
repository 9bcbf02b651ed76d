package security

import (
	"github.com/rs/zerolog/log"
)

// AuditLogger logs security-relevant events with hashed identifiers
type AuditLogger struct {
	enabled bool
}

func NewAuditLogger(enabled bool) *AuditLogger {
	return &AuditLogger{enabled: enabled}
}

// LogStatement records one statement execution
func (a *AuditLogger) LogStatement(name, sql string, executionTimeMs int64, rowCount int, success bool, errMsg string) {
	if a == nil || !a.enabled {
		return
	}
	evt := log.Info().
		Str("event", "statement_audit").
		Str("statement", name).
		Str("sql_hash", hashStr(sql)[:16]).
		Int64("execution_time_ms", executionTimeMs).
		Int("row_count", rowCount).
		Bool("success", success)

	if errMsg != "" {
		evt = evt.Str("error", errMsg)
	}
	evt.Msg("audit")
}

// LogRejection records a statement refused by the SQL gate
func (a *AuditLogger) LogRejection(name, sql, reason string) {
	if a == nil || !a.enabled {
		return
	}
	log.Warn().
		Str("event", "gate_rejection").
		Str("statement", name).
		Str("sql_hash", hashStr(sql)[:16]).
		Str("reason", reason).
		Msg("audit")
}

// LogQuestion records a pipeline run
func (a *AuditLogger) LogQuestion(question, apiKey, responseType string, statements int, validationPassed bool, executionTimeMs int64) {
	if a == nil || !a.enabled {
		return
	}
	log.Info().
		Str("event", "question_audit").
		Str("question_hash", hashStr(question)[:16]).
		Str("api_key_hash", hashStr(apiKey)[:16]).
		Str("response_type", responseType).
		Int("statements", statements).
		Bool("validation_passed", validationPassed).
		Int64("execution_time_ms", executionTimeMs).
		Msg("question audit")
}

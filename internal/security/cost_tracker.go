package security

import (
	"crypto/sha256"
	"fmt"

	"github.com/rs/zerolog/log"
)

const bytesPerGB = 1_000_000_000.0
const bigQueryCostPerTB = 5.0 // USD

// CostTracker enforces warehouse query byte limits
type CostTracker struct {
	maxBytes int64
}

func NewCostTracker(maxBytes int64) *CostTracker {
	return &CostTracker{maxBytes: maxBytes}
}

// MaxBytes is the configured ceiling, zero meaning unlimited.
func (ct *CostTracker) MaxBytes() int64 {
	return ct.maxBytes
}

// Check returns an error message if bytes exceed the limit
func (ct *CostTracker) Check(totalBytesProcessed int64) string {
	if ct.maxBytes <= 0 || totalBytesProcessed <= ct.maxBytes {
		return ""
	}
	return fmt.Sprintf(
		"query cost limit exceeded: processed %.2fGB, limit %.2fGB",
		float64(totalBytesProcessed)/bytesPerGB, float64(ct.maxBytes)/bytesPerGB,
	)
}

// LogQueryCost logs query cost info with a hashed statement
func (ct *CostTracker) LogQueryCost(sql string, totalBytesProcessed int64, durationMs int64) {
	processedGB := float64(totalBytesProcessed) / bytesPerGB
	costUSD := processedGB / 1000.0 * bigQueryCostPerTB

	log.Info().
		Str("event", "query_cost").
		Str("sql_hash", hashStr(sql)[:16]).
		Float64("cost_gb", processedGB).
		Float64("cost_usd", costUSD).
		Int64("duration_ms", durationMs).
		Msgf("query cost: %.4fGB ($%.4f) in %dms", processedGB, costUSD, durationMs)
}

func hashStr(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cortexai/opsinsight/internal/schema"
	"github.com/cortexai/opsinsight/internal/security"
	"github.com/cortexai/opsinsight/internal/service"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const defaultSchemaCacheTTL = 5 * time.Minute

// schemaCacheEntry is a rendered schema prompt and its expiry.
type schemaCacheEntry struct {
	prompt    string
	expiresAt time.Time
}

type schemaCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	store map[string]schemaCacheEntry
	sf    singleflight.Group // deduplicate concurrent row-count fetches
}

func newSchemaCache(ttl time.Duration) *schemaCache {
	if ttl <= 0 {
		ttl = defaultSchemaCacheTTL
	}
	return &schemaCache{ttl: ttl, store: make(map[string]schemaCacheEntry)}
}

func (c *schemaCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[key]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.prompt, true
}

func (c *schemaCache) set(key, prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = schemaCacheEntry{
		prompt:    prompt,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// schemaPrompt renders the descriptor for the synthesis prompt, optionally
// enriched with live row counts.
type schemaPrompt struct {
	desc       *schema.Descriptor
	store      service.Store
	gate       *security.SQLGate
	withCounts bool
	cache      *schemaCache
}

const schemaCacheKey = "schema"

// text returns the rendered schema. Row counts are fetched at most once per
// TTL; concurrent callers share one fetch. Any failure falls back to the plain
// descriptor and is not cached.
func (p *schemaPrompt) text(ctx context.Context) string {
	if !p.withCounts || p.store == nil {
		return p.desc.Render(nil)
	}
	if prompt, ok := p.cache.get(schemaCacheKey); ok {
		log.Debug().Msg("schema cache hit")
		return prompt
	}

	v, err, _ := p.cache.sf.Do(schemaCacheKey, func() (interface{}, error) {
		if prompt, ok := p.cache.get(schemaCacheKey); ok {
			return prompt, nil
		}
		fetchStart := time.Now()
		counts, err := p.rowCounts(ctx)
		if err != nil {
			return nil, err
		}
		prompt := p.desc.Render(counts)
		p.cache.set(schemaCacheKey, prompt)

		log.Info().
			Int("tables", len(counts)).
			Dur("fetch_ms", time.Since(fetchStart)).
			Msg("schema cached")
		return prompt, nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("row counts unavailable, using plain schema")
		return p.desc.Render(nil)
	}
	return v.(string)
}

func (p *schemaPrompt) rowCounts(ctx context.Context) (map[string]int64, error) {
	conn, err := p.store.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer conn.Close()

	counts := make(map[string]int64)
	for _, name := range p.desc.TableNames() {
		sql := "SELECT COUNT(*) FROM " + name
		if msg := p.gate.Check(sql); msg != "" {
			log.Warn().Str("table", name).Str("reason", msg).Msg("row count skipped")
			continue
		}
		t, err := conn.Query(ctx, sql)
		if err != nil {
			log.Warn().Err(err).Str("table", name).Msg("row count failed")
			continue
		}
		if t != nil && len(t.Rows) == 1 && len(t.Rows[0]) == 1 {
			if n, ok := toInt64(t.Rows[0][0]); ok {
				counts[name] = n
			}
		}
	}
	if len(counts) == 0 {
		return nil, errors.New("no row counts fetched")
	}
	return counts, nil
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		return int64(x), true
	case string:
		var n int64
		_, err := fmt.Sscan(x, &n)
		return n, err == nil
	}
	return 0, false
}

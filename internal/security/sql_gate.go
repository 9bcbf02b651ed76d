package security

import (
	"fmt"
	"regexp"
	"strings"
)

// mutatingVerbs are matched as whole words after normalisation
var mutatingVerbs = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "ALTER",
	"CREATE", "TRUNCATE", "REPLACE", "RENAME",
}

// sqlInjectionPatterns are file and timing primitives no analytic read needs
var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bINTO\s+OUTFILE\b`),
	regexp.MustCompile(`(?i)\bINTO\s+DUMPFILE\b`),
	regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(`),
	regexp.MustCompile(`(?i)\bBENCHMARK\s*\(`),
	regexp.MustCompile(`(?i)\bSLEEP\s*\(`),
	regexp.MustCompile(`(?i)\bPG_SLEEP\s*\(`),
	regexp.MustCompile(`(?i)\bWAITFOR\s+DELAY\b`),
}

var (
	nonWordRe = regexp.MustCompile(`[^A-Z0-9_]+`)
	// Best effort: the token right after FROM or JOIN. Subqueries, comments and
	// string literals containing FROM/JOIN can defeat this.
	tableRefRe = regexp.MustCompile("(?i)\\b(?:FROM|JOIN)\\s+([`\"\\[]?[\\w.]+[`\"\\]]?)")
	cteNameRe  = regexp.MustCompile(`(?i)(?:\bWITH(?:\s+RECURSIVE)?|,)\s*([\w]+)\s+AS\s*\(`)
)

// SQLGate rejects statements that could mutate data or reach tables outside
// the allow-list. It is a lexical check, not a parser.
type SQLGate struct {
	allowed map[string]bool
}

// NewSQLGate builds a gate over the given table names (case-insensitive).
func NewSQLGate(allowedTables []string) *SQLGate {
	allowed := make(map[string]bool, len(allowedTables))
	for _, t := range allowedTables {
		if t = strings.TrimSpace(t); t != "" {
			allowed[strings.ToLower(t)] = true
		}
	}
	return &SQLGate{allowed: allowed}
}

// Check returns a rejection reason, or an empty string if the statement may run.
func (g *SQLGate) Check(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return "SQL cannot be empty"
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "only SELECT or WITH queries are allowed"
	}

	if verb := FindMutatingVerb(trimmed); verb != "" {
		return "statement contains forbidden keyword " + verb
	}

	for _, pattern := range sqlInjectionPatterns {
		if pattern.MatchString(trimmed) {
			return "dangerous pattern detected: " + pattern.String()
		}
	}

	ctes := make(map[string]bool)
	for _, m := range cteNameRe.FindAllStringSubmatch(trimmed, -1) {
		ctes[strings.ToLower(m[1])] = true
	}

	for _, table := range ExtractTables(trimmed) {
		name := strings.ToLower(table)
		if ctes[name] {
			continue
		}
		if !g.allowed[name] && !g.allowed[lastSegment(name)] {
			return fmt.Sprintf("table %q is not in the allow-list", table)
		}
	}

	return ""
}

// Allowed reports whether a single table name is allow-listed.
func (g *SQLGate) Allowed(table string) bool {
	name := strings.ToLower(table)
	return g.allowed[name] || g.allowed[lastSegment(name)]
}

// FindMutatingVerb returns the first deny-listed verb that appears as a whole
// word, or "".
func FindMutatingVerb(sql string) string {
	padded := " " + strings.TrimSpace(nonWordRe.ReplaceAllString(strings.ToUpper(sql), " ")) + " "
	for _, verb := range mutatingVerbs {
		if strings.Contains(padded, " "+verb+" ") {
			return verb
		}
	}
	return ""
}

// ExtractTables returns identifiers following FROM/JOIN with quoting removed.
func ExtractTables(sql string) []string {
	var tables []string
	for _, m := range tableRefRe.FindAllStringSubmatch(sql, -1) {
		name := strings.Trim(m[1], "`\"[]")
		if name != "" {
			tables = append(tables, name)
		}
	}
	return tables
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

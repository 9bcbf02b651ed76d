package security

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cortexai/opsinsight/internal/models"
)

var (
	emailRe    = regexp.MustCompile(`(?i)email`)
	phoneRe    = regexp.MustCompile(`(?i)phone|mobile`)
	idCardRe   = regexp.MustCompile(`(?i)id_card|id_number|ssn|social_security`)
	nameRe     = regexp.MustCompile(`(?i)^patient_name$|^patient$`)
	fullMaskRe = regexp.MustCompile(`(?i)password|secret|token|api_key|access_key|private_key`)
)

// DataMasker masks sensitive column values in query results
type DataMasker struct {
	sensitiveColumns []string
}

func NewDataMasker(sensitiveColumns []string) *DataMasker {
	return &DataMasker{sensitiveColumns: sensitiveColumns}
}

// MaskTable returns a copy of t with sensitive columns masked. Tables without
// sensitive columns are returned as is.
func (m *DataMasker) MaskTable(t *models.Table) *models.Table {
	if t == nil {
		return nil
	}
	var sensitive []int
	for i, col := range t.Columns {
		if m.IsSensitive(col) {
			sensitive = append(sensitive, i)
		}
	}
	if len(sensitive) == 0 {
		return t
	}

	out := &models.Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for r, row := range t.Rows {
		cp := append([]any(nil), row...)
		for _, i := range sensitive {
			if i < len(cp) && cp[i] != nil {
				cp[i] = m.maskValue(t.Columns[i], fmt.Sprintf("%v", cp[i]))
			}
		}
		out.Rows[r] = cp
	}
	return out
}

// IsSensitive reports whether a column name is configured or recognised as sensitive.
func (m *DataMasker) IsSensitive(col string) bool {
	lower := strings.ToLower(col)
	for _, s := range m.sensitiveColumns {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return emailRe.MatchString(col) || phoneRe.MatchString(col) ||
		idCardRe.MatchString(col) || nameRe.MatchString(col) || fullMaskRe.MatchString(col)
}

func (m *DataMasker) maskValue(col, val string) string {
	switch {
	case emailRe.MatchString(col):
		return maskEmail(val)
	case phoneRe.MatchString(col):
		return maskTail(val, "***-***-")
	case idCardRe.MatchString(col):
		return maskTail(val, strings.Repeat("*", 14))
	case nameRe.MatchString(col):
		return maskName(val)
	default:
		return "***"
	}
}

// maskEmail: "john.doe@example.com" → "jo***@***.com"
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	visible := min(2, len(local))
	parts := strings.Split(domain, ".")
	return fmt.Sprintf("%s***@***.%s", local[:visible], parts[len(parts)-1])
}

// maskTail keeps the last four digits behind prefix.
func maskTail(val, prefix string) string {
	var digits strings.Builder
	for _, c := range val {
		if (c >= '0' && c <= '9') || c == 'X' || c == 'x' {
			digits.WriteRune(c)
		}
	}
	d := digits.String()
	if len(d) < 4 {
		return prefix + "****"
	}
	return prefix + d[len(d)-4:]
}

// maskName keeps the first rune: "张三丰" → "张**"
func maskName(val string) string {
	r := []rune(val)
	if len(r) == 0 {
		return ""
	}
	return string(r[0]) + strings.Repeat("*", len(r)-1)
}

package service

import (
	"regexp"
	"strconv"
	"strings"
)

// Intent is the coarse classification of a question.
type Intent string

const (
	IntentViewFile      Intent = "view_file"
	IntentAnalyzeFile   Intent = "analyze_file"
	IntentKnowledgeOrDB Intent = "knowledge_or_db"
)

// Preference says which data a question should be answered from.
type Preference string

const (
	PreferFile     Preference = "file"
	PreferDatabase Preference = "database"
	PreferBoth     Preference = "both"
)

// ParsePreference accepts "file", "database" or "both" in any case.
func ParsePreference(s string) (Preference, bool) {
	switch p := Preference(strings.ToLower(strings.TrimSpace(s))); p {
	case PreferFile, PreferDatabase, PreferBoth:
		return p, true
	}
	return "", false
}

var (
	viewPattern = regexp.MustCompile(
		`(?i)\b(view|open|show|display|preview|look\s+at|see|list)\b|查看|打开|显示|预览|看看|看一下|前\s*\d+\s*行`)
	analyzePattern = regexp.MustCompile(
		`(?i)\b(analy[sz]e|analysis|compute|calculate|compare|comparison|trend|summari[sz]e|statistics|average|mean|sum|total|correlat\w*)\b|分析|计算|对比|比较|统计|趋势|汇总`)

	fileTerms = regexp.MustCompile(
		`(?i)\b(file|upload(ed)?|spreadsheet|excel|xlsx|csv|sheet|attachment|document)\b|文件|上传|表格|附件|文档`)
	databaseTerms = regexp.MustCompile(
		`(?i)\b(database|db|system\s+data|hospital\s+data|records?)\b|数据库|系统数据|院内数据|业务数据`)

	previewPattern = regexp.MustCompile(`(?i)\b(?:first|top)\s+(\d+)\s+rows?\b|前\s*(\d+)\s*行`)
)

// intentRule is one entry of the ordered classification table. The first rule
// whose match returns true decides the intent.
type intentRule struct {
	name   string
	intent Intent
	match  func(question string, hasFile bool) bool
}

var intentRules = []intentRule{
	{
		name:   "view uploaded file",
		intent: IntentViewFile,
		match: func(q string, hasFile bool) bool {
			return hasFile && viewPattern.MatchString(q) && !analyzePattern.MatchString(q)
		},
	},
	{
		name:   "analyze uploaded file",
		intent: IntentAnalyzeFile,
		match: func(q string, hasFile bool) bool {
			return hasFile && analyzePattern.MatchString(q)
		},
	},
	{
		name:   "knowledge or database",
		intent: IntentKnowledgeOrDB,
		match:  func(string, bool) bool { return true },
	},
}

// ResolveIntent applies the ordered rules to a question.
func ResolveIntent(question string, hasFile bool) Intent {
	for _, r := range intentRules {
		if r.match(question, hasFile) {
			return r.intent
		}
	}
	return IntentKnowledgeOrDB
}

// ResolvePreference decides between file, database or both. An explicit
// preference always wins; otherwise file and database terms in the question
// decide, and a question mentioning neither falls back to the file when one
// exists.
func ResolvePreference(question string, hasFile bool, explicit string) Preference {
	if p, ok := ParsePreference(explicit); ok {
		return p
	}
	if !hasFile {
		return PreferDatabase
	}
	mentionsFile := fileTerms.MatchString(question)
	mentionsDB := databaseTerms.MatchString(question)
	switch {
	case mentionsFile && !mentionsDB:
		return PreferFile
	case mentionsDB && !mentionsFile:
		return PreferDatabase
	case mentionsFile && mentionsDB:
		return PreferBoth
	default:
		return PreferFile
	}
}

// PreviewRows returns the row count requested by "first N rows", "top N rows"
// or "前N行", or def when the question names none.
func PreviewRows(question string, def int) int {
	m := previewPattern.FindStringSubmatch(question)
	if m == nil {
		return def
	}
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		if n, err := strconv.Atoi(g); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// DataSource represents which backend answers a knowledge-or-database question
type DataSource string

const (
	DataSourceDatabase  DataSource = "database"
	DataSourceKnowledge DataSource = "knowledge"
)

var knowledgeKeywords = []string{
	"policy", "guideline", "regulation", "procedure", "standard", "rule",
	"definition", "what is", "how to", "how do", "requirement", "manual",
	"制度", "规定", "规范", "指南", "流程", "标准", "定义", "什么是", "如何", "怎么", "要求", "办法",
}

var databaseKeywords = []string{
	"how many", "count", "total", "sum", "average", "avg", "rate", "ratio",
	"trend", "top", "rank", "compare", "growth", "month", "year", "quarter",
	"visits", "admission", "revenue", "cost", "drg", "target", "indicator",
	"department", "per ", "by ",
	"多少", "总", "平均", "比例", "占比", "排名", "趋势", "同比", "环比", "增长",
	"门诊", "住院", "收入", "费用", "科室", "目标", "指标", "月", "年",
}

// RoutingResult contains data source routing info
type RoutingResult struct {
	Source         DataSource
	Confidence     float64
	KnowledgeScore int
	DatabaseScore  int
	Reasoning      string
}

// IntentRouter routes knowledge-or-database questions by keyword score
type IntentRouter struct{}

func NewIntentRouter() *IntentRouter {
	return &IntentRouter{}
}

// Route analyses the question and returns the best matching data source.
// Ties and unmatched questions go to the database.
func (r *IntentRouter) Route(question string) RoutingResult {
	lower := strings.ToLower(question)

	kbScore := 0
	dbScore := 0
	for _, kw := range knowledgeKeywords {
		if strings.Contains(lower, kw) {
			kbScore++
		}
	}
	for _, kw := range databaseKeywords {
		if strings.Contains(lower, kw) {
			dbScore++
		}
	}

	total := kbScore + dbScore
	if total == 0 {
		return RoutingResult{
			Source:     DataSourceDatabase,
			Confidence: 0.5,
			Reasoning:  "no strong keywords, defaulting to database",
		}
	}

	if kbScore > dbScore {
		return RoutingResult{
			Source:         DataSourceKnowledge,
			Confidence:     float64(kbScore) / float64(total),
			KnowledgeScore: kbScore,
			DatabaseScore:  dbScore,
			Reasoning:      "question contains policy or definition keywords",
		}
	}

	return RoutingResult{
		Source:         DataSourceDatabase,
		Confidence:     float64(dbScore) / float64(total),
		KnowledgeScore: kbScore,
		DatabaseScore:  dbScore,
		Reasoning:      "question contains metric or aggregation keywords",
	}
}

package narrative

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cortexai/opsinsight/internal/chart"
	"github.com/rs/zerolog/log"
)

type blockKind int

const (
	paragraphBlock blockKind = iota
	headingBlock
	listBlock
	codeBlock
)

type block struct {
	kind  blockKind
	level int    // headings
	text  string // heading text
	lines []string
}

func (b block) String() string {
	if b.kind == headingBlock {
		return strings.Repeat("#", b.level) + " " + b.text
	}
	return strings.Join(b.lines, "\n")
}

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	listRe    = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
	fenceRe   = regexp.MustCompile("^\\s*(```|~~~)\\s*(\\S*)")
	summaryRe = regexp.MustCompile(`(?i)^(?:\d+[.、)]\s*)?(summary|conclusions?|key takeaways|总结|小结|结论)[:：]?$`)
)

// parseBlocks splits text into heading, list, paragraph and fenced code blocks.
// Fenced chart blocks from the model are dropped; charts are appended later.
func parseBlocks(text string) []block {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var blocks []block
	var cur *block

	flush := func() {
		if cur != nil {
			blocks = append(blocks, *cur)
			cur = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t")

		if m := fenceRe.FindStringSubmatch(line); m != nil {
			flush()
			fence := block{kind: codeBlock, lines: []string{line}}
			closed := false
			for i++; i < len(lines); i++ {
				fence.lines = append(fence.lines, lines[i])
				if strings.HasPrefix(strings.TrimSpace(lines[i]), m[1]) {
					closed = true
					break
				}
			}
			if !closed {
				fence.lines = append(fence.lines, m[1])
			}
			if !strings.EqualFold(m[2], "chart") {
				blocks = append(blocks, fence)
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			if m[2] != "" {
				blocks = append(blocks, block{kind: headingBlock, level: len(m[1]), text: m[2]})
			}
			continue
		}

		kind := paragraphBlock
		if listRe.MatchString(line) {
			kind = listBlock
		}
		// list continuation lines stay with their list
		if cur != nil && cur.kind == listBlock && kind == paragraphBlock && strings.HasPrefix(lines[i], " ") {
			kind = listBlock
		}
		if cur != nil && cur.kind != kind {
			flush()
		}
		if cur == nil {
			cur = &block{kind: kind}
		}
		cur.lines = append(cur.lines, line)
	}
	flush()
	return blocks
}

// IsSummaryHeading reports whether a heading text names the summary section.
func IsSummaryHeading(text string) bool {
	return summaryRe.MatchString(strings.TrimSpace(strings.Trim(text, "*")))
}

// document describes how Format completes a model reply.
type document struct {
	title          string
	summaryHeading string
	summary        string
	chartMarker    string
	charts         []chart.Spec
}

// format re-flows text into blank-line separated blocks with exactly one
// top-level heading, exactly one summary section and one chart block per spec.
func format(text string, doc document) string {
	blocks := parseBlocks(text)

	out := make([]block, 0, len(blocks)+4)
	hasTitle, hasSummary := false, false
	for _, b := range blocks {
		if b.kind == headingBlock {
			if b.level == 1 && IsSummaryHeading(b.text) {
				b.level = 2
			}
			if b.level == 1 {
				if hasTitle {
					b.level = 2
				} else {
					hasTitle = true
					out = append(out, b)
					continue
				}
			}
			if IsSummaryHeading(b.text) {
				if hasSummary {
					b = block{kind: paragraphBlock, lines: []string{"**" + strings.Trim(b.text, "*") + "**"}}
				} else {
					hasSummary = true
				}
			}
		}
		out = append(out, b)
	}

	if !hasTitle {
		out = append([]block{{kind: headingBlock, level: 1, text: doc.title}}, out...)
	}
	if !hasSummary {
		out = append(out,
			block{kind: headingBlock, level: 2, text: doc.summaryHeading},
			block{kind: paragraphBlock, lines: []string{doc.summary}},
		)
	}
	out = append(out, chartBlocks(doc.charts, doc.chartMarker)...)

	parts := make([]string, len(out))
	for i, b := range out {
		parts[i] = b.String()
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// chartBlocks renders each spec under a uniquely titled heading.
func chartBlocks(specs []chart.Spec, marker string) []block {
	used := make(map[string]bool)
	var out []block
	for _, spec := range specs {
		base := chartTitle(spec.Title, marker)
		title := base
		for n := 2; used[title]; n++ {
			title = fmt.Sprintf("%s (%d)", base, n)
		}
		body, err := json.Marshal(spec)
		if err != nil {
			log.Warn().Err(err).Str("chart", spec.Title).Msg("chart not serializable")
			continue
		}
		used[title] = true
		out = append(out,
			block{kind: headingBlock, level: 3, text: title},
			block{kind: codeBlock, lines: []string{"```chart", string(body), "```"}},
		)
	}
	return out
}

// chartTitle appends the marker unless the title already ends with it.
func chartTitle(title, marker string) string {
	title = strings.TrimSpace(title)
	if marker == "" || strings.HasSuffix(strings.ToLower(title), strings.ToLower(marker)) {
		return title
	}
	if title == "" {
		return marker
	}
	if isASCII(marker) {
		return title + " " + marker
	}
	return title + marker
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

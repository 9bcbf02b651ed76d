// Package schema holds the static description of the analytic tables that
// grounds query synthesis and defines the table allow-list.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Column is one column and its semantic type
type Column struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Table is one queryable table with example queries
type Table struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Columns     []Column `yaml:"columns" json:"columns"`
	Examples    []string `yaml:"examples" json:"examples,omitempty"`
}

// Descriptor is the ordered table list plus join rules. It is never mutated
// after Parse returns.
type Descriptor struct {
	Tables    []Table  `yaml:"tables" json:"tables"`
	JoinRules []string `yaml:"join_rules" json:"join_rules,omitempty"`
}

var (
	defaultOnce sync.Once
	defaultDesc *Descriptor
)

// Default returns the embedded descriptor.
func Default() *Descriptor {
	defaultOnce.Do(func() {
		d, err := Parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded schema: %v", err))
		}
		defaultDesc = d
	})
	return defaultDesc
}

// Load reads a descriptor from a YAML file.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML descriptor.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if len(d.Tables) == 0 {
		return nil, errors.New("schema declares no tables")
	}
	seen := make(map[string]bool, len(d.Tables))
	for _, t := range d.Tables {
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" {
			return nil, errors.New("schema table without a name")
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate table %q", t.Name)
		}
		if len(t.Columns) == 0 {
			return nil, fmt.Errorf("table %q has no columns", t.Name)
		}
		seen[name] = true
	}
	return &d, nil
}

// TableNames returns the allow-list in declaration order.
func (d *Descriptor) TableNames() []string {
	names := make([]string, len(d.Tables))
	for i, t := range d.Tables {
		names[i] = t.Name
	}
	return names
}

// Lookup finds a table by name, ignoring case.
func (d *Descriptor) Lookup(name string) (Table, bool) {
	for _, t := range d.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}

// Render formats the descriptor as prompt context. Row counts are included
// for tables present in counts.
func (d *Descriptor) Render(counts map[string]int64) string {
	var sb strings.Builder
	sb.WriteString("## Available tables\n\n")
	for _, t := range d.Tables {
		sb.WriteString("### " + t.Name)
		if n, ok := counts[t.Name]; ok {
			fmt.Fprintf(&sb, " (%d rows)", n)
		}
		sb.WriteString("\n")
		if t.Description != "" {
			sb.WriteString(t.Description + "\n")
		}
		for _, c := range t.Columns {
			fmt.Fprintf(&sb, "  %s %s", c.Name, c.Type)
			if c.Description != "" {
				sb.WriteString(" -- " + c.Description)
			}
			sb.WriteString("\n")
		}
		for _, ex := range t.Examples {
			sb.WriteString("  example: " + ex + "\n")
		}
		sb.WriteString("\n")
	}
	if len(d.JoinRules) > 0 {
		sb.WriteString("## Join rules\n")
		for _, r := range d.JoinRules {
			sb.WriteString("- " + r + "\n")
		}
	}
	return sb.String()
}

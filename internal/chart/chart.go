// Package chart turns visualization plan entries and query results into
// self-contained chart specifications a frontend can render without further
// data access.
package chart

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Type is a chart kind.
type Type string

const (
	Bar      Type = "bar"
	Line     Type = "line"
	Pie      Type = "pie"
	Doughnut Type = "doughnut"
	Mixed    Type = "mixed"
	Scatter  Type = "scatter"
)

// Valid reports whether t is a supported chart kind.
func (t Type) Valid() bool {
	switch t {
	case Bar, Line, Pie, Doughnut, Mixed, Scatter:
		return true
	}
	return false
}

const (
	lineStroke    = "rgba(75, 192, 192, 1)"
	lineFill      = "rgba(75, 192, 192, 0.2)"
	defaultRadius = 5.0
)

// defaultMixedColors are used when a mixed entry names fewer than two colors.
var defaultMixedColors = [2]string{"rgba(54, 162, 235, 0.7)", "rgba(255, 99, 132, 1)"}

// Spec is one renderable chart.
type Spec struct {
	Type  Type   `json:"type"`
	Title string `json:"title"`
	Data  Data   `json:"data"`
	Style Style  `json:"style"`
}

// Data holds category labels and one or more series.
type Data struct {
	Labels []string `json:"labels,omitempty"`
	Series []Series `json:"datasets"`
}

// Series is one dataset. Category charts fill Values, scatter fills Points.
type Series struct {
	Label           string    `json:"label"`
	Type            Type      `json:"type,omitempty"`
	Values          []float64 `json:"data,omitempty"`
	Points          []Point   `json:"points,omitempty"`
	BackgroundColor []string  `json:"backgroundColor,omitempty"`
	BorderColor     []string  `json:"borderColor,omitempty"`
	Fill            bool      `json:"fill,omitempty"`
	YAxisID         string    `json:"yAxisID,omitempty"`
	Order           int       `json:"order"`
}

// Point is a scatter point; R is the radius.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R float64 `json:"r"`
}

// Style carries rendering hints.
type Style struct {
	XLabel     string `json:"xLabel,omitempty"`
	YLabel     string `json:"yLabel,omitempty"`
	Y2Label    string `json:"y2Label,omitempty"`
	ShowLegend bool   `json:"showLegend"`
}

// PlanEntry is one chart intent from the query plan.
type PlanEntry struct {
	Type       Type      `json:"type"`
	Title      string    `json:"title"`
	Source     SourceRef `json:"data_source"`
	XField     string    `json:"x_field"`
	YField     string    `json:"y_field"`
	Y2Field    string    `json:"y2_field,omitempty"`
	ColorField string    `json:"color_field,omitempty"`
	SizeField  string    `json:"size_field,omitempty"`
	Colors     []string  `json:"colors,omitempty"`
	XLabel     string    `json:"x_label,omitempty"`
	YLabel     string    `json:"y_label,omitempty"`
}

// SourceRef points at a statement result either by name or by its zero-based
// position in the statement list. The model emits both forms.
type SourceRef struct {
	Name  string
	Index int
	ByPos bool
}

// RefName references a statement by name.
func RefName(name string) SourceRef { return SourceRef{Name: name} }

// RefIndex references a statement by position.
func RefIndex(i int) SourceRef { return SourceRef{Index: i, ByPos: true} }

func (r SourceRef) String() string {
	if r.ByPos {
		return strconv.Itoa(r.Index)
	}
	return r.Name
}

func (r SourceRef) MarshalJSON() ([]byte, error) {
	if r.ByPos {
		return json.Marshal(r.Index)
	}
	return json.Marshal(r.Name)
}

func (r *SourceRef) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*r = SourceRef{Name: strings.TrimSpace(name)}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*r = SourceRef{Index: int(f), ByPos: true}
		return nil
	}
	if string(b) == "null" {
		*r = SourceRef{}
		return nil
	}
	return fmt.Errorf("data_source must be a statement name or index, got %s", b)
}

// Palette returns n colors with independently drawn channels in [100, 200]
// and alpha 0.7.
func Palette(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("rgba(%d, %d, %d, 0.7)", channel(), channel(), channel())
	}
	return out
}

func channel() int { return 100 + rand.IntN(101) }

// opaque turns a palette color into its solid border variant.
func opaque(colors []string) []string {
	out := make([]string, len(colors))
	for i, c := range colors {
		out[i] = strings.Replace(c, ", 0.7)", ", 1)", 1)
	}
	return out
}

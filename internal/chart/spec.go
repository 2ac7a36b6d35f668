// Package chart decides whether a query result can be drawn and, if so,
// which chart describes it. Selection is a fixed, ordered rule cascade over
// the result's shape and column classes; the first rule that builds a
// drawable chart wins.
package chart

import (
	"encoding/json"

	"github.com/ecom-insights/backend/internal/table"
)

// Kind enumerates the chart variants, including the explicit absence of one.
type Kind int

const (
	KindNone Kind = iota
	KindBar
	KindLine
	KindScatter
	KindHistogram
	KindPie
)

func (k Kind) String() string {
	switch k {
	case KindBar:
		return "bar"
	case KindLine:
		return "line"
	case KindScatter:
		return "scatter"
	case KindHistogram:
		return "histogram"
	case KindPie:
		return "pie"
	default:
		return "none"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type Margin struct {
	L int `json:"l"`
	R int `json:"r"`
	T int `json:"t"`
	B int `json:"b"`
}

// Layout is shared by every drawable chart.
type Layout struct {
	Margin        Margin  `json:"margin"`
	TitleX        float64 `json:"title_x"`
	TitleFontSize int     `json:"title_font_size"`
	Height        int     `json:"height"`
	HoverMode     string  `json:"hovermode"`
}

// Spec describes one chart. For histograms Y is empty; the y axis is the
// bin count. For pies X holds the slice names and Y[0] the slice values.
type Spec struct {
	Kind        Kind
	X           string
	Y           []string
	Title       string
	Labels      map[string]string
	HoverFields []string
	LineShape   string
	Layout      Layout

	// Frame is the cleaned working copy the chart was built from.
	Frame *table.Result
}

func None() Spec {
	return Spec{Kind: KindNone}
}

func (s Spec) IsNone() bool {
	return s.Kind == KindNone
}

// Points is the number of rows drawn.
func (s Spec) Points() int {
	return s.Frame.NumRows()
}

// Label returns the display label for a bound field.
func (s Spec) Label(field string) string {
	if l, ok := s.Labels[field]; ok {
		return l
	}
	return field
}

type specJSON struct {
	Kind        Kind              `json:"kind"`
	X           string            `json:"x"`
	Y           []string          `json:"y"`
	Title       string            `json:"title"`
	Labels      map[string]string `json:"labels,omitempty"`
	HoverFields []string          `json:"hover_fields,omitempty"`
	LineShape   string            `json:"line_shape,omitempty"`
	Points      int               `json:"points"`
	Layout      Layout            `json:"layout"`
	Figure      map[string]any    `json:"figure"`
}

// MarshalJSON encodes None as null so callers can tell "no chart" apart
// from a failure.
func (s Spec) MarshalJSON() ([]byte, error) {
	if s.IsNone() {
		return []byte("null"), nil
	}
	y := s.Y
	if y == nil {
		y = []string{}
	}
	return json.Marshal(specJSON{
		Kind:        s.Kind,
		X:           s.X,
		Y:           y,
		Title:       s.Title,
		Labels:      s.Labels,
		HoverFields: s.HoverFields,
		LineShape:   s.LineShape,
		Points:      s.Points(),
		Layout:      s.Layout,
		Figure:      s.Figure(),
	})
}

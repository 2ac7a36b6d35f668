package chart

import (
	"fmt"
	"strings"
	"time"

	"github.com/ecom-insights/backend/internal/table"
)

// Figure renders s as a Plotly figure ({"data": [...], "layout": {...}}).
// It returns nil for None.
func (s Spec) Figure() map[string]any {
	if s.IsNone() || s.Frame == nil {
		return nil
	}
	return map[string]any{
		"data":   s.traces(),
		"layout": s.plotlyLayout(),
	}
}

func (s Spec) traces() []map[string]any {
	switch s.Kind {
	case KindBar:
		return []map[string]any{{
			"type": "bar",
			"x":    s.values(s.X),
			"y":    s.values(s.Y[0]),
			"name": s.Label(s.Y[0]),
		}}
	case KindLine:
		x := s.values(s.X)
		out := make([]map[string]any, 0, len(s.Y))
		for _, y := range s.Y {
			out = append(out, map[string]any{
				"type": "scatter",
				"mode": "lines",
				"x":    x,
				"y":    s.values(y),
				"name": y,
				"line": map[string]any{"shape": s.LineShape},
			})
		}
		return out
	case KindScatter:
		return []map[string]any{s.scatterTrace()}
	case KindHistogram:
		return []map[string]any{{
			"type": "histogram",
			"x":    s.values(s.X),
			"name": s.Label(s.X),
		}}
	case KindPie:
		return []map[string]any{{
			"type":   "pie",
			"labels": s.values(s.X),
			"values": s.values(s.Y[0]),
		}}
	}
	return nil
}

func (s Spec) scatterTrace() map[string]any {
	trace := map[string]any{
		"type": "scatter",
		"mode": "markers",
		"x":    s.values(s.X),
		"y":    s.values(s.Y[0]),
	}
	if len(s.HoverFields) == 0 {
		return trace
	}

	columns := make([][]any, len(s.HoverFields))
	for i, f := range s.HoverFields {
		columns[i] = s.values(f)
	}
	custom := make([][]any, s.Points())
	for row := range custom {
		custom[row] = make([]any, len(columns))
		for i := range columns {
			custom[row][i] = columns[i][row]
		}
	}

	var tmpl strings.Builder
	fmt.Fprintf(&tmpl, "%s=%%{x}<br>%s=%%{y}", s.Label(s.X), s.Label(s.Y[0]))
	for i, f := range s.HoverFields {
		if f == s.X || f == s.Y[0] {
			continue
		}
		fmt.Fprintf(&tmpl, "<br>%s=%%{customdata[%d]}", f, i)
	}
	tmpl.WriteString("<extra></extra>")

	trace["customdata"] = custom
	trace["hovertemplate"] = tmpl.String()
	return trace
}

func (s Spec) plotlyLayout() map[string]any {
	l := map[string]any{
		"title": map[string]any{
			"text": s.Title,
			"x":    s.Layout.TitleX,
			"font": map[string]any{"size": s.Layout.TitleFontSize},
		},
		"margin": map[string]any{
			"l": s.Layout.Margin.L,
			"r": s.Layout.Margin.R,
			"t": s.Layout.Margin.T,
			"b": s.Layout.Margin.B,
		},
		"height":    s.Layout.Height,
		"hovermode": s.Layout.HoverMode,
	}

	switch s.Kind {
	case KindPie:
		return l
	case KindHistogram:
		l["xaxis"] = axis(s.Label(s.X))
		l["yaxis"] = axis("count")
	case KindLine:
		l["xaxis"] = axis(s.Label(s.X))
		if len(s.Y) > 1 {
			l["yaxis"] = axis("value")
			l["legend"] = map[string]any{"title": map[string]any{"text": "variable"}}
		} else {
			l["yaxis"] = axis(s.Label(s.Y[0]))
		}
	default:
		l["xaxis"] = axis(s.Label(s.X))
		l["yaxis"] = axis(s.Label(s.Y[0]))
	}
	return l
}

func axis(title string) map[string]any {
	return map[string]any{"title": map[string]any{"text": title}}
}

// values returns a column of the frame ready for JSON; timestamps become
// ISO-like strings Plotly parses as dates.
func (s Spec) values(field string) []any {
	col, ok := s.Frame.Column(field)
	if !ok {
		return nil
	}
	for i, v := range col.Values {
		if t, ok := v.(time.Time); ok {
			col.Values[i] = table.FormatTime(t)
		}
	}
	return col.Values
}

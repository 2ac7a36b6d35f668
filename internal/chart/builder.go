package chart

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ecom-insights/backend/internal/table"
)

const (
	metricField = "Metric"
	valueField  = "Value"

	singleRowTitle = "Metrics Comparison for Single Entry"
	trendsTitle    = "Trends Over Time"
	splineShape    = "spline"
)

var titleCaser = cases.Title(language.English)

// Humanize turns a field name into display text: underscores become spaces
// and every word is title cased ("ad_sales" -> "Ad Sales").
func Humanize(field string) string {
	return titleCaser.String(strings.ReplaceAll(field, "_", " "))
}

func defaultLayout(hasDateAxis bool) Layout {
	hover := "closest"
	if hasDateAxis {
		hover = "x unified"
	}
	return Layout{
		Margin:        Margin{L: 20, R: 20, T: 50, B: 20},
		TitleX:        0.5,
		TitleFontSize: 18,
		Height:        400,
		HoverMode:     hover,
	}
}

func build(kind Kind, frame *table.Result, x string, y []string, title string) Spec {
	return Spec{
		Kind:   kind,
		X:      x,
		Y:      y,
		Title:  title,
		Labels: map[string]string{},
		Frame:  frame,
	}
}

func barBy(frame *table.Result, x, y string) Spec {
	s := build(KindBar, frame, x, []string{y}, Humanize(y)+" by "+Humanize(x))
	s.Labels[x] = Humanize(x)
	s.Labels[y] = Humanize(y)
	return s
}

func lineOver(frame *table.Result, x string, ys []string) Spec {
	title := trendsTitle
	if len(ys) == 1 {
		title = Humanize(ys[0]) + " Over Time"
	}
	s := build(KindLine, frame, x, ys, title)
	s.Labels[x] = "Date"
	if len(ys) == 1 {
		s.Labels[ys[0]] = Humanize(ys[0])
	}
	s.LineShape = splineShape
	return s
}

func scatterOf(frame *table.Result, x, y string, hover []string) Spec {
	s := build(KindScatter, frame, x, []string{y}, "Relationship: "+Humanize(x)+" vs. "+Humanize(y))
	s.Labels[x] = Humanize(x)
	s.Labels[y] = Humanize(y)
	s.HoverFields = hover
	return s
}

func histogramOf(frame *table.Result, x string) Spec {
	s := build(KindHistogram, frame, x, nil, "Distribution of "+Humanize(x))
	s.Labels[x] = Humanize(x)
	return s
}

func pieOf(frame *table.Result, names, values string) Spec {
	return build(KindPie, frame, names, []string{values}, "Distribution of "+Humanize(names)+" by "+Humanize(values))
}

package chart

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ecom-insights/backend/internal/table"
	"github.com/ecom-insights/backend/pkg/logger"
)

// Rule identifies one step of the selection cascade.
type Rule int

const (
	RuleEmpty Rule = iota + 1
	RuleSingleCell
	RuleSingleRow
	RuleTimeSeries
	RuleNumericPair
	RuleCategory
	RuleDistribution
)

func (r Rule) String() string {
	switch r {
	case RuleEmpty:
		return "empty"
	case RuleSingleCell:
		return "single_cell"
	case RuleSingleRow:
		return "single_row"
	case RuleTimeSeries:
		return "time_series"
	case RuleNumericPair:
		return "numeric_pair"
	case RuleCategory:
		return "category"
	case RuleDistribution:
		return "distribution"
	default:
		return "unknown"
	}
}

type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeTerminal
	OutcomeFailed
	OutcomeWon
	OutcomeFault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTerminal:
		return "terminal"
	case OutcomeFailed:
		return "failed"
	case OutcomeWon:
		return "won"
	case OutcomeFault:
		return "fault"
	default:
		return "skipped"
	}
}

// Attempt records what one rule did during a Classify call.
type Attempt struct {
	Rule    Rule
	Outcome Outcome
	Reason  string
}

var errNoSeries = errors.New("no numeric series left after exclusions")

// shape is the per-call view every rule reads from.
type shape struct {
	result      *table.Result
	rows, cols  int
	classes     table.Classification
	numeric     []string
	dates       []string
	categorical []string
}

func newShape(r *table.Result) *shape {
	c := table.Classify(r)
	return &shape{
		result:      r,
		rows:        r.NumRows(),
		cols:        r.NumColumns(),
		classes:     c,
		numeric:     c.Columns(table.Numeric),
		dates:       c.Columns(table.DateLike),
		categorical: c.Columns(table.Categorical),
	}
}

type rule struct {
	id       Rule
	applies  func(*shape) bool
	build    func(*shape) (Spec, error)
	terminal bool
}

// cascade is evaluated top to bottom; order is significant.
var cascade = []rule{
	{
		id:       RuleEmpty,
		applies:  func(s *shape) bool { return s.rows == 0 || s.cols == 0 },
		terminal: true,
	},
	{
		id:       RuleSingleCell,
		applies:  func(s *shape) bool { return s.rows == 1 && s.cols == 1 },
		terminal: true,
	},
	{
		id:      RuleSingleRow,
		applies: func(s *shape) bool { return s.rows == 1 && len(s.numeric) >= 2 },
		build:   buildSingleRow,
	},
	{
		id:      RuleTimeSeries,
		applies: func(s *shape) bool { return s.rows > 1 && len(s.dates) >= 1 && len(s.numeric) >= 1 },
		build:   buildTimeSeries,
	},
	{
		id:      RuleNumericPair,
		applies: func(s *shape) bool { return s.rows > 1 && len(s.numeric) >= 2 },
		build:   buildNumericPair,
	},
	{
		id:      RuleCategory,
		applies: func(s *shape) bool { return s.rows > 1 && len(s.numeric) >= 1 && len(s.categorical) >= 1 },
		build:   buildCategory,
	},
	{
		id:      RuleDistribution,
		applies: func(s *shape) bool { return s.rows > 1 && len(s.numeric) == 1 },
		build:   buildDistribution,
	},
}

// Classify runs the cascade and returns the chosen chart together with the
// trace of every rule consulted. It never fails: unusable shapes and
// internal faults both come back as None.
func Classify(r *table.Result) (spec Spec, attempts []Attempt) {
	var current Rule
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Chart construction panicked", zap.String("rule", current.String()), zap.Any("panic", p))
			spec = None()
			attempts = append(attempts, Attempt{Rule: current, Outcome: OutcomeFault, Reason: fmt.Sprint(p)})
		}
	}()

	s := newShape(r)
	for _, rl := range cascade {
		current = rl.id
		if !rl.applies(s) {
			attempts = append(attempts, Attempt{Rule: rl.id, Outcome: OutcomeSkipped})
			continue
		}
		if rl.terminal {
			attempts = append(attempts, Attempt{Rule: rl.id, Outcome: OutcomeTerminal})
			return None(), attempts
		}

		built, err := rl.build(s)
		if err != nil {
			logger.Debug("Chart rule fell through", zap.String("rule", rl.id.String()), zap.Error(err))
			attempts = append(attempts, Attempt{Rule: rl.id, Outcome: OutcomeFailed, Reason: err.Error()})
			continue
		}
		built.Layout = defaultLayout(len(s.dates) > 0)
		attempts = append(attempts, Attempt{Rule: rl.id, Outcome: OutcomeWon})
		return built, attempts
	}
	return None(), attempts
}

// Generate picks a chart for a query result. The question is only used in
// diagnostics; it never changes the choice.
func Generate(r *table.Result, question string) Spec {
	spec, attempts := Classify(r)
	if spec.IsNone() {
		logger.Debug("No suitable chart type found",
			zap.String("question", question),
			zap.Int("rows", r.NumRows()),
			zap.Int("columns", r.NumColumns()),
			zap.Int("rules_tried", len(attempts)))
	}
	return spec
}

func buildSingleRow(s *shape) (Spec, error) {
	var labels, values []any
	for _, name := range s.numeric {
		v, ok := table.ToNumber(s.result.Value(0, s.result.Index(name)))
		if !ok {
			continue
		}
		labels = append(labels, name)
		values = append(values, v)
	}
	if len(labels) == 0 {
		return Spec{}, table.ErrNoRows
	}

	frame, err := table.New(
		table.Column{Name: metricField, Type: table.TypeText, Values: labels},
		table.Column{Name: valueField, Type: table.TypeReal, Values: values},
	)
	if err != nil {
		return Spec{}, err
	}
	spec := build(KindBar, frame, metricField, []string{valueField}, singleRowTitle)
	spec.Labels[metricField] = metricField
	spec.Labels[valueField] = valueField
	return spec, nil
}

func buildTimeSeries(s *shape) (Spec, error) {
	x := s.dates[0]

	dateNames := make(map[string]bool, len(s.dates))
	for _, d := range s.dates {
		dateNames[strings.ToLower(d)] = true
	}
	var series []string
	for _, name := range s.numeric {
		if dateNames[strings.ToLower(name)] {
			continue
		}
		if class, _ := s.classes.Of(name); class != table.Numeric {
			continue
		}
		series = append(series, name)
	}
	if len(series) == 0 {
		return Spec{}, errNoSeries
	}

	targets := []table.Target{{Column: x, As: table.DateLike}}
	for _, name := range series {
		targets = append(targets, table.Target{Column: name, As: table.Numeric})
	}
	frame, err := table.Clean(s.result, targets)
	if err != nil {
		return Spec{}, err
	}
	return lineOver(frame, x, series), nil
}

func buildNumericPair(s *shape) (Spec, error) {
	if id := identifierColumn(s.numeric); id != "" {
		spec, err := identifierBar(s, id)
		if err == nil {
			return spec, nil
		}
		logger.Debug("Identifier bar chart unavailable, trying scatter", zap.String("column", id), zap.Error(err))
	}

	targets := make([]table.Target, 0, len(s.numeric))
	for _, name := range s.numeric {
		targets = append(targets, table.Target{Column: name, As: table.Numeric})
	}
	var keep []string
	for _, name := range s.result.Names() {
		if class, _ := s.classes.Of(name); class != table.Numeric {
			keep = append(keep, name)
		}
	}
	frame, err := table.Clean(s.result, targets, keep...)
	if err != nil {
		return Spec{}, err
	}
	return scatterOf(frame, s.numeric[0], s.numeric[1], s.result.Names()), nil
}

func identifierBar(s *shape, id string) (Spec, error) {
	var y string
	for _, name := range s.numeric {
		if name != id {
			y = name
			break
		}
	}
	if y == "" {
		return Spec{}, errNoSeries
	}
	// Only the measure is cleaned; identifiers pass through as they are.
	frame, err := table.Clean(s.result, []table.Target{{Column: y, As: table.Numeric}}, id)
	if err != nil {
		return Spec{}, err
	}
	return barBy(frame, id, y), nil
}

func identifierColumn(names []string) string {
	for _, name := range names {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "item_id") || lower == "id" {
			return name
		}
	}
	return ""
}

func buildCategory(s *shape) (Spec, error) {
	x, y := s.categorical[0], s.numeric[0]
	frame, err := table.Clean(s.result, []table.Target{{Column: y, As: table.Numeric}}, x)
	if err != nil {
		return Spec{}, err
	}

	if len(s.numeric) == 1 && isTotal(y) {
		if pie, ok := companionPie(frame, x, y); ok {
			logger.Debug("Companion pie chart available", zap.String("title", pie.Title), zap.Int("slices", pie.Points()))
		}
	}
	return barBy(frame, x, y), nil
}

func isTotal(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "sum") || strings.Contains(lower, "count")
}

// companionPie builds a pie alongside a category bar. It is advisory only;
// failures are swallowed so the bar always stands.
func companionPie(frame *table.Result, names, values string) (spec Spec, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			logger.Debug("Companion pie chart failed", zap.Any("panic", p))
			spec, ok = None(), false
		}
	}()

	col, found := frame.Column(values)
	if !found {
		return None(), false
	}
	for _, v := range col.Values {
		if f, isNum := v.(float64); !isNum || f < 0 {
			return None(), false
		}
	}
	spec = pieOf(frame, names, values)
	spec.Layout = defaultLayout(false)
	return spec, true
}

func buildDistribution(s *shape) (Spec, error) {
	x := s.numeric[0]
	frame, err := table.Clean(s.result, []table.Target{{Column: x, As: table.Numeric}})
	if err != nil {
		return Spec{}, err
	}
	return histogramOf(frame, x), nil
}

package evaluation

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ecom-insights/backend/internal/llm"
	"github.com/ecom-insights/backend/internal/table"
	"github.com/ecom-insights/backend/pkg/logger"
)

//go:embed golden.yaml
var goldenYAML []byte

type SQLGenerator interface {
	GenerateSQL(ctx context.Context, question string) (string, error)
}

type Runner interface {
	Query(ctx context.Context, sql string) (*table.Result, error)
}

// Evaluator measures execution accuracy: generated SQL is correct when it
// returns the same rows as the reference SQL.
type Evaluator struct {
	generator SQLGenerator
	runner    Runner
}

type Dataset struct {
	Items []DatasetItem `yaml:"items"`
}

type DatasetItem struct {
	Question string `yaml:"question"`
	SQL      string `yaml:"sql"`
	Category string `yaml:"category"`
}

type Outcome string

const (
	OutcomeMatch        Outcome = "match"
	OutcomeMismatch     Outcome = "mismatch"
	OutcomeUnanswerable Outcome = "unanswerable"
	OutcomeError        Outcome = "error"
)

type ItemResult struct {
	Question     string  `json:"question"`
	Category     string  `json:"category"`
	ReferenceSQL string  `json:"reference_sql"`
	GeneratedSQL string  `json:"generated_sql"`
	Outcome      Outcome `json:"outcome"`
	Error        string  `json:"error,omitempty"`
}

type CategoryScore struct {
	Total   int `json:"total"`
	Matched int `json:"matched"`
}

type Report struct {
	TotalQueries      int                       `json:"total_queries"`
	MatchCount        int                       `json:"match_count"`
	MismatchCount     int                       `json:"mismatch_count"`
	UnanswerableCount int                       `json:"unanswerable_count"`
	ErrorCount        int                       `json:"error_count"`
	Accuracy          float64                   `json:"accuracy"`
	ByCategory        map[string]*CategoryScore `json:"by_category"`
	Items             []ItemResult              `json:"items"`
}

func NewEvaluator(generator SQLGenerator, runner Runner) *Evaluator {
	return &Evaluator{
		generator: generator,
		runner:    runner,
	}
}

// DefaultDataset returns the built-in golden set.
func DefaultDataset() (*Dataset, error) {
	return LoadDataset(goldenYAML)
}

func LoadDataset(data []byte) (*Dataset, error) {
	var dataset Dataset
	if err := yaml.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	for i, item := range dataset.Items {
		if strings.TrimSpace(item.Question) == "" || strings.TrimSpace(item.SQL) == "" {
			return nil, fmt.Errorf("dataset item %d needs both a question and sql", i)
		}
	}
	return &dataset, nil
}

// EvaluateItem never fails; problems are reported in the item outcome.
func (e *Evaluator) EvaluateItem(ctx context.Context, item DatasetItem) ItemResult {
	result := ItemResult{
		Question:     item.Question,
		Category:     item.Category,
		ReferenceSQL: strings.TrimSpace(item.SQL),
	}

	expected, err := e.runner.Query(ctx, item.SQL)
	if err != nil {
		result.Outcome = OutcomeError
		result.Error = fmt.Sprintf("reference sql: %v", err)
		return result
	}

	sql, err := e.generator.GenerateSQL(ctx, item.Question)
	if errors.Is(err, llm.ErrUnanswerable) {
		result.Outcome = OutcomeUnanswerable
		return result
	}
	if err != nil {
		result.Outcome = OutcomeError
		result.Error = err.Error()
		return result
	}
	result.GeneratedSQL = sql

	actual, err := e.runner.Query(ctx, sql)
	if err != nil {
		result.Outcome = OutcomeError
		result.Error = err.Error()
		return result
	}

	if SameRows(expected, actual) {
		result.Outcome = OutcomeMatch
	} else {
		result.Outcome = OutcomeMismatch
	}
	return result
}

func (e *Evaluator) RunDatasetEvaluation(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{ByCategory: make(map[string]*CategoryScore)}

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("evaluation interrupted after %d items: %w", i, err)
		}
		logger.Debug("Evaluating item", zap.Int("index", i+1), zap.Int("total", len(dataset.Items)))

		result := e.EvaluateItem(ctx, item)
		report.add(result)

		if result.Outcome != OutcomeMatch {
			logger.Info("Evaluation item missed",
				zap.String("question", item.Question),
				zap.String("outcome", string(result.Outcome)),
				zap.String("error", result.Error),
			)
		}
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Int("match", report.MatchCount),
		zap.Int("mismatch", report.MismatchCount),
		zap.Int("unanswerable", report.UnanswerableCount),
		zap.Int("error", report.ErrorCount),
	)
	return report, nil
}

func (r *Report) add(result ItemResult) {
	r.Items = append(r.Items, result)
	r.TotalQueries++

	category := result.Category
	if category == "" {
		category = "uncategorized"
	}
	score, ok := r.ByCategory[category]
	if !ok {
		score = &CategoryScore{}
		r.ByCategory[category] = score
	}
	score.Total++

	switch result.Outcome {
	case OutcomeMatch:
		r.MatchCount++
		score.Matched++
	case OutcomeMismatch:
		r.MismatchCount++
	case OutcomeUnanswerable:
		r.UnanswerableCount++
	default:
		r.ErrorCount++
	}
	r.Accuracy = percentage(r.MatchCount, r.TotalQueries)
}

func percentage(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// SameRows compares two results as multisets of rows. Column names and row
// order are ignored and numbers compare after rounding to 6 decimals.
func SameRows(a, b *table.Result) bool {
	if a.NumRows() != b.NumRows() {
		return false
	}
	if a.NumRows() > 0 && a.NumColumns() != b.NumColumns() {
		return false
	}
	left, right := canonicalRows(a), canonicalRows(b)
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}

func canonicalRows(r *table.Result) []string {
	rows := make([]string, r.NumRows())
	cells := make([]string, r.NumColumns())
	for i := range rows {
		for j := range cells {
			cells[j] = canonicalValue(r.Value(i, j))
		}
		rows[i] = strings.Join(cells, "\x1f")
	}
	sort.Strings(rows)
	return rows
}

func canonicalValue(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(math.Round(x*1e6)/1e6, 'f', -1, 64)
	default:
		return table.FormatValue(v)
	}
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, `
Evaluation Report
=================

Total Queries: %d

Outcomes:
- Match: %d (%.1f%%)
- Mismatch: %d (%.1f%%)
- Unanswerable: %d (%.1f%%)
- Error: %d (%.1f%%)

Execution Accuracy: %.1f%%

By Category:
`,
		r.TotalQueries,
		r.MatchCount, percentage(r.MatchCount, r.TotalQueries),
		r.MismatchCount, percentage(r.MismatchCount, r.TotalQueries),
		r.UnanswerableCount, percentage(r.UnanswerableCount, r.TotalQueries),
		r.ErrorCount, percentage(r.ErrorCount, r.TotalQueries),
		r.Accuracy,
	)

	categories := make([]string, 0, len(r.ByCategory))
	for c := range r.ByCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		s := r.ByCategory[c]
		fmt.Fprintf(&b, "- %s: %d/%d (%.1f%%)\n", c, s.Matched, s.Total, percentage(s.Matched, s.Total))
	}
	return b.String()
}

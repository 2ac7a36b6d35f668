package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	cache "github.com/ecom-insights/backend/internal/cache/redis"
	"github.com/ecom-insights/backend/internal/chart"
	"github.com/ecom-insights/backend/internal/llm"
	"github.com/ecom-insights/backend/internal/metrics"
	"github.com/ecom-insights/backend/internal/storage/models"
	"github.com/ecom-insights/backend/internal/table"
	"github.com/ecom-insights/backend/pkg/logger"
	"github.com/ecom-insights/backend/pkg/utils"
)

// ErrEmptyQuestion is returned when the question is blank.
var ErrEmptyQuestion = errors.New("question must not be empty")

type SQLGenerator interface {
	GenerateSQL(ctx context.Context, question string) (string, error)
}

type Humanizer interface {
	Humanize(ctx context.Context, question, sql string, res *table.Result) (string, error)
}

type Store interface {
	Query(ctx context.Context, sql string) (*table.Result, error)
	InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error
}

// SQLCache is optional; a nil cache disables caching.
type SQLCache interface {
	GetSQL(ctx context.Context, questionHash string) (*cache.CachedSQL, bool, error)
	SetSQL(ctx context.Context, questionHash string, entry cache.CachedSQL) error
}

// Engine runs the question pipeline: SQL generation, execution, chart
// selection and humanization. Each step is usable on its own.
type Engine struct {
	store     Store
	generator SQLGenerator
	humanizer Humanizer
	cache     SQLCache
	model     string
}

// Stage names a completed pipeline step.
type Stage string

const (
	StageSQL      Stage = "sql"
	StageExecute  Stage = "execute"
	StageChart    Stage = "chart"
	StageHumanize Stage = "humanize"
)

// ProgressFunc is called after each stage with the partially filled answer.
type ProgressFunc func(stage Stage, ans *Answer)

type GeneratedSQL struct {
	SQL    string
	Cached bool
}

type Answer struct {
	ID       string
	Question string
	SQL      string
	Cached   bool
	Result   *table.Result
	Chart    chart.Spec
	Answer   string
	// Degraded is set when the answer is a fallback because humanization
	// failed.
	Degraded  bool
	LatencyMS int64
}

func NewEngine(store Store, generator SQLGenerator, humanizer Humanizer, sqlCache SQLCache, model string) *Engine {
	return &Engine{
		store:     store,
		generator: generator,
		humanizer: humanizer,
		cache:     sqlCache,
		model:     model,
	}
}

func observe(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (e *Engine) GenerateSQL(ctx context.Context, question string) (*GeneratedSQL, error) {
	defer observe("generate_sql", time.Now())

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	key := utils.QuestionKey(question)
	if e.cache != nil {
		entry, ok, err := e.cache.GetSQL(ctx, key)
		switch {
		case err != nil:
			logger.Warn("SQL cache lookup failed", zap.Error(err))
		case ok:
			metrics.CacheHits.WithLabelValues("sql").Inc()
			return &GeneratedSQL{SQL: entry.SQL, Cached: true}, nil
		default:
			metrics.CacheMisses.WithLabelValues("sql").Inc()
		}
	}

	sql, err := e.generator.GenerateSQL(ctx, question)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		entry := cache.CachedSQL{Question: question, SQL: sql, Model: e.model, CachedAt: time.Now().UTC()}
		if err := e.cache.SetSQL(ctx, key, entry); err != nil {
			logger.Warn("Failed to cache SQL", zap.Error(err))
		}
	}
	return &GeneratedSQL{SQL: sql}, nil
}

func (e *Engine) Execute(ctx context.Context, sql string) (*table.Result, error) {
	defer observe("execute", time.Now())

	res, err := e.store.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	metrics.RowsReturned.Observe(float64(res.NumRows()))
	return res, nil
}

// Chart picks a chart for res and records which rules fell through.
func (e *Engine) Chart(res *table.Result, question string) chart.Spec {
	defer observe("chart", time.Now())

	spec, attempts := chart.Classify(res)
	for _, a := range attempts {
		switch a.Outcome {
		case chart.OutcomeFailed:
			metrics.ChartRuleFallthroughs.WithLabelValues(a.Rule.String()).Inc()
		case chart.OutcomeFault:
			logger.Error("Chart engine fault", zap.String("question", question), zap.String("reason", a.Reason))
		}
	}
	metrics.ChartsTotal.WithLabelValues(spec.Kind.String()).Inc()

	logger.Debug("Chart selected",
		zap.String("kind", spec.Kind.String()),
		zap.String("title", spec.Title),
		zap.Int("rules_tried", len(attempts)),
	)
	return spec
}

// Humanize never fails: when the model is unavailable it falls back to a
// plain summary and reports degraded.
func (e *Engine) Humanize(ctx context.Context, question, sql string, res *table.Result) (answer string, degraded bool) {
	defer observe("humanize", time.Now())

	text, err := e.humanizer.Humanize(ctx, question, sql, res)
	if err == nil {
		if plain := plainText(text); plain != "" {
			return plain, false
		}
	}
	logger.Warn("Humanization failed, using fallback answer", zap.Error(err))
	return FallbackAnswer(res), true
}

// FallbackAnswer summarizes a result without a model.
func FallbackAnswer(res *table.Result) string {
	switch {
	case res.Empty():
		return "No matching data was found for this question."
	case res.NumRows() == 1 && res.NumColumns() == 1:
		return fmt.Sprintf("The result is %s.", table.FormatValue(res.Value(0, 0)))
	case res.NumRows() == 1:
		return "The query returned a single row; see the table for details."
	default:
		return fmt.Sprintf("The query returned %d rows; see the table for details.", res.NumRows())
	}
}

// plainText strips any markup the model added so the answer renders as text.
func plainText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Ask runs every step and records the outcome in the query history.
func (e *Engine) Ask(ctx context.Context, question string) (*Answer, error) {
	return e.AskWithProgress(ctx, question, nil)
}

// AskWithProgress is Ask reporting each finished stage to progress.
func (e *Engine) AskWithProgress(ctx context.Context, question string, progress ProgressFunc) (*Answer, error) {
	start := time.Now()
	ans := &Answer{ID: uuid.New().String(), Question: strings.TrimSpace(question)}

	logger.Info("Processing question", zap.String("query_id", ans.ID), zap.String("question", ans.Question))

	if progress == nil {
		progress = func(Stage, *Answer) {}
	}
	err := e.ask(ctx, ans, progress)
	ans.LatencyMS = time.Since(start).Milliseconds()
	observe("ask", start)

	status := models.StatusAnswered
	switch {
	case errors.Is(err, llm.ErrUnanswerable):
		status = models.StatusUnanswerable
	case err != nil:
		status = models.StatusFailed
	}
	metrics.QueryTotal.WithLabelValues(string(status)).Inc()

	if ans.Question != "" {
		e.record(ctx, ans, status, err)
	}

	if err != nil {
		return ans, err
	}
	logger.Info("Question answered",
		zap.String("query_id", ans.ID),
		zap.Int("rows", ans.Result.NumRows()),
		zap.String("chart", ans.Chart.Kind.String()),
		zap.Int64("latency_ms", ans.LatencyMS),
	)
	return ans, nil
}

func (e *Engine) ask(ctx context.Context, ans *Answer, progress ProgressFunc) error {
	gen, err := e.GenerateSQL(ctx, ans.Question)
	if err != nil {
		return err
	}
	ans.SQL, ans.Cached = gen.SQL, gen.Cached
	progress(StageSQL, ans)

	res, err := e.Execute(ctx, ans.SQL)
	if err != nil {
		return err
	}
	ans.Result = res
	progress(StageExecute, ans)

	ans.Chart = e.Chart(res, ans.Question)
	progress(StageChart, ans)

	ans.Answer, ans.Degraded = e.Humanize(ctx, ans.Question, ans.SQL, res)
	progress(StageHumanize, ans)
	return nil
}

func (e *Engine) record(ctx context.Context, ans *Answer, status models.QueryStatus, cause error) {
	rec := &models.QueryRecord{
		ID:        ans.ID,
		Question:  ans.Question,
		SQL:       ans.SQL,
		Answer:    ans.Answer,
		ChartKind: ans.Chart.Kind.String(),
		RowCount:  ans.Result.NumRows(),
		Status:    status,
		LatencyMS: ans.LatencyMS,
		CreatedAt: time.Now(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := e.store.InsertQueryRecord(ctx, rec); err != nil {
		logger.Warn("Failed to record query", zap.String("query_id", ans.ID), zap.Error(err))
	}
}

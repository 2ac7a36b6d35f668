package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecom_insights_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecom_insights_query_total",
			Help: "Total number of questions processed",
		},
		[]string{"status"},
	)

	RowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecom_insights_rows_returned",
			Help:    "Rows returned per executed query",
			Buckets: []float64{0, 1, 2, 5, 10, 50, 100, 500, 1000},
		},
	)

	ChartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecom_insights_charts_total",
			Help: "Charts produced by kind",
		},
		[]string{"kind"},
	)

	ChartRuleFallthroughs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecom_insights_chart_rule_fallthroughs_total",
			Help: "Chart rules whose precondition held but whose construction failed",
		},
		[]string{"rule"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecom_insights_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecom_insights_llm_retries_total",
			Help: "LLM call retries",
		},
		[]string{"model"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ecom_insights_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecom_insights_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecom_insights_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	FeedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecom_insights_feedback_total",
			Help: "User feedback on answers",
		},
		[]string{"helpful"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecom_insights_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(StageDuration)
		prometheus.MustRegister(QueryTotal)
		prometheus.MustRegister(RowsReturned)
		prometheus.MustRegister(ChartsTotal)
		prometheus.MustRegister(ChartRuleFallthroughs)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(LLMRetries)
		prometheus.MustRegister(CircuitState)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(FeedbackTotal)
		prometheus.MustRegister(RateLimited)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ecom-insights/backend/internal/llm"
	"github.com/ecom-insights/backend/internal/query"
	"github.com/ecom-insights/backend/internal/storage/models"
	"github.com/ecom-insights/backend/internal/storage/sqlite"
	"github.com/ecom-insights/backend/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type HistoryStore interface {
	GetQueryRecord(ctx context.Context, id string) (*models.QueryRecord, error)
	GetQueryHistory(ctx context.Context, limit int) ([]models.QueryRecord, error)
}

// QueryHandler exposes the pipeline both step by step, for progressive
// rendering, and as a single /ask call.
type QueryHandler struct {
	engine  *query.Engine
	history HistoryStore
}

func NewQueryHandler(engine *query.Engine, history HistoryStore) *QueryHandler {
	return &QueryHandler{
		engine:  engine,
		history: history,
	}
}

// generationError maps SQL generation failures to a status and message.
func generationError(err error) (int, string) {
	switch {
	case errors.Is(err, query.ErrEmptyQuestion):
		return fiber.StatusBadRequest, "Missing 'question' in request."
	case errors.Is(err, llm.ErrUnanswerable):
		return fiber.StatusUnprocessableEntity, "SQL generation failed: " + err.Error()
	default:
		return fiber.StatusInternalServerError, "SQL generation internal error: " + err.Error()
	}
}

// executionError maps query execution failures to a status and message.
func executionError(err error) (int, string) {
	if errors.Is(err, sqlite.ErrNotReadOnly) {
		return fiber.StatusBadRequest, "Database query error: " + err.Error()
	}
	return fiber.StatusInternalServerError, "Database query error: " + err.Error()
}

func (h *QueryHandler) GenerateSQL(c *fiber.Ctx) error {
	var req struct {
		Question string `json:"question"`
	}
	if err := decodeBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	gen, err := h.engine.GenerateSQL(c.UserContext(), req.Question)
	if err != nil {
		status, msg := generationError(err)
		logger.Warn("SQL generation failed", zap.String("question", req.Question), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"question": req.Question, "error": msg})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"sql":     gen.SQL,
		"cached":  gen.Cached,
	})
}

func (h *QueryHandler) ExecuteQuery(c *fiber.Ctx) error {
	var req struct {
		SQL      string `json:"sql"`
		Question string `json:"question"`
	}
	if err := decodeBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.SQL) == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Missing 'sql' in request.")
	}

	res, err := h.engine.Execute(c.UserContext(), req.SQL)
	if err != nil {
		status, msg := executionError(err)
		logger.Warn("Query execution failed", zap.String("sql", req.SQL), zap.Error(err))
		return errorJSON(c, status, msg)
	}

	html, err := ResultHTML(res)
	if err != nil {
		logger.Error("Failed to render result table", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to render results")
	}

	body := resultFields(res)
	body["success"] = true
	body["raw_results_html"] = html
	body["sql"] = req.SQL
	body["question"] = req.Question
	return c.JSON(body)
}

func (h *QueryHandler) GenerateChart(c *fiber.Ctx) error {
	var req resultInput
	if err := decodeBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if !req.hasResult() {
		return errorJSON(c, fiber.StatusBadRequest, "Missing 'raw_results_records' in request.")
	}

	res, err := req.result()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid result data: "+err.Error())
	}

	body := chartFields(h.engine.Chart(res, req.Question))
	body["success"] = true
	return c.JSON(body)
}

func (h *QueryHandler) HumanizeAnswer(c *fiber.Ctx) error {
	var req resultInput
	if err := decodeBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if !req.hasResult() || strings.TrimSpace(req.SQL) == "" || strings.TrimSpace(req.Question) == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Missing data for humanization.")
	}

	res, err := req.result()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid result data: "+err.Error())
	}

	answer, degraded := h.engine.Humanize(c.UserContext(), req.Question, req.SQL, res)
	return c.JSON(fiber.Map{
		"success":  true,
		"answer":   answer,
		"degraded": degraded,
	})
}

// Ask runs the whole pipeline in one request.
func (h *QueryHandler) Ask(c *fiber.Ctx) error {
	var req struct {
		Question string `json:"question"`
	}
	if err := decodeBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Missing 'question' in request")
	}

	ans, err := h.engine.Ask(c.UserContext(), req.Question)
	if err != nil {
		status, msg := generationError(err)
		if ans != nil && ans.SQL != "" {
			status, msg = executionError(err)
		}
		logger.Error("Failed to answer question", zap.String("question", req.Question), zap.Error(err))
		body := fiber.Map{"question": req.Question, "error": msg}
		if ans != nil {
			body["id"] = ans.ID
			if ans.SQL != "" {
				body["sql_query"] = ans.SQL
			}
		}
		return c.Status(status).JSON(body)
	}

	html, err := ResultHTML(ans.Result)
	if err != nil {
		logger.Error("Failed to render result table", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to render results")
	}

	body := chartFields(ans.Chart)
	body["id"] = ans.ID
	body["question"] = ans.Question
	body["sql_query"] = ans.SQL
	body["cached_sql"] = ans.Cached
	body["answer"] = ans.Answer
	body["degraded"] = ans.Degraded
	body["raw_results"] = ans.Result.Records()
	body["html_table"] = html
	body["latency_ms"] = ans.LatencyMS
	for k, v := range resultFields(ans.Result) {
		if k != "raw_results_records" {
			body[k] = v
		}
	}
	return c.JSON(body)
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		return errorJSON(c, fiber.StatusBadRequest, "limit must be between 1 and 200")
	}

	records, err := h.history.GetQueryHistory(c.UserContext(), limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load history")
	}
	if records == nil {
		records = []models.QueryRecord{}
	}

	return c.JSON(fiber.Map{
		"history": records,
	})
}

func (h *QueryHandler) GetQueryRecord(c *fiber.Ctx) error {
	record, err := h.history.GetQueryRecord(c.UserContext(), c.Params("id"))
	if errors.Is(err, sql.ErrNoRows) {
		return errorJSON(c, fiber.StatusNotFound, "Query not found")
	}
	if err != nil {
		logger.Error("Failed to load query record", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load query")
	}
	return c.JSON(record)
}

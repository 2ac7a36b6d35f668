package handlers

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ecom-insights/backend/internal/metrics"
	"github.com/ecom-insights/backend/internal/storage/models"
	"github.com/ecom-insights/backend/pkg/logger"
)

const maxCommentLength = 2000

type FeedbackStore interface {
	GetQueryRecord(ctx context.Context, id string) (*models.QueryRecord, error)
	InsertFeedback(ctx context.Context, fb *models.Feedback) error
	GetFeedbackStats(ctx context.Context) (*models.FeedbackStats, error)
}

type FeedbackHandler struct {
	store FeedbackStore
}

func NewFeedbackHandler(store FeedbackStore) *FeedbackHandler {
	return &FeedbackHandler{store: store}
}

func (h *FeedbackHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req struct {
		QueryID string `json:"query_id"`
		Helpful *bool  `json:"helpful"`
		Comment string `json:"comment"`
	}
	if err := decodeBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.QueryID == "" || req.Helpful == nil {
		return errorJSON(c, fiber.StatusBadRequest, "query_id and helpful are required")
	}
	if len(req.Comment) > maxCommentLength {
		return errorJSON(c, fiber.StatusBadRequest, "Comment is too long")
	}

	ctx := c.UserContext()
	if _, err := h.store.GetQueryRecord(ctx, req.QueryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errorJSON(c, fiber.StatusNotFound, "Query not found")
		}
		logger.Error("Failed to look up query for feedback", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to record feedback")
	}

	fb := &models.Feedback{
		QueryID:   req.QueryID,
		Helpful:   *req.Helpful,
		Comment:   req.Comment,
		CreatedAt: time.Now(),
	}
	if err := h.store.InsertFeedback(ctx, fb); err != nil {
		logger.Error("Failed to record feedback", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to record feedback")
	}
	metrics.FeedbackTotal.WithLabelValues(strconv.FormatBool(fb.Helpful)).Inc()

	logger.Info("Feedback recorded", zap.String("query_id", fb.QueryID), zap.Bool("helpful", fb.Helpful))
	return c.Status(fiber.StatusCreated).JSON(fb)
}

func (h *FeedbackHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.store.GetFeedbackStats(c.UserContext())
	if err != nil {
		logger.Error("Failed to load feedback stats", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load feedback stats")
	}

	rate := 0.0
	if stats.Total > 0 {
		rate = float64(stats.Helpful) / float64(stats.Total)
	}
	return c.JSON(fiber.Map{
		"total":        stats.Total,
		"helpful":      stats.Helpful,
		"helpful_rate": rate,
	})
}

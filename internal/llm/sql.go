package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ecom-insights/backend/pkg/logger"
)

// ErrUnanswerable means the model declined: the question cannot be
// expressed against the dataset.
var ErrUnanswerable = errors.New("question cannot be answered from the available data")

var (
	openingFence   = regexp.MustCompile("(?i)^\\s*`{3,}\\s*(sqlite|sql)?\\s*\\n?")
	closingFence   = regexp.MustCompile("\\s*\\n?`{3,}\\s*$")
	leadingLabel   = regexp.MustCompile(`(?i)^\s*(sqlite|sql|query)\b\s*:?\s*`)
	trailingDebris = regexp.MustCompile(`(?i)\s*\b(sqlite|sql|query|lite)\s*$`)
)

// GenerateSQL turns a question into one SQLite statement ending in ";".
func (c *Client) GenerateSQL(ctx context.Context, question string) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: sqlSystemPrompt,
		UserPrompt:   buildSQLPrompt(c.schema, question),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate sql: %w", err)
	}

	sql, err := NormalizeSQL(resp.Content)
	if err != nil {
		logger.Info("Model declined question", zap.String("question", question), zap.String("raw", resp.Content))
		return "", err
	}

	logger.Debug("SQL generated", zap.String("question", question), zap.String("sql", sql))
	return sql, nil
}

// NormalizeSQL cleans a raw model answer: code fences and "SQL:" style
// labels are removed and only the first statement is kept.
func NormalizeSQL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(openingFence.ReplaceAllString(s, ""))
	s = strings.TrimSpace(closingFence.ReplaceAllString(s, ""))
	s = strings.TrimSpace(leadingLabel.ReplaceAllString(s, ""))

	if s == "" {
		return "", ErrEmptyCompletion
	}
	if strings.HasPrefix(strings.ToUpper(s), "ERROR") || strings.HasPrefix(s, "-- ERROR") {
		return "", ErrUnanswerable
	}

	if i := strings.Index(s, ";"); i >= 0 {
		return strings.TrimSpace(s[:i]) + ";", nil
	}
	s = strings.TrimSpace(trailingDebris.ReplaceAllString(s, ""))
	if s == "" {
		return "", ErrEmptyCompletion
	}
	return s + ";", nil
}

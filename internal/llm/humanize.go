package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/ecom-insights/backend/internal/table"
	"github.com/ecom-insights/backend/pkg/logger"
)

const noResultsText = "No results found."

// maxPromptRows keeps large results from blowing up the humanize prompt.
const maxPromptRows = 50

// Humanize answers the question in one sentence from the executed query
// and its result.
func (c *Client) Humanize(ctx context.Context, question, sql string, res *table.Result) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		Model:        c.humanizeModel,
		SystemPrompt: humanizeSystemPrompt,
		UserPrompt:   buildHumanizePrompt(question, sql, ResultText(res)),
		Temperature:  0.3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to humanize answer: %w", err)
	}

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", ErrEmptyCompletion
	}

	logger.Debug("Answer humanized", zap.String("question", question), zap.Int("answer_length", len(answer)))
	return answer, nil
}

// ResultText renders a result as a markdown table for prompting.
func ResultText(res *table.Result) string {
	if res.Empty() {
		return noResultsText
	}

	rows := res.Strings()
	truncated := 0
	if len(rows) > maxPromptRows {
		truncated = len(rows) - maxPromptRows
		rows = rows[:maxPromptRows]
	}

	var b strings.Builder
	tw := tablewriter.NewWriter(&b)
	tw.SetHeader(res.Names())
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	tw.SetCenterSeparator("|")
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.AppendBulk(rows)
	tw.Render()

	if truncated > 0 {
		fmt.Fprintf(&b, "\n(%d more rows not shown)\n", truncated)
	}
	return b.String()
}

package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/gofiber/fiber/v2"

	"github.com/ecom-insights/backend/internal/chart"
	"github.com/ecom-insights/backend/internal/table"
)

const noDataHTML = `<div class="text-danger">No matching data found in database.</div>`

var resultTableTmpl = template.Must(template.New("result").Parse(
	`<table class="table table-striped"><thead><tr>{{range .Names}}<th>{{.}}</th>{{end}}</tr></thead>` +
		`<tbody>{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody></table>`))

// ResultHTML renders res as an HTML table for direct display.
func ResultHTML(res *table.Result) (string, error) {
	if res.Empty() {
		return noDataHTML, nil
	}
	var buf bytes.Buffer
	err := resultTableTmpl.Execute(&buf, struct {
		Names []string
		Rows  [][]string
	}{res.Names(), res.Strings()})
	if err != nil {
		return "", fmt.Errorf("failed to render result table: %w", err)
	}
	return buf.String(), nil
}

// resultFields are the keys every endpoint uses to carry a result: the
// ordered columns/rows pair and the record form.
func resultFields(res *table.Result) fiber.Map {
	rows := res.Rows()
	if rows == nil {
		rows = [][]any{}
	}
	return fiber.Map{
		"columns":             res.Names(),
		"rows":                rows,
		"raw_results_records": res.Records(),
	}
}

// chartFields returns the chart description and the bare Plotly figure, both
// null when no chart applies.
func chartFields(spec chart.Spec) fiber.Map {
	var figure any
	if !spec.IsNone() {
		figure = spec.Figure()
	}
	return fiber.Map{
		"chart":           spec,
		"chart_data_json": figure,
	}
}

// resultInput is how clients hand a result back for charting or
// humanization. Columns and rows take precedence because records lose
// column order.
type resultInput struct {
	Question   string          `json:"question"`
	SQL        string          `json:"sql"`
	Columns    []string        `json:"columns"`
	Rows       [][]any         `json:"rows"`
	RawResults json.RawMessage `json:"raw_results_records"`
}

func (in *resultInput) hasResult() bool {
	return in.Columns != nil || isPresent(in.RawResults)
}

func (in *resultInput) result() (*table.Result, error) {
	if in.Columns != nil {
		rows := make([][]any, len(in.Rows))
		for i, row := range in.Rows {
			rows[i] = make([]any, len(row))
			for j, v := range row {
				rows[i][j] = table.NormalizeJSON(v)
			}
		}
		return table.FromRows(in.Columns, nil, rows)
	}
	return table.DecodeRecords(in.RawResults)
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// decodeBody parses the JSON body keeping numbers exact.
func decodeBody(c *fiber.Ctx, v any) error {
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	return dec.Decode(v)
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

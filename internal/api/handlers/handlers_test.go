package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofiber/fiber/v2"

	"github.com/ecom-insights/backend/internal/llm"
	"github.com/ecom-insights/backend/internal/query"
	"github.com/ecom-insights/backend/internal/storage/models"
	"github.com/ecom-insights/backend/internal/storage/sqlite"
	"github.com/ecom-insights/backend/internal/table"
)

type stubGenerator struct {
	sql string
	err error
}

func (s stubGenerator) GenerateSQL(ctx context.Context, question string) (string, error) {
	return s.sql, s.err
}

type stubHumanizer struct{}

func (stubHumanizer) Humanize(ctx context.Context, question, sql string, res *table.Result) (string, error) {
	return fmt.Sprintf("Found %d rows.", res.NumRows()), nil
}

// memoryStore serves one fixed result and keeps history and feedback in
// memory.
type memoryStore struct {
	result   *table.Result
	err      error
	records  map[string]*models.QueryRecord
	order    []string
	feedback []*models.Feedback
}

func newMemoryStore(res *table.Result) *memoryStore {
	return &memoryStore{result: res, records: map[string]*models.QueryRecord{}}
}

func (m *memoryStore) Query(ctx context.Context, q string) (*table.Result, error) {
	if err := sqlite.CheckReadOnly(q); err != nil {
		return nil, err
	}
	return m.result, m.err
}

func (m *memoryStore) InsertQueryRecord(ctx context.Context, r *models.QueryRecord) error {
	m.records[r.ID] = r
	m.order = append(m.order, r.ID)
	return nil
}

func (m *memoryStore) GetQueryRecord(ctx context.Context, id string) (*models.QueryRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("failed to get query record: %w", sql.ErrNoRows)
	}
	return r, nil
}

func (m *memoryStore) GetQueryHistory(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	var out []models.QueryRecord
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.records[m.order[i]])
	}
	return out, nil
}

func (m *memoryStore) InsertFeedback(ctx context.Context, fb *models.Feedback) error {
	fb.ID = int64(len(m.feedback) + 1)
	m.feedback = append(m.feedback, fb)
	return nil
}

func (m *memoryStore) GetFeedbackStats(ctx context.Context) (*models.FeedbackStats, error) {
	stats := &models.FeedbackStats{Total: len(m.feedback)}
	for _, fb := range m.feedback {
		if fb.Helpful {
			stats.Helpful++
		}
	}
	return stats, nil
}

func spendByItem(t *testing.T) *table.Result {
	t.Helper()
	res, err := table.FromRows(
		[]string{"item_id", "ad_spend"},
		[]table.ColumnType{table.TypeInteger, table.TypeReal},
		[][]any{{int64(7), 42.0}, {int64(3), 18.5}},
	)
	if err != nil {
		t.Fatalf("FromRows failed: %v", err)
	}
	return res
}

func newTestApp(store *memoryStore, gen stubGenerator) *fiber.App {
	engine := query.NewEngine(store, gen, stubHumanizer{}, nil, "test-model")
	qh := NewQueryHandler(engine, store)
	fh := NewFeedbackHandler(store)

	app := fiber.New()
	api := app.Group("/api")
	api.Post("/generate_sql", qh.GenerateSQL)
	api.Post("/execute_query", qh.ExecuteQuery)
	api.Post("/generate_chart", qh.GenerateChart)
	api.Post("/humanize_answer", qh.HumanizeAnswer)
	api.Post("/ask", qh.Ask)
	api.Get("/history", qh.GetQueryHistory)
	api.Get("/history/:id", qh.GetQueryRecord)
	api.Post("/feedback", fh.SubmitFeedback)
	api.Get("/feedback/stats", fh.GetStats)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("%s %s returned non-JSON %q", method, path, data)
	}
	return resp.StatusCode, out
}

func TestGenerateSQL(t *testing.T) {
	app := newTestApp(newMemoryStore(nil), stubGenerator{sql: "SELECT 1;"})

	status, body := do(t, app, "POST", "/api/generate_sql", `{"question":"anything"}`)
	if status != 200 || body["sql"] != "SELECT 1;" {
		t.Fatalf("got %d %v", status, body)
	}

	status, body = do(t, app, "POST", "/api/generate_sql", `{}`)
	if status != 400 {
		t.Errorf("missing question: got %d %v", status, body)
	}
}

func TestGenerateSQLUnanswerable(t *testing.T) {
	app := newTestApp(newMemoryStore(nil), stubGenerator{err: llm.ErrUnanswerable})

	status, body := do(t, app, "POST", "/api/generate_sql", `{"question":"weather?"}`)
	if status != 422 {
		t.Fatalf("status = %d, want 422", status)
	}
	if body["question"] != "weather?" || !strings.HasPrefix(body["error"].(string), "SQL generation failed") {
		t.Errorf("unexpected body %v", body)
	}
}

func TestExecuteQuery(t *testing.T) {
	app := newTestApp(newMemoryStore(spendByItem(t)), stubGenerator{})

	status, body := do(t, app, "POST", "/api/execute_query", `{"sql":"SELECT item_id, ad_spend FROM ad_sales_metrics;","question":"q"}`)
	if status != 200 {
		t.Fatalf("got %d %v", status, body)
	}
	cols := body["columns"].([]any)
	if len(cols) != 2 || cols[0] != "item_id" || cols[1] != "ad_spend" {
		t.Errorf("columns = %v", cols)
	}
	if rows := body["rows"].([]any); len(rows) != 2 {
		t.Errorf("rows = %v", rows)
	}
	if recs := body["raw_results_records"].([]any); len(recs) != 2 {
		t.Errorf("records = %v", recs)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body["raw_results_html"].(string)))
	if err != nil {
		t.Fatalf("html did not parse: %v", err)
	}
	if n := doc.Find("tbody tr").Length(); n != 2 {
		t.Errorf("html has %d rows, want 2", n)
	}
	if got := doc.Find("thead th").First().Text(); got != "item_id" {
		t.Errorf("first header = %q", got)
	}
}

func TestExecuteQueryRejectsWrites(t *testing.T) {
	app := newTestApp(newMemoryStore(spendByItem(t)), stubGenerator{})

	status, _ := do(t, app, "POST", "/api/execute_query", `{"sql":"DELETE FROM ad_sales_metrics;"}`)
	if status != 400 {
		t.Errorf("write statement: status = %d, want 400", status)
	}
	status, _ = do(t, app, "POST", "/api/execute_query", `{"question":"q"}`)
	if status != 400 {
		t.Errorf("missing sql: status = %d, want 400", status)
	}
}

func TestExecuteQueryEmptyResult(t *testing.T) {
	empty, _ := table.FromRows([]string{"item_id"}, nil, nil)
	app := newTestApp(newMemoryStore(empty), stubGenerator{})

	status, body := do(t, app, "POST", "/api/execute_query", `{"sql":"SELECT item_id FROM t;"}`)
	if status != 200 {
		t.Fatalf("got %d %v", status, body)
	}
	if !strings.Contains(body["raw_results_html"].(string), "No matching data") {
		t.Errorf("html = %v", body["raw_results_html"])
	}
	if rows := body["rows"].([]any); len(rows) != 0 {
		t.Errorf("rows = %v", rows)
	}
}

func TestGenerateChartFromColumnsAndRows(t *testing.T) {
	app := newTestApp(newMemoryStore(nil), stubGenerator{})

	status, body := do(t, app, "POST", "/api/generate_chart",
		`{"columns":["item_id","ad_spend"],"rows":[[7,42.0],[3,18.5]],"question":"spend per item"}`)
	if status != 200 {
		t.Fatalf("got %d %v", status, body)
	}
	spec := body["chart"].(map[string]any)
	if spec["kind"] != "bar" || spec["x"] != "item_id" {
		t.Errorf("chart = %v", spec)
	}
	fig := body["chart_data_json"].(map[string]any)
	if traces := fig["data"].([]any); len(traces) != 1 {
		t.Errorf("figure traces = %v", traces)
	}
}

func TestGenerateChartFromRecords(t *testing.T) {
	app := newTestApp(newMemoryStore(nil), stubGenerator{})

	status, body := do(t, app, "POST", "/api/generate_chart",
		`{"raw_results_records":[{"date":"2025-06-01","ad_sales":120.5},{"date":"2025-06-02","ad_sales":95.0}]}`)
	if status != 200 {
		t.Fatalf("got %d %v", status, body)
	}
	spec := body["chart"].(map[string]any)
	if spec["kind"] != "line" || !strings.Contains(spec["title"].(string), "Ad Sales") {
		t.Errorf("chart = %v", spec)
	}
}

func TestGenerateChartNone(t *testing.T) {
	app := newTestApp(newMemoryStore(nil), stubGenerator{})

	status, body := do(t, app, "POST", "/api/generate_chart", `{"raw_results_records":[{"total":5}]}`)
	if status != 200 {
		t.Fatalf("got %d %v", status, body)
	}
	if body["chart"] != nil || body["chart_data_json"] != nil {
		t.Errorf("single cell should not chart: %v", body)
	}

	status, _ = do(t, app, "POST", "/api/generate_chart", `{"question":"q"}`)
	if status != 400 {
		t.Errorf("missing result: status = %d, want 400", status)
	}
}

func TestHumanizeAnswer(t *testing.T) {
	app := newTestApp(newMemoryStore(nil), stubGenerator{})

	status, body := do(t, app, "POST", "/api/humanize_answer",
		`{"question":"q","sql":"SELECT 1;","raw_results_records":[]}`)
	if status != 200 || body["answer"] != "Found 0 rows." {
		t.Fatalf("got %d %v", status, body)
	}

	status, _ = do(t, app, "POST", "/api/humanize_answer", `{"question":"q","raw_results_records":[]}`)
	if status != 400 {
		t.Errorf("missing sql: status = %d, want 400", status)
	}
}

func TestAskAndHistory(t *testing.T) {
	store := newMemoryStore(spendByItem(t))
	app := newTestApp(store, stubGenerator{sql: "SELECT item_id, ad_spend FROM ad_sales_metrics;"})

	status, body := do(t, app, "POST", "/api/ask", `{"question":"Ad spend per item"}`)
	if status != 200 {
		t.Fatalf("got %d %v", status, body)
	}
	for _, key := range []string{"question", "sql_query", "answer", "raw_results", "html_table", "chart_data_json", "columns", "rows", "id"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
	if body["answer"] != "Found 2 rows." {
		t.Errorf("answer = %v", body["answer"])
	}
	id := body["id"].(string)

	status, body = do(t, app, "GET", "/api/history?limit=5", "")
	if status != 200 {
		t.Fatalf("history: got %d %v", status, body)
	}
	history := body["history"].([]any)
	if len(history) != 1 || history[0].(map[string]any)["id"] != id {
		t.Errorf("history = %v", history)
	}

	status, body = do(t, app, "GET", "/api/history/"+id, "")
	if status != 200 || body["chart_kind"] != "bar" {
		t.Errorf("record: got %d %v", status, body)
	}

	status, _ = do(t, app, "GET", "/api/history/missing", "")
	if status != 404 {
		t.Errorf("unknown record: status = %d, want 404", status)
	}
	status, _ = do(t, app, "GET", "/api/history?limit=0", "")
	if status != 400 {
		t.Errorf("bad limit: status = %d, want 400", status)
	}
}

func TestAskFailures(t *testing.T) {
	app := newTestApp(newMemoryStore(nil), stubGenerator{err: llm.ErrUnanswerable})
	status, body := do(t, app, "POST", "/api/ask", `{"question":"weather?"}`)
	if status != 422 || body["question"] != "weather?" {
		t.Errorf("unanswerable: got %d %v", status, body)
	}

	store := newMemoryStore(nil)
	store.err = errors.New("no such column: revenue")
	app = newTestApp(store, stubGenerator{sql: "SELECT revenue FROM t;"})
	status, body = do(t, app, "POST", "/api/ask", `{"question":"revenue?"}`)
	if status != 500 || body["sql_query"] != "SELECT revenue FROM t;" {
		t.Errorf("execution failure: got %d %v", status, body)
	}

	status, _ = do(t, app, "POST", "/api/ask", `{}`)
	if status != 400 {
		t.Errorf("missing question: status = %d, want 400", status)
	}
}

func TestFeedback(t *testing.T) {
	store := newMemoryStore(spendByItem(t))
	app := newTestApp(store, stubGenerator{sql: "SELECT item_id, ad_spend FROM ad_sales_metrics;"})

	_, body := do(t, app, "POST", "/api/ask", `{"question":"Ad spend per item"}`)
	id := body["id"].(string)

	status, _ := do(t, app, "POST", "/api/feedback", fmt.Sprintf(`{"query_id":%q,"helpful":true}`, id))
	if status != 201 {
		t.Fatalf("feedback: status = %d, want 201", status)
	}
	status, _ = do(t, app, "POST", "/api/feedback", `{"query_id":"nope","helpful":false}`)
	if status != 404 {
		t.Errorf("unknown query: status = %d, want 404", status)
	}
	status, _ = do(t, app, "POST", "/api/feedback", fmt.Sprintf(`{"query_id":%q}`, id))
	if status != 400 {
		t.Errorf("missing helpful: status = %d, want 400", status)
	}

	status, body = do(t, app, "GET", "/api/feedback/stats", "")
	if status != 200 || body["total"] != 1.0 || body["helpful_rate"] != 1.0 {
		t.Errorf("stats: got %d %v", status, body)
	}
}

func TestResultHTMLEscapes(t *testing.T) {
	res, _ := table.FromRows([]string{"message"}, nil, [][]any{{"<script>alert(1)</script>"}})
	html, err := ResultHTML(res)
	if err != nil {
		t.Fatalf("ResultHTML failed: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("cell not escaped: %s", html)
	}
}

func TestSplitIntoChunks(t *testing.T) {
	got := splitIntoChunks("Total sales  were 42.")
	want := []string{"Total ", "sales ", "were ", "42."}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("chunks = %q", got)
	}
	if len(splitIntoChunks("")) != 0 {
		t.Error("empty text should yield no chunks")
	}
}

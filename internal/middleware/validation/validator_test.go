package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func post(t *testing.T, body, contentType string) int {
	t.Helper()
	app := fiber.New()
	app.Use(Middleware(Config{MaxQuestionLength: 50, MaxSQLLength: 80}))
	app.Post("/api/ask", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/api/history", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("POST", "/api/ask", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestMiddleware(t *testing.T) {
	cases := []struct {
		name        string
		body        string
		contentType string
		want        int
	}{
		{"valid", `{"question":"Select the top item by sales"}`, "application/json", 200},
		{"charset", `{"question":"total sales?"}`, "application/json; charset=utf-8", 200},
		{"no question field", `{"raw_results_records":[]}`, "application/json", 200},
		{"wrong content type", `question=hi`, "application/x-www-form-urlencoded", 415},
		{"missing content type", `{"question":"hi"}`, "", 415},
		{"malformed", `{"question":`, "application/json", 400},
		{"too long", `{"question":"` + strings.Repeat("a", 51) + `"}`, "application/json", 400},
		{"script", `{"question":"<script>alert(1)</script>"}`, "application/json", 400},
		{"long sql", `{"sql":"SELECT ` + strings.Repeat("x,", 50) + `1;"}`, "application/json", 400},
		{"comment script", `{"comment":"<iframe src=x>"}`, "application/json", 400},
	}
	for _, tc := range cases {
		if got := post(t, tc.body, tc.contentType); got != tc.want {
			t.Errorf("%s: status %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestMiddlewareIgnoresGet(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{}))
	app.Get("/api/history", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/api/history", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("GET status %d, want 200", resp.StatusCode)
	}
}

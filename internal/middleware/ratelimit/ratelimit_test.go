package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func newApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func get(t *testing.T, app *fiber.App, user string) int {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestMiddlewareLimitsPerKey(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2})
	defer rl.Stop()
	app := newApp(rl)

	for i := 0; i < 2; i++ {
		if code := get(t, app, "alice"); code != 200 {
			t.Fatalf("request %d: status %d, want 200", i+1, code)
		}
	}
	if code := get(t, app, "alice"); code != 429 {
		t.Errorf("third request: status %d, want 429", code)
	}
	if code := get(t, app, "bob"); code != 200 {
		t.Errorf("other key was limited: status %d", code)
	}
}

func TestSweepDropsIdleVisitors(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 10, IdleTTL: time.Minute})
	defer rl.Stop()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.limiter("a")
	now = now.Add(30 * time.Second)
	rl.limiter("b")
	now = now.Add(45 * time.Second)
	rl.sweep()

	if _, ok := rl.visitors["a"]; ok {
		t.Error("idle visitor was kept")
	}
	if _, ok := rl.visitors["b"]; !ok {
		t.Error("recent visitor was dropped")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rl := New(Config{})
	rl.Stop()
	rl.Stop()
}

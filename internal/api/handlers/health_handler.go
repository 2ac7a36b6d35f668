package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ecom-insights/backend/pkg/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency is one backend checked by /ready. Optional dependencies are
// reported but never fail readiness.
type Dependency struct {
	Name     string
	Pinger   Pinger
	Optional bool
}

type HealthHandler struct {
	deps    []Dependency
	timeout time.Duration
	// breaker reports the LLM circuit state; may be nil.
	breaker func() string
}

func NewHealthHandler(breaker func() string, deps ...Dependency) *HealthHandler {
	return &HealthHandler{
		deps:    deps,
		timeout: 2 * time.Second,
		breaker: breaker,
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	checks := fiber.Map{}
	ready := true
	for _, dep := range h.deps {
		if err := dep.Pinger.Ping(ctx); err != nil {
			logger.Warn("Readiness check failed", zap.String("dependency", dep.Name), zap.Error(err))
			checks[dep.Name] = err.Error()
			if !dep.Optional {
				ready = false
			}
			continue
		}
		checks[dep.Name] = "ok"
	}
	if h.breaker != nil {
		checks["llm_circuit"] = h.breaker()
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"checks": checks,
		})
	}
	return c.JSON(fiber.Map{
		"status": "ready",
		"checks": checks,
	})
}

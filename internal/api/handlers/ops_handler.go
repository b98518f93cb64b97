package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/pkg/circuitbreaker"
	"github.com/docqa/console/pkg/logger"
)

const defaultHistoryLimit = 50

// BackendInfo is the part of the backend client the ops endpoints report on.
type BackendInfo interface {
	Health(ctx context.Context) (*backend.HealthStatus, error)
	Stats(ctx context.Context) (*backend.Stats, error)
	BreakerState() circuitbreaker.State
}

// Pinger is any dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type OpsHandler struct {
	backend BackendInfo
	manager *SessionManager
	checks  map[string]Pinger
	started time.Time
}

func NewOpsHandler(b BackendInfo, manager *SessionManager, checks map[string]Pinger) *OpsHandler {
	return &OpsHandler{
		backend: b,
		manager: manager,
		checks:  checks,
		started: time.Now(),
	}
}

func (h *OpsHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "healthy",
		"time":     time.Now().Unix(),
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"sessions": h.manager.Count(),
		"breaker":  h.backend.BreakerState().String(),
	})
}

// Ready fails when a local store is unreachable. The document service
// being down only degrades sessions, so it is reported but not fatal.
func (h *OpsHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := fiber.StatusOK
	checks := fiber.Map{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			status = fiber.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	if health, err := h.backend.Health(ctx); err != nil {
		checks["backend"] = err.Error()
	} else {
		checks["backend"] = health.Status
	}

	ready := "ready"
	if status != fiber.StatusOK {
		ready = "not_ready"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": ready,
		"checks": checks,
	})
}

func (h *OpsHandler) BackendStats(c *fiber.Ctx) error {
	stats, err := h.backend.Stats(c.UserContext())
	if err != nil {
		logger.Warn("Failed to fetch backend stats", zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(stats)
}

func (h *OpsHandler) SearchHistory(c *fiber.Ctx) error {
	history := h.manager.History()
	if history == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "History archive is disabled",
		})
	}

	term := c.Query("q")
	if term == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "q is required",
		})
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)

	records, err := history.SearchHistory(c.UserContext(), term, limit)
	if err != nil {
		logger.Error("Failed to search history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to search history",
		})
	}

	return c.JSON(fiber.Map{
		"results": records,
		"count":   len(records),
	})
}

package handlers

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/console/internal/backend"
)

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{})
	env.createSession(t)

	status, body := env.do(t, "GET", "/api/v1/health", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["sessions"])
	assert.Equal(t, "closed", body["breaker"])
}

func TestReadyReportsFailedChecks(t *testing.T) {
	manager := NewSessionManager(ManagerConfig{Service: newFakeBackend()})
	ops := NewOpsHandler(newFakeBackend(), manager, map[string]Pinger{"sqlite": failingPinger{}})

	app := fiber.New()
	app.Get("/ready", ops.Ready)

	resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	env := newTestEnv(t, ManagerConfig{})
	status, body := env.do(t, "GET", "/api/v1/ready", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
}

func TestBackendStats(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{})

	status, body := env.do(t, "GET", "/api/v1/backend/stats", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(42), body["chunks"])

	env.backend.statsErr = &backend.APIError{Operation: "stats", StatusCode: 500, Detail: "boom"}
	status, body = env.do(t, "GET", "/api/v1/backend/stats", nil)
	assert.Equal(t, fiber.StatusBadGateway, status)
	assert.Equal(t, "boom", body["detail"])

	env.backend.statsErr = backend.ErrUnavailable
	status, _ = env.do(t, "GET", "/api/v1/backend/stats", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}

func TestSearchHistoryRoute(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{})
	status, _ := env.do(t, "GET", "/api/v1/history/search?q=x", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)

	env = newTestEnv(t, ManagerConfig{History: newMemoryHistory()})
	id := env.createSession(t)
	env.do(t, "POST", "/api/v1/sessions/"+id+"/query", fiber.Map{"query": "Quarterly revenue"})
	env.do(t, "POST", "/api/v1/sessions/"+id+"/query/confirm", nil)

	status, _ = env.do(t, "GET", "/api/v1/history/search", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body := env.do(t, "GET", "/api/v1/history/search?q=revenue&limit=1", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])
}

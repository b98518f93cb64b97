package ratelimit

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestBurstThenLimited(t *testing.T) {
	rl := New(Config{RequestsPerMinute: 1, Burst: 2})
	defer rl.Stop()
	app := newApp(rl)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestSessionsLimitedSeparately(t *testing.T) {
	rl := New(Config{RequestsPerMinute: 1, Burst: 1})
	defer rl.Stop()
	app := newApp(rl)

	send := func(session string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(SessionHeader, session)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, send("a"))
	assert.Equal(t, fiber.StatusTooManyRequests, send("a"))
	assert.Equal(t, fiber.StatusOK, send("b"))
}

func TestStopIsIdempotent(t *testing.T) {
	rl := New(Config{})
	assert.NotPanics(t, func() {
		rl.Stop()
		rl.Stop()
	})
}

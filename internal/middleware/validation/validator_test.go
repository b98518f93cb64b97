package validation

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Use(Middleware(cfg))
	app.Post("/api/v1/sessions/:id/query", func(c *fiber.Ctx) error {
		q, _ := c.Locals(QueryLocal).(string)
		return c.SendString(q)
	})
	app.Post("/api/v1/sessions/:id/documents/upload", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile(UploadField, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestQuerySanitized(t *testing.T) {
	app := newApp(Config{})

	req := httptest.NewRequest("POST", "/api/v1/sessions/s/query", strings.NewReader(`{"query":"  select the best option \u0000 "}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := new(bytes.Buffer)
	_, _ = body.ReadFrom(resp.Body)
	assert.Equal(t, "select the best option", body.String())
}

func TestQueryTooLong(t *testing.T) {
	app := newApp(Config{MaxQueryLength: 10})

	req := httptest.NewRequest("POST", "/api/v1/sessions/s/query", strings.NewReader(`{"query":"this is far too long"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUnsupportedContentType(t *testing.T) {
	app := newApp(Config{})

	req := httptest.NewRequest("POST", "/api/v1/sessions/s/query", strings.NewReader(`query=x`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestUploadExtensionAllowList(t *testing.T) {
	app := newApp(Config{})

	body, ct := multipartBody(t, map[string]string{"report.PDF": "%PDF", "notes.txt": "hi"})
	req := httptest.NewRequest("POST", "/api/v1/sessions/s/documents/upload", body)
	req.Header.Set("Content-Type", ct)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, ct = multipartBody(t, map[string]string{"malware.exe": "MZ"})
	req = httptest.NewRequest("POST", "/api/v1/sessions/s/documents/upload", body)
	req.Header.Set("Content-Type", ct)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestUploadSizeLimit(t *testing.T) {
	app := newApp(Config{MaxFileSize: 4})

	body, ct := multipartBody(t, map[string]string{"big.txt": "0123456789"})
	req := httptest.NewRequest("POST", "/api/v1/sessions/s/documents/upload", body)
	req.Header.Set("Content-Type", ct)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUploadWithoutFiles(t *testing.T) {
	app := newApp(Config{})

	body, ct := multipartBody(t, nil)
	req := httptest.NewRequest("POST", "/api/v1/sessions/s/documents/upload", body)
	req.Header.Set("Content-Type", ct)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

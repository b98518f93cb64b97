package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/console/internal/metrics"
	"github.com/docqa/console/internal/storage/models"
	"github.com/docqa/console/pkg/circuitbreaker"
	"github.com/docqa/console/pkg/logger"
	"github.com/docqa/console/pkg/retry"
)

const maxResponseBytes = 10 << 20

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

type Options struct {
	BaseURL       string
	Timeout       time.Duration
	QueryTimeout  time.Duration
	UploadTimeout time.Duration
	Retry         retry.Config
	Breaker       circuitbreaker.Config
	HTTPClient    *http.Client
}

type Client struct {
	baseURL    string
	opts       Options
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	log        *zap.Logger
}

var _ Service = (*Client)(nil)

func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base URL %q", opts.BaseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 3 * time.Minute
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 5 * time.Minute
	}

	log := logger.Named("backend")
	opts.Retry.Logger = log
	opts.Breaker.Logger = log
	opts.Breaker.IsFailure = isFailure

	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Per-operation deadlines come from the request context.
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		opts:       opts,
		httpClient: httpClient,
		breaker:    circuitbreaker.New("backend", opts.Breaker),
		log:        log,
	}, nil
}

func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

func (c *Client) ListDocuments(ctx context.Context) ([]models.Document, error) {
	var payload struct {
		Documents []struct {
			ID        int64  `json:"id"`
			Filename  string `json:"filename"`
			CreatedAt string `json:"created_at"`
		} `json:"documents"`
	}

	if err := c.get(ctx, "list_documents", "/documents", &payload); err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(payload.Documents))
	for _, d := range payload.Documents {
		docs = append(docs, models.Document{
			ID:        d.ID,
			Filename:  d.Filename,
			CreatedAt: parseCreatedAt(d.CreatedAt),
		})
	}

	c.log.Debug("Documents listed", zap.Int("count", len(docs)))
	return docs, nil
}

func (c *Client) DeleteDocument(ctx context.Context, id int64) error {
	path := "/documents/" + strconv.FormatInt(id, 10)
	return c.call(ctx, "delete_document", http.MethodDelete, path, nil, "", c.opts.Timeout, nil)
}

func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	var wire struct {
		Answer     string  `json:"answer"`
		Confidence float64 `json:"confidence"`
		Sources    []struct {
			ChunkID        json.RawMessage `json:"chunk_id"`
			ContentPreview string          `json:"content_preview"`
		} `json:"sources"`
	}

	err = c.call(ctx, "query", http.MethodPost, "/query", payload, "application/json", c.opts.QueryTimeout, &wire)
	if err != nil {
		return nil, err
	}

	resp := &QueryResponse{
		Answer:     wire.Answer,
		Confidence: wire.Confidence,
		Sources:    make([]models.Source, 0, len(wire.Sources)),
	}
	for _, s := range wire.Sources {
		resp.Sources = append(resp.Sources, models.Source{
			ChunkID:        chunkID(s.ChunkID),
			ContentPreview: s.ContentPreview,
		})
	}

	return resp, nil
}

func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader) (*UploadResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload body: %w", err)
	}

	var resp UploadResponse
	err = c.call(ctx, "upload", http.MethodPost, "/upload", buf.Bytes(), writer.FormDataContentType(), c.opts.UploadTimeout, &resp)
	if err != nil {
		return nil, err
	}

	c.log.Info("Document uploaded",
		zap.String("filename", filename),
		zap.Int64("document_id", resp.DocumentID),
	)
	return &resp, nil
}

func (c *Client) SubmitFeedback(ctx context.Context, req FeedbackRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}
	return c.call(ctx, "feedback", http.MethodPost, "/feedback", payload, "application/json", c.opts.Timeout, nil)
}

func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.get(ctx, "health", "/health", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.get(ctx, "stats", "/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// get retries idempotent reads on transport errors and gateway statuses.
func (c *Client) get(ctx context.Context, op, path string, out interface{}) error {
	cfg := c.opts.Retry
	cfg.Operation = op
	cfg.RetryIf = isRetryable

	return retry.Do(ctx, cfg, func(ctx context.Context) error {
		return c.call(ctx, op, http.MethodGet, path, nil, "", c.opts.Timeout, out)
	})
}

func (c *Client) call(ctx context.Context, op, method, path string, payload []byte, contentType string, timeout time.Duration, out interface{}) error {
	err := c.breaker.Execute(func() error {
		return c.send(ctx, op, method, path, payload, contentType, timeout, out)
	})

	switch {
	case err == nil:
		metrics.BackendRequests.WithLabelValues(op, "success").Inc()
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		metrics.BackendRequests.WithLabelValues(op, "rejected").Inc()
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	default:
		metrics.BackendRequests.WithLabelValues(op, "error").Inc()
	}
	return err
}

func (c *Client) send(ctx context.Context, op, method, path string, payload []byte, contentType string, timeout time.Duration, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("Backend request failed",
			zap.String("operation", op),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: failed to read %s response: %w", ErrUnavailable, op, err)
	}

	c.log.Debug("Backend request completed",
		zap.String("operation", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(op, resp, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", op, err)
	}
	return nil
}

func parseCreatedAt(s string) time.Time {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// chunkID accepts numeric or string chunk ids.
func chunkID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

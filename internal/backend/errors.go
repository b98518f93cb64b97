package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/docqa/console/pkg/circuitbreaker"
)

// ErrUnavailable wraps transport failures and an open circuit breaker.
var ErrUnavailable = errors.New("document service unavailable")

const maxDetailLen = 300

type APIError struct {
	Operation  string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s failed with status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.StatusCode, e.Detail)
}

// Detail returns the server-provided explanation carried by err, if any.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return false
	}
	return errors.Is(err, ErrUnavailable)
}

// isFailure decides what counts against the breaker. 4xx responses mean the
// service is up and answering.
func isFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

func newAPIError(op string, resp *http.Response, body []byte) *APIError {
	return &APIError{
		Operation:  op,
		StatusCode: resp.StatusCode,
		Detail:     extractDetail(resp.Header.Get("Content-Type"), body),
	}
}

// extractDetail pulls a human readable message out of an error body. It
// understands the service's JSON errors, validation error lists, HTML error
// pages from proxies in front of it, and plain text.
func extractDetail(contentType string, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	if strings.Contains(contentType, "json") || trimmed[0] == '{' {
		if detail := jsonDetail(trimmed); detail != "" {
			return truncate(detail)
		}
	}

	if strings.Contains(contentType, "html") || trimmed[0] == '<' {
		if detail := htmlDetail(trimmed); detail != "" {
			return truncate(detail)
		}
	}

	return truncate(string(trimmed))
}

func jsonDetail(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	if len(payload.Detail) > 0 {
		var text string
		if err := json.Unmarshal(payload.Detail, &text); err == nil && text != "" {
			return text
		}

		var items []struct {
			Loc []interface{} `json:"loc"`
			Msg string        `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, item := range items {
				if item.Msg == "" {
					continue
				}
				if len(item.Loc) > 0 {
					msgs = append(msgs, fmt.Sprintf("%v: %s", item.Loc[len(item.Loc)-1], item.Msg))
				} else {
					msgs = append(msgs, item.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}

	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}

func htmlDetail(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	for _, sel := range []string{"h1", "title", "body"} {
		text := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " ")
		if text != "" {
			return text
		}
	}
	return ""
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDetailLen {
		return s
	}
	return string(runes[:maxDetailLen]) + "..."
}

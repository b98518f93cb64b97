package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/metrics"
	"github.com/docqa/console/internal/pubsub"
	"github.com/docqa/console/internal/storage/models"
)

const QueryFailedMessage = "I apologize, but I encountered an error processing your query. Please try again."

type SubmitStatus string

const (
	SubmitIgnored           SubmitStatus = "ignored"
	SubmitNeedsConfirmation SubmitStatus = "needs_confirmation"
	SubmitCompleted         SubmitStatus = "completed"
)

type SubmitResult struct {
	Status SubmitStatus    `json:"status"`
	Reason string          `json:"reason,omitempty"`
	Answer *models.Message `json:"answer,omitempty"`
}

func ignored(reason string) SubmitResult {
	metrics.SubmitIgnored.WithLabelValues(reason).Inc()
	return SubmitResult{Status: SubmitIgnored, Reason: reason}
}

// Submit runs a query against the selected documents. Blank text and
// submissions while another query runs are ignored. With nothing selected
// the query is parked until ConfirmSearchAll or CancelSearchAll.
//
// Query failures are reported as an error message in the conversation,
// never as a Go error.
func (c *Controller) Submit(ctx context.Context, text string) SubmitResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return ignored("empty")
	}

	c.mu.Lock()
	if c.state.Phase != PhaseIdle {
		c.mu.Unlock()
		return ignored("busy")
	}
	if c.state.PendingQuery != "" {
		c.mu.Unlock()
		return ignored("awaiting_confirmation")
	}
	if len(c.state.Selected) == 0 {
		c.state.PendingQuery = text
		c.mu.Unlock()

		c.publishState()
		return SubmitResult{Status: SubmitNeedsConfirmation}
	}
	ids := append([]int64(nil), c.state.Selected...)
	c.mu.Unlock()

	return c.execute(ctx, text, ids)
}

// ConfirmSearchAll runs the parked query against every document.
func (c *Controller) ConfirmSearchAll(ctx context.Context) SubmitResult {
	c.mu.Lock()
	text := c.state.PendingQuery
	c.state.PendingQuery = ""
	c.mu.Unlock()

	if text == "" {
		return ignored("nothing_pending")
	}
	return c.execute(ctx, text, nil)
}

func (c *Controller) CancelSearchAll() {
	c.mu.Lock()
	c.state.PendingQuery = ""
	c.mu.Unlock()

	c.publishState()
}

// execute drives one query from Submitting back to Idle. ids nil means all
// documents.
func (c *Controller) execute(ctx context.Context, text string, ids []int64) SubmitResult {
	c.mu.Lock()
	if c.state.Phase != PhaseIdle {
		c.mu.Unlock()
		return ignored("busy")
	}
	c.state.Phase = PhaseSubmitting

	userMsg := models.Message{
		ID:               c.nextID(),
		Role:             models.RoleUser,
		Content:          text,
		Timestamp:        c.now(),
		SelectedDocCount: len(ids),
	}
	c.appendMessage(userMsg)
	c.state.Input = ""
	c.state.Suggestions = nil
	c.state.ClearProposed = false
	c.mu.Unlock()

	var rotator *Rotator
	defer func() {
		if rotator != nil {
			rotator.Stop()
		}

		c.mu.Lock()
		c.state.Phase = PhaseIdle
		c.state.ProgressText = ""
		c.mu.Unlock()

		c.publishState()
	}()

	c.events.Publish(pubsub.MessageEvent, Update{Message: &userMsg})
	c.record(func(ctx context.Context, r Recorder) error {
		return r.SaveMessage(ctx, c.id, userMsg)
	})

	start := c.now()
	rotator = StartRotator(c.progressInterval, c.progressTexts, c.setProgress)

	c.mu.Lock()
	c.state.Phase = PhaseAwaitingResponse
	c.mu.Unlock()
	c.publishState()

	scope := "selected"
	if ids == nil {
		scope = "all"
	}

	c.log.Debug("Submitting query", zap.String("query", text), zap.Int("documents", len(ids)))

	resp, err := c.svc.Query(ctx, backend.QueryRequest{
		Query:       text,
		Mode:        c.queryMode,
		DocumentIDs: ids,
	})
	if err == nil && resp == nil {
		err = errors.New("empty query response")
	}
	elapsed := c.now().Sub(start)
	metrics.QueryDuration.WithLabelValues(scope).Observe(elapsed.Seconds())

	aiMsg := c.answerMessage(resp, err, elapsed, len(ids))
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		c.log.Error("Query failed", zap.Error(err), zap.Duration("elapsed", elapsed))
	} else {
		metrics.QueryTotal.WithLabelValues("success").Inc()
		metrics.ConfidenceScore.Observe(resp.Confidence)
		metrics.SourcesPerAnswer.Observe(float64(len(resp.Sources)))
		c.log.Info("Query answered",
			zap.Duration("elapsed", elapsed),
			zap.Float64("confidence", resp.Confidence),
			zap.Int("sources", len(resp.Sources)),
		)
	}

	var suggestions []string
	if err == nil && len(aiMsg.Sources) > 0 && c.suggestionLimit > 0 {
		suggestions = BuildSuggestions(text, aiMsg.Content, c.suggestionLimit)
	}

	c.mu.Lock()
	aiMsg.ID = c.nextID()
	c.appendMessage(aiMsg)
	c.state.Suggestions = suggestions
	c.mu.Unlock()

	c.events.Publish(pubsub.MessageEvent, Update{Message: &aiMsg})
	c.record(func(ctx context.Context, r Recorder) error {
		return r.SaveMessage(ctx, c.id, aiMsg)
	})

	return SubmitResult{Status: SubmitCompleted, Answer: &aiMsg}
}

func (c *Controller) answerMessage(resp *backend.QueryResponse, err error, elapsed time.Duration, queried int) models.Message {
	msg := models.Message{
		Role:            models.RoleAI,
		Timestamp:       c.now(),
		ResponseTimeMS:  elapsed.Milliseconds(),
		QueriedDocCount: queried,
	}

	if err != nil {
		msg.Content = QueryFailedMessage
		msg.Error = true
		return msg
	}

	msg.Content = resp.Answer
	msg.Confidence = resp.Confidence
	msg.Sources = append([]models.Source(nil), resp.Sources...)
	return msg
}

func (c *Controller) setProgress(text string) {
	c.mu.Lock()
	c.state.ProgressText = text
	c.mu.Unlock()

	c.events.Publish(pubsub.ProgressEvent, Update{Progress: text})
}

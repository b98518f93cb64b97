package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/metrics"
	"github.com/docqa/console/internal/pubsub"
	"github.com/docqa/console/internal/storage/models"
)

// ProposeClear is the first step of clearing the conversation.
func (c *Controller) ProposeClear() error {
	c.mu.Lock()
	if c.state.Phase != PhaseIdle {
		c.mu.Unlock()
		return ErrQueryInFlight
	}
	c.state.ClearProposed = true
	c.mu.Unlock()

	c.publishState()
	return nil
}

// ConfirmClear discards every message if a clear was proposed and no query
// is running. It reports whether the conversation was cleared.
func (c *Controller) ConfirmClear(ctx context.Context) bool {
	c.mu.Lock()
	if !c.state.ClearProposed || c.state.Phase != PhaseIdle {
		c.mu.Unlock()
		return false
	}
	dropped := len(c.state.Messages)
	c.state.Messages = nil
	c.state.Suggestions = nil
	c.state.Input = ""
	c.state.ClearProposed = false
	c.mu.Unlock()

	metrics.ConversationClears.Inc()
	c.log.Info("Conversation cleared", zap.Int("messages", dropped))

	if c.recorder != nil {
		if err := c.recorder.DeleteSession(ctx, c.id); err != nil {
			c.log.Warn("Failed to delete archived history", zap.Error(err))
		}
	}

	c.events.Publish(pubsub.ClearedEvent, Update{})
	return true
}

func (c *Controller) CancelClear() {
	c.mu.Lock()
	c.state.ClearProposed = false
	c.mu.Unlock()

	c.publishState()
}

// SetFeedback sends feedback for an AI message and records it locally only
// once the service accepted it. A service failure leaves the message as it
// was and is returned wrapped in ErrFeedback.
func (c *Controller) SetFeedback(ctx context.Context, messageID int64, feedbackType models.FeedbackType, comment string) error {
	if !feedbackType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFeedback, feedbackType)
	}

	c.mu.Lock()
	i := c.state.messageIndex(messageID)
	if i < 0 || !c.state.Messages[i].IsAI() {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownMessage, messageID)
	}
	c.mu.Unlock()

	err := c.svc.SubmitFeedback(ctx, backend.FeedbackRequest{
		MessageID:    messageID,
		FeedbackType: feedbackType,
		Comment:      comment,
	})
	if err != nil {
		metrics.FeedbackTotal.WithLabelValues(string(feedbackType), "error").Inc()
		c.log.Error("Failed to submit feedback", zap.Int64("message_id", messageID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrFeedback, err)
	}
	metrics.FeedbackTotal.WithLabelValues(string(feedbackType), "success").Inc()

	fb := models.Feedback{
		Type:      feedbackType,
		Comment:   comment,
		Timestamp: c.now(),
	}

	c.mu.Lock()
	i = c.state.messageIndex(messageID)
	if i < 0 {
		// Cleared while the request was in flight.
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownMessage, messageID)
	}
	messages := make([]models.Message, len(c.state.Messages))
	copy(messages, c.state.Messages)
	messages[i].Feedback = &fb
	updated := messages[i]
	c.state.Messages = messages
	c.mu.Unlock()

	c.events.Publish(pubsub.MessageEvent, Update{Message: &updated})
	c.record(func(ctx context.Context, r Recorder) error {
		return r.UpdateFeedback(ctx, c.id, messageID, fb)
	})
	return nil
}

// SearchConversation returns messages containing term, ignoring case.
func (c *Controller) SearchConversation(term string) []models.Message {
	term = strings.ToLower(strings.TrimSpace(term))
	messages := c.Snapshot().Messages

	if term == "" {
		return messages
	}

	var found []models.Message
	for _, m := range messages {
		if strings.Contains(strings.ToLower(m.Content), term) {
			found = append(found, m)
		}
	}
	return found
}

// MessageContent returns the text of an AI response for copying.
func (c *Controller) MessageContent(messageID int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.state.messageIndex(messageID)
	if i < 0 || !c.state.Messages[i].IsAI() {
		return "", fmt.Errorf("%w: %d", ErrUnknownMessage, messageID)
	}
	return c.state.Messages[i].Content, nil
}

func (c *Controller) DismissSuggestions() {
	c.mu.Lock()
	c.state.Suggestions = nil
	c.mu.Unlock()
}

// UseSuggestion moves suggestion i into the input and clears the list.
func (c *Controller) UseSuggestion(i int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i < 0 || i >= len(c.state.Suggestions) {
		return "", fmt.Errorf("%w: %d", ErrNoSuggestion, i)
	}
	text := c.state.Suggestions[i]
	c.state.Input = text
	c.state.Suggestions = nil
	return text, nil
}

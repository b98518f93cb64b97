package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/storage/models"
)

func withConversation(t *testing.T, svc *fakeService, queries int, opts ...Option) *Controller {
	t.Helper()
	c := loaded(t, svc, opts...)
	require.NoError(t, c.ToggleSelect(svc.docs[0].ID))
	for i := 0; i < queries; i++ {
		require.Equal(t, SubmitCompleted, c.Submit(context.Background(), "question").Status)
	}
	return c
}

func lastAI(t *testing.T, c *Controller) models.Message {
	t.Helper()
	msgs := c.Snapshot().Messages
	require.NotEmpty(t, msgs)
	ai := msgs[len(msgs)-1]
	require.True(t, ai.IsAI())
	return ai
}

func TestClearRequiresConfirmation(t *testing.T) {
	rec := &fakeRecorder{}
	c := withConversation(t, newFakeService(1), 2, WithRecorder(rec))

	assert.False(t, c.ConfirmClear(context.Background()))
	assert.Len(t, c.Snapshot().Messages, 4)

	require.NoError(t, c.ProposeClear())
	c.CancelClear()
	assert.False(t, c.ConfirmClear(context.Background()))
	assert.Len(t, c.Snapshot().Messages, 4)

	require.NoError(t, c.ProposeClear())
	assert.True(t, c.ConfirmClear(context.Background()))

	s := c.Snapshot()
	assert.Empty(t, s.Messages)
	assert.False(t, s.ClearProposed)
	assert.Equal(t, []string{"test-session"}, rec.deleted)
}

func TestProposeClearRejectedDuringQuery(t *testing.T) {
	svc := newFakeService(1)
	release := make(chan struct{})
	started := make(chan struct{})
	svc.queryFn = func(context.Context, backend.QueryRequest) (*backend.QueryResponse, error) {
		close(started)
		<-release
		return &backend.QueryResponse{Answer: "ok"}, nil
	}
	c := loaded(t, svc)
	require.NoError(t, c.ToggleSelect(1))

	done := make(chan struct{})
	go func() {
		c.Submit(context.Background(), "q")
		close(done)
	}()
	<-started

	assert.ErrorIs(t, c.ProposeClear(), ErrQueryInFlight)
	close(release)
	<-done

	assert.Len(t, c.Snapshot().Messages, 2)
}

func TestSubmitWithdrawsClearProposal(t *testing.T) {
	c := withConversation(t, newFakeService(1), 1)

	require.NoError(t, c.ProposeClear())
	c.Submit(context.Background(), "another")

	assert.False(t, c.ConfirmClear(context.Background()))
	assert.Len(t, c.Snapshot().Messages, 4)
}

func TestSetFeedback(t *testing.T) {
	rec := &fakeRecorder{}
	svc := newFakeService(1)
	c := withConversation(t, svc, 1, WithRecorder(rec))
	ai := lastAI(t, c)

	require.NoError(t, c.SetFeedback(context.Background(), ai.ID, models.FeedbackPositive, "helpful"))

	got := lastAI(t, c)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, models.FeedbackPositive, got.Feedback.Type)
	assert.Equal(t, "helpful", got.Feedback.Comment)
	assert.Equal(t, ai.ID, svc.feedback[0].MessageID)
	assert.Equal(t, "helpful", rec.feedback[ai.ID].Comment)

	require.NoError(t, c.SetFeedback(context.Background(), ai.ID, models.FeedbackNegative, ""))
	assert.Equal(t, models.FeedbackNegative, lastAI(t, c).Feedback.Type)
}

func TestSetFeedbackFailureLeavesMessage(t *testing.T) {
	svc := newFakeService(1)
	c := withConversation(t, svc, 1)
	ai := lastAI(t, c)
	svc.feedbackErr = errDown

	err := c.SetFeedback(context.Background(), ai.ID, models.FeedbackPositive, "")
	assert.ErrorIs(t, err, ErrFeedback)
	assert.Nil(t, lastAI(t, c).Feedback)
	assert.Len(t, c.Snapshot().Messages, 2)
}

func TestSetFeedbackRejectsBadInput(t *testing.T) {
	svc := newFakeService(1)
	c := withConversation(t, svc, 1)
	msgs := c.Snapshot().Messages

	assert.ErrorIs(t, c.SetFeedback(context.Background(), msgs[1].ID, "meh", ""), ErrInvalidFeedback)
	assert.ErrorIs(t, c.SetFeedback(context.Background(), msgs[0].ID, models.FeedbackPositive, ""), ErrUnknownMessage)
	assert.ErrorIs(t, c.SetFeedback(context.Background(), 12345, models.FeedbackPositive, ""), ErrUnknownMessage)
	assert.Empty(t, svc.feedback)
}

func TestSearchConversation(t *testing.T) {
	svc := newFakeService(1)
	c := loaded(t, svc)
	require.NoError(t, c.ToggleSelect(1))
	c.Submit(context.Background(), "Tell me about Kubernetes")
	c.Submit(context.Background(), "What about Docker?")

	found := c.SearchConversation("kubernetes")
	require.Len(t, found, 1)
	assert.Equal(t, "Tell me about Kubernetes", found[0].Content)

	assert.Len(t, c.SearchConversation("the answer"), 2)
	assert.Len(t, c.SearchConversation(""), 4)
	assert.Empty(t, c.SearchConversation("terraform"))
}

func TestMessageContent(t *testing.T) {
	c := withConversation(t, newFakeService(1), 1)
	msgs := c.Snapshot().Messages

	text, err := c.MessageContent(msgs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "The answer.", text)

	_, err = c.MessageContent(msgs[0].ID)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestRestoredStateContinuesIDs(t *testing.T) {
	first := withConversation(t, newFakeService(1), 1)
	saved := first.Snapshot()
	saved.Phase = PhaseAwaitingResponse
	saved.PendingQuery = "stale"

	past := time.UnixMilli(saved.Messages[1].ID - 60_000)
	svc := newFakeService(1)
	c := NewController("restored", svc,
		WithRestoredState(saved),
		WithSuggestionLimit(0),
		WithClock(func() time.Time { return past }),
	)

	s := c.Snapshot()
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Empty(t, s.PendingQuery)
	assert.False(t, s.DocumentsLoaded)
	assert.Len(t, s.Messages, 2)

	require.NoError(t, c.EnsureDocumentsLoaded(context.Background()))
	assert.Equal(t, SubmitCompleted, c.Submit(context.Background(), "again").Status)

	msgs := c.Snapshot().Messages
	require.Len(t, msgs, 4)
	assert.Greater(t, msgs[2].ID, msgs[1].ID)
}

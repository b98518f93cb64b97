package terminal

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/session"
	"github.com/docqa/console/internal/storage/models"
)

type stubService struct {
	mu       sync.Mutex
	docs     []models.Document
	queries  []backend.QueryRequest
	uploads  []string
	feedback []backend.FeedbackRequest

	feedbackErr error
}

func (s *stubService) ListDocuments(ctx context.Context) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Document(nil), s.docs...), nil
}

func (s *stubService) DeleteDocument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs {
		if d.ID == id {
			s.docs = append(s.docs[:i:i], s.docs[i+1:]...)
			break
		}
	}
	return nil
}

func (s *stubService) Query(ctx context.Context, req backend.QueryRequest) (*backend.QueryResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, req)
	return &backend.QueryResponse{Answer: "Answer: " + req.Query, Confidence: 0.9}, nil
}

func (s *stubService) UploadDocument(ctx context.Context, filename string, content io.Reader) (*backend.UploadResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, filename)
	return &backend.UploadResponse{Message: "Uploaded", Filename: filename}, nil
}

func (s *stubService) SubmitFeedback(ctx context.Context, req backend.FeedbackRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedbackErr != nil {
		return s.feedbackErr
	}
	s.feedback = append(s.feedback, req)
	return nil
}

func newREPL(t *testing.T, input string) (*REPL, *stubService, *bytes.Buffer) {
	t.Helper()

	svc := &stubService{docs: []models.Document{
		{ID: 1, Filename: "a.pdf", CreatedAt: time.Now()},
		{ID: 2, Filename: "b.pdf", CreatedAt: time.Now()},
	}}
	ctrl := session.NewController("cli", svc,
		session.WithProgressInterval(5*time.Millisecond),
		session.WithSuggestionLimit(0),
	)
	t.Cleanup(ctrl.Close)
	require.NoError(t, ctrl.LoadDocuments(context.Background()))

	var out bytes.Buffer
	return NewREPL(ctrl, New(&out), strings.NewReader(input)), svc, &out
}

func TestQueryConfirmSearchAll(t *testing.T) {
	p, svc, out := newREPL(t, "y\n")

	quit := p.Handle(context.Background(), "what is in here?")
	assert.False(t, quit)

	require.Len(t, svc.queries, 1)
	assert.Nil(t, svc.queries[0].DocumentIDs)
	assert.Contains(t, out.String(), "Search all documents? [y/N]")
	assert.Contains(t, out.String(), "Answer: what is in here?")
}

func TestQueryDeclineSearchAll(t *testing.T) {
	p, svc, out := newREPL(t, "n\n")

	p.Handle(context.Background(), "what is in here?")

	assert.Empty(t, svc.queries)
	assert.Contains(t, out.String(), "Cancelled")
	assert.Empty(t, p.ctrl.Snapshot().PendingQuery)
}

func TestSelectThenQuery(t *testing.T) {
	p, svc, _ := newREPL(t, "")
	ctx := context.Background()

	p.Handle(ctx, "/select 2")
	p.Handle(ctx, "summarize")

	require.Len(t, svc.queries, 1)
	assert.Equal(t, []int64{2}, svc.queries[0].DocumentIDs)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	p, _, _ := newREPL(t, "n\ny\n")
	ctx := context.Background()

	p.Handle(ctx, "/delete 1")
	assert.Len(t, p.ctrl.Snapshot().Documents, 2)

	p.Handle(ctx, "/delete 1")
	assert.Len(t, p.ctrl.Snapshot().Documents, 1)
}

func TestUploadCommand(t *testing.T) {
	p, svc, out := newREPL(t, "")

	dir := t.TempDir()
	good := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(good, []byte("hello"), 0o644))

	p.Handle(context.Background(), "/upload "+good+" "+filepath.Join(dir, "tool.exe"))

	assert.Equal(t, []string{"notes.txt"}, svc.uploads)
	assert.Contains(t, out.String(), "✓ notes.txt: Uploaded")
	assert.Contains(t, out.String(), "✗ tool.exe: Unsupported file type")
}

func TestFeedbackAndCopy(t *testing.T) {
	p, svc, out := newREPL(t, "y\n")
	ctx := context.Background()

	p.Handle(ctx, "question")
	answer := p.ctrl.Snapshot().Messages[1]

	p.Handle(ctx, "/good "+itoa(answer.ID)+" very clear")
	require.Len(t, svc.feedback, 1)
	assert.Equal(t, "very clear", svc.feedback[0].Comment)
	assert.Equal(t, models.FeedbackPositive, svc.feedback[0].FeedbackType)

	p.Handle(ctx, "/bad 1")
	assert.Contains(t, out.String(), "No answer with ID 1.")

	out.Reset()
	p.Handle(ctx, "/copy "+itoa(answer.ID))
	assert.Equal(t, "Answer: question\n", out.String())
}

func TestClearCommand(t *testing.T) {
	p, _, _ := newREPL(t, "y\ny\n")
	ctx := context.Background()

	p.Handle(ctx, "question")
	require.Len(t, p.ctrl.Snapshot().Messages, 2)

	p.Handle(ctx, "/clear")
	assert.Empty(t, p.ctrl.Snapshot().Messages)
}

func TestMiscCommands(t *testing.T) {
	p, _, out := newREPL(t, "")
	ctx := context.Background()

	assert.True(t, p.Handle(ctx, "/exit"))
	assert.False(t, p.Handle(ctx, ""))

	p.Handle(ctx, "/frobnicate")
	assert.Contains(t, out.String(), "Unknown command /frobnicate")

	p.Handle(ctx, "/select x")
	assert.Contains(t, out.String(), `Invalid document ID "x".`)

	p.Handle(ctx, "/history anything")
	assert.Contains(t, out.String(), "History archive is disabled.")
}

func TestFeedbackFailureIsSilent(t *testing.T) {
	p, svc, out := newREPL(t, "y\n")
	ctx := context.Background()

	p.Handle(ctx, "question")
	answer := p.ctrl.Snapshot().Messages[1]

	svc.feedbackErr = &backend.APIError{Operation: "submit feedback", StatusCode: 500}
	out.Reset()
	p.Handle(ctx, "/bad "+itoa(answer.ID)+" wrong")

	assert.Empty(t, out.String())
	assert.Nil(t, p.ctrl.Snapshot().Messages[1].Feedback)
}

func TestLateProgressIsDropped(t *testing.T) {
	p, _, out := newREPL(t, "y\n")
	p.r.color = true
	ctx := context.Background()

	p.Handle(ctx, "question")
	out.Reset()

	assert.False(t, p.showProgress("Searching documents..."))
	assert.Empty(t, out.String())
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

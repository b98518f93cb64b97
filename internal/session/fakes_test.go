package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/storage/models"
)

var errDown = errors.New("connection refused")

type fakeService struct {
	mu sync.Mutex

	docs      []models.Document
	listErr   error
	listCalls int

	deleteErr error
	deleted   []int64

	queryFn func(ctx context.Context, req backend.QueryRequest) (*backend.QueryResponse, error)
	queries []backend.QueryRequest

	uploadFn func(name string, r io.Reader) (*backend.UploadResponse, error)
	uploaded []string

	feedbackErr error
	feedback    []backend.FeedbackRequest
}

func newFakeService(ids ...int64) *fakeService {
	f := &fakeService{}
	for _, id := range ids {
		f.docs = append(f.docs, models.Document{
			ID:        id,
			Filename:  "doc.pdf",
			CreatedAt: time.Unix(1_700_000_000+id, 0),
		})
	}
	return f
}

func (f *fakeService) ListDocuments(ctx context.Context) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Document(nil), f.docs...), nil
}

func (f *fakeService) DeleteDocument(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	kept := f.docs[:0:0]
	for _, d := range f.docs {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	f.docs = kept
	return nil
}

func (f *fakeService) Query(ctx context.Context, req backend.QueryRequest) (*backend.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, req)
	fn := f.queryFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &backend.QueryResponse{
		Answer:     "The answer.",
		Confidence: 0.9,
		Sources:    []models.Source{{ChunkID: "1", ContentPreview: "preview"}},
	}, nil
}

func (f *fakeService) UploadDocument(ctx context.Context, filename string, content io.Reader) (*backend.UploadResponse, error) {
	f.mu.Lock()
	f.uploaded = append(f.uploaded, filename)
	fn := f.uploadFn
	f.mu.Unlock()

	if fn != nil {
		return fn(filename, content)
	}
	return &backend.UploadResponse{Message: "ok", Filename: filename}, nil
}

func (f *fakeService) SubmitFeedback(ctx context.Context, req backend.FeedbackRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, req)
	return f.feedbackErr
}

func (f *fakeService) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeService) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeRecorder struct {
	mu       sync.Mutex
	saved    []models.Message
	feedback map[int64]models.Feedback
	deleted  []string
}

func (r *fakeRecorder) SaveMessage(ctx context.Context, sessionID string, msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, msg)
	return nil
}

func (r *fakeRecorder) UpdateFeedback(ctx context.Context, sessionID string, messageID int64, fb models.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.feedback == nil {
		r.feedback = make(map[int64]models.Feedback)
	}
	r.feedback[messageID] = fb
	return nil
}

func (r *fakeRecorder) DeleteSession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, sessionID)
	return nil
}

func fileFromString(name, content string) UploadFile {
	return UploadFile{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

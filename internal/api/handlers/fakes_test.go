package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/storage/models"
	"github.com/docqa/console/pkg/circuitbreaker"
)

type fakeBackend struct {
	mu      sync.Mutex
	docs    []models.Document
	nextID  int64
	queries []backend.QueryRequest

	statsErr    error
	feedbackErr error
}

func newFakeBackend(ids ...int64) *fakeBackend {
	f := &fakeBackend{nextID: 100}
	for _, id := range ids {
		f.docs = append(f.docs, models.Document{
			ID:        id,
			Filename:  fmt.Sprintf("doc-%d.pdf", id),
			CreatedAt: time.Unix(1_700_000_000+id, 0).UTC(),
		})
	}
	return f
}

func (f *fakeBackend) ListDocuments(ctx context.Context) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Document(nil), f.docs...), nil
}

func (f *fakeBackend) DeleteDocument(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, d := range f.docs {
		if d.ID == id {
			f.docs = append(f.docs[:i:i], f.docs[i+1:]...)
			return nil
		}
	}
	return &backend.APIError{Operation: "delete document", StatusCode: 404, Detail: "Document not found"}
}

func (f *fakeBackend) Query(ctx context.Context, req backend.QueryRequest) (*backend.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrUnavailable, err)
	}

	return &backend.QueryResponse{
		Answer:     "The answer to " + req.Query,
		Confidence: 0.8,
		Sources:    []models.Source{{ChunkID: "1", ContentPreview: "preview"}},
	}, nil
}

func (f *fakeBackend) UploadDocument(ctx context.Context, filename string, content io.Reader) (*backend.UploadResponse, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(data), "corrupt") {
		return nil, &backend.APIError{Operation: "upload document", StatusCode: 400, Detail: "Could not parse file"}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.docs = append(f.docs, models.Document{ID: f.nextID, Filename: filename, CreatedAt: time.Now().UTC()})
	return &backend.UploadResponse{Message: "Document uploaded", DocumentID: f.nextID, Filename: filename}, nil
}

func (f *fakeBackend) SubmitFeedback(ctx context.Context, req backend.FeedbackRequest) error {
	return f.feedbackErr
}

func (f *fakeBackend) Health(ctx context.Context) (*backend.HealthStatus, error) {
	return &backend.HealthStatus{Status: "healthy", System: "fake"}, nil
}

func (f *fakeBackend) Stats(ctx context.Context) (*backend.Stats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &backend.Stats{Documents: int64(len(f.docs)), Chunks: 42, System: "fake"}, nil
}

func (f *fakeBackend) BreakerState() circuitbreaker.State {
	return circuitbreaker.StateClosed
}

func (f *fakeBackend) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type memorySnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{data: make(map[string][]byte)}
}

func (m *memorySnapshots) SaveSnapshot(ctx context.Context, id string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = data
	return nil
}

func (m *memorySnapshots) GetSnapshot(ctx context.Context, id string, out interface{}) (bool, error) {
	m.mu.Lock()
	data, ok := m.data[id]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, out)
}

func (m *memorySnapshots) DeleteSnapshot(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *memorySnapshots) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[id]
	return ok
}

type memoryHistory struct {
	mu       sync.Mutex
	messages map[string][]models.Message
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{messages: make(map[string][]models.Message)}
}

func (m *memoryHistory) SaveMessage(ctx context.Context, sessionID string, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return nil
}

func (m *memoryHistory) UpdateFeedback(ctx context.Context, sessionID string, messageID int64, fb models.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages[sessionID] {
		if msg.ID == messageID {
			m.messages[sessionID][i].Feedback = &fb
			return nil
		}
	}
	return errors.New("message not archived")
}

func (m *memoryHistory) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, sessionID)
	return nil
}

func (m *memoryHistory) SessionMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Message(nil), m.messages[sessionID]...), nil
}

func (m *memoryHistory) SearchHistory(ctx context.Context, term string, limit int) ([]models.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.HistoryRecord
	for sid, msgs := range m.messages {
		for _, msg := range msgs {
			if strings.Contains(strings.ToLower(msg.Content), strings.ToLower(term)) {
				out = append(out, models.HistoryRecord{SessionID: sid, Message: msg, SavedAt: msg.Timestamp})
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

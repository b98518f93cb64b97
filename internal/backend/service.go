package backend

import (
	"context"
	"io"

	"github.com/docqa/console/internal/storage/models"
)

// Service is the document question-answering API the session controller
// depends on.
type Service interface {
	ListDocuments(ctx context.Context) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
	UploadDocument(ctx context.Context, filename string, content io.Reader) (*UploadResponse, error)
	SubmitFeedback(ctx context.Context, req FeedbackRequest) error
}

// QueryRequest marshals DocumentIDs as null when nil, which the service
// reads as "search every document".
type QueryRequest struct {
	Query       string  `json:"query"`
	Mode        string  `json:"mode"`
	DocumentIDs []int64 `json:"document_ids"`
}

type QueryResponse struct {
	Answer     string          `json:"answer"`
	Confidence float64         `json:"confidence"`
	Sources    []models.Source `json:"sources"`
}

type UploadResponse struct {
	Message    string `json:"message"`
	DocumentID int64  `json:"document_id"`
	Filename   string `json:"filename"`
}

type FeedbackRequest struct {
	MessageID    int64               `json:"message_id"`
	FeedbackType models.FeedbackType `json:"feedback_type"`
	Comment      string              `json:"comment"`
}

type HealthStatus struct {
	Status string `json:"status"`
	System string `json:"system"`
}

type Stats struct {
	Documents int64  `json:"documents"`
	Chunks    int64  `json:"chunks"`
	System    string `json:"system"`
}

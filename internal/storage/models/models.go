package models

import (
	"path/filepath"
	"strings"
	"time"
)

type Document struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

type Source struct {
	ChunkID        string `json:"chunk_id"`
	ContentPreview string `json:"content_preview"`
}

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

type FeedbackType string

const (
	FeedbackPositive FeedbackType = "positive"
	FeedbackNegative FeedbackType = "negative"
)

func (t FeedbackType) Valid() bool {
	return t == FeedbackPositive || t == FeedbackNegative
}

type Feedback struct {
	Type      FeedbackType `json:"type"`
	Comment   string       `json:"comment"`
	Timestamp time.Time    `json:"timestamp"`
}

// Message is either a user query or an AI response, told apart by Role.
// AI-only fields are zero on user messages.
type Message struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	SelectedDocCount int `json:"selected_doc_count,omitempty"`

	Confidence      float64   `json:"confidence,omitempty"`
	Sources         []Source  `json:"sources,omitempty"`
	ResponseTimeMS  int64     `json:"response_time_ms,omitempty"`
	Feedback        *Feedback `json:"feedback,omitempty"`
	Error           bool      `json:"error,omitempty"`
	QueriedDocCount int       `json:"queried_doc_count"`
}

func (m Message) IsAI() bool {
	return m.Role == RoleAI
}

type UploadStatus string

const (
	UploadSuccess UploadStatus = "success"
	UploadError   UploadStatus = "error"
)

type UploadResult struct {
	Filename string       `json:"filename"`
	Status   UploadStatus `json:"status"`
	Message  string       `json:"message"`
}

type HistoryRecord struct {
	SessionID string    `json:"session_id"`
	Message   Message   `json:"message"`
	SavedAt   time.Time `json:"saved_at"`
}

var DefaultUploadExtensions = []string{".pdf", ".docx", ".txt"}

// AllowedExtension reports whether filename ends in one of allowed,
// compared case-insensitively. An empty allowed list uses DefaultUploadExtensions.
func AllowedExtension(filename string, allowed []string) bool {
	if len(allowed) == 0 {
		allowed = DefaultUploadExtensions
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}

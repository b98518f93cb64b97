package session

import (
	"github.com/docqa/console/internal/storage/models"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseAwaitingResponse
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	case PhaseAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "submitting":
		*p = PhaseSubmitting
	case "awaiting_response":
		*p = PhaseAwaitingResponse
	default:
		*p = PhaseIdle
	}
	return nil
}

// State is everything a surface needs to render one session. The
// controller replaces slices rather than writing into them, so values
// published in events stay valid.
type State struct {
	Documents       []models.Document     `json:"documents"`
	DocumentsLoaded bool                  `json:"documents_loaded"`
	Selected        []int64               `json:"selected"`
	Messages        []models.Message      `json:"messages"`
	Input           string                `json:"input"`
	Phase           Phase                 `json:"phase"`
	ProgressText    string                `json:"progress_text,omitempty"`
	PendingQuery    string                `json:"pending_query,omitempty"`
	ClearProposed   bool                  `json:"clear_proposed"`
	Uploading       bool                  `json:"uploading"`
	LastUpload      []models.UploadResult `json:"last_upload,omitempty"`
	Suggestions     []string              `json:"suggestions,omitempty"`
}

func (s State) clone() State {
	s.Documents = cloneSlice(s.Documents)
	s.Selected = cloneSlice(s.Selected)
	s.Messages = cloneSlice(s.Messages)
	s.LastUpload = cloneSlice(s.LastUpload)
	s.Suggestions = cloneSlice(s.Suggestions)
	return s
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// persistent drops everything tied to an in-flight operation.
func (s State) persistent() State {
	s.Phase = PhaseIdle
	s.ProgressText = ""
	s.PendingQuery = ""
	s.ClearProposed = false
	s.Uploading = false
	s.LastUpload = nil
	s.DocumentsLoaded = false
	return s
}

func (s State) documentIndex(id int64) int {
	for i, d := range s.Documents {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (s State) isSelected(id int64) bool {
	for _, sel := range s.Selected {
		if sel == id {
			return true
		}
	}
	return false
}

func (s State) messageIndex(id int64) int {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Update is the payload of session events.
type Update struct {
	Progress  string               `json:"progress,omitempty"`
	Phase     string               `json:"phase,omitempty"`
	Message   *models.Message      `json:"message,omitempty"`
	Upload    *models.UploadResult `json:"upload,omitempty"`
	Documents []models.Document    `json:"documents,omitempty"`
	Selected  []int64              `json:"selected,omitempty"`
}

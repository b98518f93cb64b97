package session

import "errors"

var (
	ErrFetch           = errors.New("failed to fetch documents")
	ErrDelete          = errors.New("failed to delete document")
	ErrFeedback        = errors.New("failed to submit feedback")
	ErrUnknownDocument = errors.New("unknown document")
	ErrUnknownMessage  = errors.New("unknown message")
	ErrInvalidFeedback = errors.New("feedback type must be positive or negative")
	ErrQueryInFlight   = errors.New("a query is in progress")
	ErrNoSuggestion    = errors.New("no such suggestion")
)

package pubsub

import "context"

const (
	// ProgressEvent carries the current flavor text while a query runs.
	ProgressEvent EventType = "progress"
	// MessageEvent is published for every message appended to a conversation.
	MessageEvent EventType = "message"
	// StateEvent signals any other committed state change.
	StateEvent EventType = "state"
	// DocumentsEvent follows a document list reload.
	DocumentsEvent EventType = "documents"
	// UploadEvent carries one file's upload outcome.
	UploadEvent EventType = "upload"
	// ClearedEvent follows a confirmed conversation clear.
	ClearedEvent EventType = "cleared"
)

type (
	EventType string

	Event[T any] struct {
		Type    EventType
		Payload T
	}

	Subscriber[T any] interface {
		Subscribe(context.Context) <-chan Event[T]
	}

	Publisher[T any] interface {
		Publish(EventType, T)
	}
)

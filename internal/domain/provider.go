package domain

import (
	"context"
	"errors"
)

var (
	// ErrBusy is returned when a detection cycle is already in flight.
	ErrBusy = errors.New("a message is already being processed")
	// ErrEmptyMessage is returned for blank outbound messages.
	ErrEmptyMessage = errors.New("message is empty")
)

// Provider is a chat backend that answers one message at a time.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Healthy(ctx context.Context) error
}

type ChatRequest struct {
	Message string

	// OnProgress, when set, receives the response text each time it changes.
	OnProgress func(text string)
}

type ChatResponse struct {
	Content   string
	Markdown  string // set when the response HTML could be converted
	Kind      ResultKind
	LatencyMs int64
}

// Answered reports whether the response finished normally.
func (r *ChatResponse) Answered() bool {
	return r.Kind == KindComplete
}

package chat

import (
	"errors"

	"github.com/suPer8Hu/chatcore/internal/models"
)

var (
	ErrNotFound     = errors.New("chat: not found")
	ErrEmptyMessage = errors.New("chat: message has no content")
)

type SendRequest struct {
	TopicID string
	Content string
	// Files are attachments already uploaded to the attachment store.
	Files []models.FileRecord
	// Surface keys cancellation; defaults to the topic id.
	Surface string
}

func (r SendRequest) surface() string {
	if r.Surface != "" {
		return r.Surface
	}
	return r.TopicID
}

type EventKind string

const (
	EventEstimate EventKind = "estimate"
	EventChunk    EventKind = "chunk"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"

	// lifecycle notifications published to subscribers
	EventTitle      EventKind = "title"
	EventCleared    EventKind = "cleared"
	EventNewContext EventKind = "new_context"
	EventPaused     EventKind = "paused"
)

type Estimate struct {
	Tokens       int `json:"tokens"`
	ContextCount int `json:"contextCount"`
}

// Event is one notification of a completion stream or a topic lifecycle change.
type Event struct {
	Kind     EventKind       `json:"kind"`
	TopicID  string          `json:"topic_id,omitempty"`
	Text     string          `json:"text,omitempty"`
	Usage    *models.Usage   `json:"usage,omitempty"`
	Estimate *Estimate       `json:"estimate,omitempty"`
	Message  *models.Message `json:"message,omitempty"`
	Title    string          `json:"title,omitempty"`
	Error    string          `json:"error,omitempty"`
}

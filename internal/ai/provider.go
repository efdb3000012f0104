// Package ai holds the provider capability set and its backend variants.
package ai

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/suPer8Hu/chatcore/internal/chatctx"
	"github.com/suPer8Hu/chatcore/internal/models"
)

// Chunk is one normalized unit of streamed output. Usage, when present,
// carries running or final token counts.
type Chunk struct {
	Text  string
	Usage *models.Usage
}

type ChunkFunc func(Chunk)

// Canceler is polled before every chunk is delivered.
type Canceler interface {
	IsCancelRequested() bool
}

type Suggestion struct {
	Content string `json:"content"`
}

type CompletionRequest struct {
	// Messages is the topic history, oldest first, ending with the message
	// being sent.
	Messages  []models.Message
	Assistant models.Assistant
	Cancel    Canceler
}

type Provider interface {
	ID() string
	Completions(ctx context.Context, req CompletionRequest, onChunk ChunkFunc) error
	Translate(ctx context.Context, msg models.Message, assistant models.Assistant) (string, error)
	Summarize(ctx context.Context, messages []models.Message, assistant models.Assistant) (string, error)
	GenerateText(ctx context.Context, prompt, content string) (string, error)
	Suggestions(ctx context.Context, messages []models.Message, assistant models.Assistant) ([]Suggestion, error)
	Check(ctx context.Context) (bool, error)
	// Models never fails; an unreachable catalog yields an empty list.
	Models(ctx context.Context) []models.ModelDescriptor
}

// Defaults are the role-specific fallback models.
type Defaults struct {
	Chat        models.ModelRef `json:"chat"`
	TopicNaming models.ModelRef `json:"topic_naming"`
	Translate   models.ModelRef `json:"translate"`
}

type Deps struct {
	Builder    *chatctx.Builder
	Defaults   Defaults
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.HTTPClient == nil {
		// no global timeout; ctx bounds each call and streams can run long
		d.HTTPClient = &http.Client{}
	}
	if d.Builder == nil {
		d.Builder = chatctx.NewBuilder(nil, d.Logger)
	}
	return d
}

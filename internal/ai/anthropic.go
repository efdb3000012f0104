package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/suPer8Hu/chatcore/internal/chatctx"
	"github.com/suPer8Hu/chatcore/internal/models"
)

// Anthropic requires max_tokens on every request.
const defaultAnthropicMaxTokens = 4096

type anthropicBackend struct {
	id     string
	apiKey string
	client anthropic.Client
}

func newAnthropic(cfg models.ProviderConfig, deps Deps) Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// a failed call surfaces as a transport error; the user resends
		option.WithMaxRetries(0),
		option.WithHTTPClient(deps.HTTPClient),
	}
	if host := strings.TrimRight(strings.TrimSpace(cfg.APIHost), "/"); host != "" {
		opts = append(opts, option.WithBaseURL(host+"/"))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	return newClient(cfg, deps, &anthropicBackend{
		id:     cfg.ID,
		apiKey: cfg.APIKey,
		client: anthropic.NewClient(opts...),
	})
}

// Anthropic accepts images inline; documents go as metadata.
func (b *anthropicBackend) capabilities() chatctx.Capabilities { return chatctx.Capabilities{} }

func anthropicBlocks(t chatctx.Turn) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range t.Binaries() {
		blocks = append(blocks, anthropic.NewImageBlockBase64(p.MIME, p.Data))
	}
	// empty text blocks are rejected
	if text := t.Text(); strings.TrimSpace(text) != "" || len(blocks) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(text))
	}
	return blocks
}

func (b *anthropicBackend) params(c call) (anthropic.MessageNewParams, error) {
	if strings.TrimSpace(b.apiKey) == "" {
		return anthropic.MessageNewParams{}, validationError(b.id, "api key is required")
	}
	maxTokens := int64(defaultAnthropicMaxTokens)
	if c.MaxTokens > 0 {
		maxTokens = int64(c.MaxTokens)
	}
	p := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.Model),
		MaxTokens: maxTokens,
	}
	if c.System != "" {
		p.System = []anthropic.TextBlockParam{{Text: c.System}}
	}
	if c.Temperature > 0 {
		p.Temperature = anthropic.Float(c.Temperature)
	}
	for _, t := range c.Context.Turns() {
		if t.Role == models.RoleUser {
			p.Messages = append(p.Messages, anthropic.NewUserMessage(anthropicBlocks(t)...))
		} else {
			p.Messages = append(p.Messages, anthropic.NewAssistantMessage(anthropicBlocks(t)...))
		}
	}
	return p, nil
}

func (b *anthropicBackend) stream(ctx context.Context, c call, emit func(Chunk) bool) error {
	params, err := b.params(c)
	if err != nil {
		return err
	}
	stream := b.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var usage models.Usage
	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.PromptTokens = int(ev.Message.Usage.InputTokens)
		case anthropic.ContentBlockDeltaEvent:
			if d, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
				if !emit(Chunk{Text: d.Text}) {
					return nil
				}
			}
		case anthropic.MessageDeltaEvent:
			usage.CompletionTokens = int(ev.Usage.OutputTokens)
		case anthropic.MessageStopEvent:
			u := usage
			if !emit(Chunk{Usage: &u}) {
				return nil
			}
		}
	}
	return b.mapError(stream.Err())
}

func (b *anthropicBackend) complete(ctx context.Context, c call) (string, error) {
	params, err := b.params(c)
	if err != nil {
		return "", err
	}
	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", b.mapError(err)
	}
	var out strings.Builder
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(v.Text)
		}
	}
	return out.String(), nil
}

func (b *anthropicBackend) listModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	if strings.TrimSpace(b.apiKey) == "" {
		return nil, validationError(b.id, "api key is required")
	}
	page, err := b.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, b.mapError(err)
	}
	out := make([]models.ModelDescriptor, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, models.ModelDescriptor{ID: m.ID, Name: m.DisplayName, Vision: true})
	}
	return out, nil
}

func (b *anthropicBackend) mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &Error{
			Kind:       KindTransport,
			Provider:   b.id,
			HTTPStatus: apiErr.StatusCode,
			Message:    classifyStatus(apiErr.StatusCode),
			Cause:      err,
		}
	}
	return err
}

package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/suPer8Hu/chatcore/internal/chatctx"
	"github.com/suPer8Hu/chatcore/internal/models"
)

const (
	summaryWindow = 5
	titlePrompt   = "You are good at conversation. Summarize the user's conversation into a title of at most 10 characters (or about 5 words), " +
		"in the conversation's main language. Do not use punctuation or other special symbols."
	checkPrompt = "hi"
)

// call is one backend request after context assembly.
type call struct {
	Model       string
	System      string
	Context     *chatctx.Context
	Temperature float64
	MaxTokens   int
}

// backend is the part that differs per variant: wire shapes, streaming
// primitive and role vocabulary.
type backend interface {
	capabilities() chatctx.Capabilities
	// stream delivers chunks through emit and returns nil as soon as emit
	// reports false.
	stream(ctx context.Context, c call, emit func(Chunk) bool) error
	complete(ctx context.Context, c call) (string, error)
	listModels(ctx context.Context) ([]models.ModelDescriptor, error)
}

type suggester interface {
	suggestions(ctx context.Context, c call) ([]Suggestion, error)
}

// client implements Provider over one backend.
type client struct {
	cfg  models.ProviderConfig
	deps Deps
	be   backend
}

func newClient(cfg models.ProviderConfig, deps Deps, be backend) *client {
	return &client{cfg: cfg, deps: deps, be: be}
}

func (p *client) ID() string { return p.cfg.ID }

func (p *client) model(assistant models.Assistant) (string, error) {
	if m := strings.TrimSpace(assistant.Model); m != "" {
		return m, nil
	}
	if d := p.deps.Defaults.Chat; !d.Empty() && (d.Provider == "" || d.Provider == p.cfg.ID) {
		return d.ID, nil
	}
	return "", validationError(p.cfg.ID, "model is required")
}

func (p *client) firstModel() (string, error) {
	if d := p.deps.Defaults.Chat; !d.Empty() && d.Provider == p.cfg.ID {
		return d.ID, nil
	}
	if len(p.cfg.Models) > 0 && p.cfg.Models[0].ID != "" {
		return p.cfg.Models[0].ID, nil
	}
	return "", validationError(p.cfg.ID, "no model configured")
}

func (p *client) Completions(ctx context.Context, req CompletionRequest, onChunk ChunkFunc) error {
	model, err := p.model(req.Assistant)
	if err != nil {
		return err
	}
	settings := req.Assistant.Settings
	cc, err := p.deps.Builder.Build(ctx, req.Messages, settings.EffectiveContextCount(), p.be.capabilities())
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}
	if cc.Current == nil {
		return validationError(p.cfg.ID, "no user message to send")
	}

	c := call{
		Model:       model,
		System:      req.Assistant.Prompt,
		Context:     cc,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	}

	var stopped, sawUsage bool
	emit := func(ch Chunk) bool {
		if req.Cancel != nil && req.Cancel.IsCancelRequested() {
			stopped = true
			return false
		}
		if ch.Usage != nil {
			u := normalizeUsage(*ch.Usage)
			ch.Usage = &u
			sawUsage = true
		}
		onChunk(ch)
		return true
	}

	if err := p.be.stream(ctx, c, emit); err != nil {
		if stopped {
			return nil
		}
		return transportError(p.cfg.ID, err)
	}
	if !stopped && !sawUsage {
		emit(Chunk{Usage: &models.Usage{}})
	}
	return nil
}

func (p *client) Translate(ctx context.Context, msg models.Message, assistant models.Assistant) (string, error) {
	model, err := p.model(assistant)
	if err != nil {
		return "", err
	}
	parts, err := p.deps.Builder.Parts(ctx, msg, p.be.capabilities())
	if err != nil {
		return "", err
	}
	out, err := p.be.complete(ctx, call{
		Model:       model,
		System:      assistant.Prompt,
		Context:     single(parts),
		Temperature: assistant.Settings.Temperature,
		MaxTokens:   assistant.Settings.MaxTokens,
	})
	if err != nil {
		return "", transportError(p.cfg.ID, err)
	}
	return out, nil
}

// Summarize renders the last few messages as a transcript and asks for a title.
func (p *client) Summarize(ctx context.Context, messages []models.Message, assistant models.Assistant) (string, error) {
	model, err := p.model(assistant)
	if err != nil {
		return "", err
	}
	kept := chatctx.Filter(messages)
	if len(kept) > summaryWindow {
		kept = kept[len(kept)-summaryWindow:]
	}
	if len(kept) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, m := range kept {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, strings.TrimSpace(m.Content))
	}
	out, err := p.be.complete(ctx, call{
		Model:       model,
		System:      titlePrompt,
		Context:     single([]chatctx.Part{{Type: chatctx.PartText, Text: b.String()}}),
		Temperature: assistant.Settings.Temperature,
	})
	if err != nil {
		return "", transportError(p.cfg.ID, err)
	}
	return strings.TrimSpace(out), nil
}

func (p *client) GenerateText(ctx context.Context, prompt, content string) (string, error) {
	model, err := p.firstModel()
	if err != nil {
		return "", err
	}
	out, err := p.be.complete(ctx, call{
		Model:   model,
		System:  prompt,
		Context: single([]chatctx.Part{{Type: chatctx.PartText, Text: content}}),
	})
	if err != nil {
		return "", transportError(p.cfg.ID, err)
	}
	return out, nil
}

// Suggestions is empty for backends without follow-up support.
func (p *client) Suggestions(ctx context.Context, messages []models.Message, assistant models.Assistant) ([]Suggestion, error) {
	s, ok := p.be.(suggester)
	if !ok {
		return []Suggestion{}, nil
	}
	model, err := p.model(assistant)
	if err != nil {
		return []Suggestion{}, err
	}
	cc, err := p.deps.Builder.Build(ctx, messages, assistant.Settings.EffectiveContextCount(), chatctx.Capabilities{})
	if err != nil {
		return []Suggestion{}, err
	}
	out, err := s.suggestions(ctx, call{Model: model, System: assistant.Prompt, Context: cc})
	if err != nil {
		return []Suggestion{}, transportError(p.cfg.ID, err)
	}
	if out == nil {
		out = []Suggestion{}
	}
	return out, nil
}

// Check sends a minimal probe with the first configured model.
func (p *client) Check(ctx context.Context) (bool, error) {
	if len(p.cfg.Models) == 0 || p.cfg.Models[0].ID == "" {
		return false, validationError(p.cfg.ID, "no model configured")
	}
	out, err := p.be.complete(ctx, call{
		Model:     p.cfg.Models[0].ID,
		Context:   single([]chatctx.Part{{Type: chatctx.PartText, Text: checkPrompt}}),
		MaxTokens: 100,
	})
	if err != nil {
		return false, transportError(p.cfg.ID, err)
	}
	return strings.TrimSpace(out) != "", nil
}

func (p *client) Models(ctx context.Context) []models.ModelDescriptor {
	list, err := p.be.listModels(ctx)
	if err != nil {
		p.deps.Logger.Warn("model catalog unavailable", "provider", p.cfg.ID,
			"err", &Error{Kind: KindCatalog, Provider: p.cfg.ID, Cause: err})
		return []models.ModelDescriptor{}
	}
	out := make([]models.ModelDescriptor, 0, len(list))
	for _, m := range list {
		m.Provider = p.cfg.ID
		if m.Name == "" {
			m.Name = m.ID
		}
		out = append(out, m)
	}
	return out
}

func single(parts []chatctx.Part) *chatctx.Context {
	return &chatctx.Context{Current: &chatctx.Turn{Role: models.RoleUser, Parts: parts}}
}

func normalizeUsage(u models.Usage) models.Usage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

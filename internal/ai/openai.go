package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/suPer8Hu/chatcore/internal/chatctx"
	"github.com/suPer8Hu/chatcore/internal/models"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

	suggestionsPrompt = "Based on the conversation so far, propose up to 3 short follow-up questions the user might ask next. " +
		"Reply with one question per line and nothing else."
	maxSuggestions = 3
)

// openAIBackend speaks the OpenAI chat completions protocol. OpenRouter and
// other compatible gateways use it with a different base URL and headers.
type openAIBackend struct {
	id      string
	baseURL string
	apiKey  string
	headers map[string]string
	client  *http.Client
}

func newOpenAI(cfg models.ProviderConfig, deps Deps, defaultBase string) Provider {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIHost), "/")
	if base == "" {
		base = defaultBase
	}
	return newClient(cfg, deps, &openAIBackend{
		id:      cfg.ID,
		baseURL: base,
		apiKey:  cfg.APIKey,
		headers: cfg.Headers,
		client:  deps.HTTPClient,
	})
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIChatReq struct {
	Model         string          `json:"model"`
	Messages      []openAIMessage `json:"messages"`
	Stream        bool            `json:"stream"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
}

type openAIChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage,omitempty"`
	Error *openAIError `json:"error,omitempty"`
}

func (b *openAIBackend) capabilities() chatctx.Capabilities { return chatctx.Capabilities{} }

func (b *openAIBackend) req(method, path string, body any) (request, error) {
	if strings.TrimSpace(b.apiKey) == "" {
		return request{}, validationError(b.id, "api key is required")
	}
	h := map[string]string{"Authorization": "Bearer " + b.apiKey}
	for k, v := range b.headers {
		h[k] = v
	}
	return request{
		provider: b.id,
		client:   b.client,
		method:   method,
		url:      b.baseURL + path,
		headers:  h,
		body:     body,
	}, nil
}

func (b *openAIBackend) chatReq(c call, stream bool) openAIChatReq {
	out := openAIChatReq{
		Model:     c.Model,
		Stream:    stream,
		MaxTokens: c.MaxTokens,
	}
	if c.Temperature > 0 {
		t := c.Temperature
		out.Temperature = &t
	}
	if stream {
		out.StreamOptions = &struct {
			IncludeUsage bool `json:"include_usage"`
		}{IncludeUsage: true}
	}
	if c.System != "" {
		out.Messages = append(out.Messages, openAIMessage{Role: string(models.RoleSystem), Content: c.System})
	}
	for _, t := range c.Context.Turns() {
		out.Messages = append(out.Messages, openAIMessage{Role: string(t.Role), Content: openAIContent(t)})
	}
	return out
}

// openAIContent is a plain string unless the turn carries inline payloads.
func openAIContent(t chatctx.Turn) any {
	bins := t.Binaries()
	if len(bins) == 0 {
		return t.Text()
	}
	parts := []openAIContentPart{{Type: "text", Text: t.Text()}}
	for _, p := range bins {
		parts = append(parts, openAIContentPart{
			Type:     "image_url",
			ImageURL: &openAIImageURL{URL: fmt.Sprintf("data:%s;base64,%s", p.MIME, p.Data)},
		})
	}
	return parts
}

func (b *openAIBackend) stream(ctx context.Context, c call, emit func(Chunk) bool) error {
	r, err := b.req(http.MethodPost, "/chat/completions", b.chatReq(c, true))
	if err != nil {
		return err
	}
	resp, err := r.do(ctx)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := newSSEDecoder(resp.Body)
	for {
		data, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(data)) == "[DONE]" {
			return nil
		}

		var decoded openAIStreamResp
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fmt.Errorf("%s: decode chunk: %w", b.id, err)
		}
		if decoded.Error != nil && decoded.Error.Message != "" {
			return errors.New(decoded.Error.Message)
		}

		var ch Chunk
		if len(decoded.Choices) > 0 {
			ch.Text = decoded.Choices[0].Delta.Content
		}
		if u := decoded.Usage; u != nil {
			ch.Usage = &models.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
		}
		if ch.Text == "" && ch.Usage == nil {
			continue
		}
		if !emit(ch) {
			return nil
		}
	}
}

func (b *openAIBackend) complete(ctx context.Context, c call) (string, error) {
	r, err := b.req(http.MethodPost, "/chat/completions", b.chatReq(c, false))
	if err != nil {
		return "", err
	}
	var decoded openAIChatResp
	if err := r.decode(ctx, &decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response", b.id)
	}
	return decoded.Choices[0].Message.Content, nil
}

func (b *openAIBackend) listModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	r, err := b.req(http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"data"`
	}
	if err := r.decode(ctx, &decoded); err != nil {
		return nil, err
	}
	out := make([]models.ModelDescriptor, 0, len(decoded.Data))
	for _, m := range decoded.Data {
		out = append(out, models.ModelDescriptor{ID: m.ID, Name: m.Name, Description: m.Description})
	}
	return out, nil
}

func (b *openAIBackend) suggestions(ctx context.Context, c call) ([]Suggestion, error) {
	c.System = strings.TrimSpace(c.System + "\n\n" + suggestionsPrompt)
	out, err := b.complete(ctx, c)
	if err != nil {
		return nil, err
	}
	return parseSuggestions(out), nil
}

func parseSuggestions(s string) []Suggestion {
	out := []Suggestion{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		if line == "" {
			continue
		}
		out = append(out, Suggestion{Content: line})
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/suPer8Hu/chatcore/internal/chatctx"
	"github.com/suPer8Hu/chatcore/internal/models"
)

const defaultOllamaBaseURL = "http://localhost:11434"

type ollamaBackend struct {
	id      string
	baseURL string
	client  *http.Client
}

func newOllama(cfg models.ProviderConfig, deps Deps) Provider {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIHost), "/")
	if base == "" {
		base = defaultOllamaBaseURL
	}
	return newClient(cfg, deps, &ollamaBackend{id: cfg.ID, baseURL: base, client: deps.HTTPClient})
}

type ollamaMsg struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatReq struct {
	Model    string         `json:"model"`
	Messages []ollamaMsg    `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatResp struct {
	Message         ollamaMsg `json:"message"`
	Done            bool      `json:"done"`
	PromptEvalCount int       `json:"prompt_eval_count"`
	EvalCount       int       `json:"eval_count"`
	Error           string    `json:"error,omitempty"`
}

// Ollama only accepts images inline; other attachments stay metadata.
func (b *ollamaBackend) capabilities() chatctx.Capabilities { return chatctx.Capabilities{} }

func (b *ollamaBackend) chatReq(c call, stream bool) ollamaChatReq {
	out := ollamaChatReq{Model: c.Model, Stream: stream}
	if c.Temperature > 0 || c.MaxTokens > 0 {
		out.Options = &ollamaOptions{Temperature: c.Temperature, NumPredict: c.MaxTokens}
	}
	if c.System != "" {
		out.Messages = append(out.Messages, ollamaMsg{Role: string(models.RoleSystem), Content: c.System})
	}
	for _, t := range c.Context.Turns() {
		m := ollamaMsg{Role: string(t.Role), Content: t.Text()}
		for _, p := range t.Binaries() {
			m.Images = append(m.Images, p.Data)
		}
		out.Messages = append(out.Messages, m)
	}
	return out
}

func (b *ollamaBackend) req(method, path string, body any) request {
	return request{provider: b.id, client: b.client, method: method, url: b.baseURL + path, body: body}
}

func (b *ollamaBackend) stream(ctx context.Context, c call, emit func(Chunk) bool) error {
	resp, err := b.req(http.MethodPost, "/api/chat", b.chatReq(c, true)).do(ctx)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	sc := newLineScanner(resp.Body)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var decoded ollamaChatResp
		if err := json.Unmarshal(line, &decoded); err != nil {
			return fmt.Errorf("%s: decode chunk: %w", b.id, err)
		}
		if decoded.Error != "" {
			return errors.New(decoded.Error)
		}

		ch := Chunk{Text: decoded.Message.Content}
		if decoded.Done {
			ch.Usage = &models.Usage{PromptTokens: decoded.PromptEvalCount, CompletionTokens: decoded.EvalCount}
		}
		if ch.Text != "" || ch.Usage != nil {
			if !emit(ch) {
				return nil
			}
		}
		if decoded.Done {
			return nil
		}
	}
	return sc.Err()
}

func (b *ollamaBackend) complete(ctx context.Context, c call) (string, error) {
	var decoded ollamaChatResp
	if err := b.req(http.MethodPost, "/api/chat", b.chatReq(c, false)).decode(ctx, &decoded); err != nil {
		return "", err
	}
	if decoded.Error != "" {
		return "", errors.New(decoded.Error)
	}
	return decoded.Message.Content, nil
}

func (b *ollamaBackend) listModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	var decoded struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := b.req(http.MethodGet, "/api/tags", nil).decode(ctx, &decoded); err != nil {
		return nil, err
	}
	out := make([]models.ModelDescriptor, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		id := m.Model
		if id == "" {
			id = m.Name
		}
		out = append(out, models.ModelDescriptor{ID: id, Name: m.Name})
	}
	return out, nil
}

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/suPer8Hu/chatcore/internal/chatctx"
	"github.com/suPer8Hu/chatcore/internal/models"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// geminiBackend talks to the Generative Language REST API. Gemini models a
// chat as history plus one new message, and calls the assistant role "model".
type geminiBackend struct {
	id      string
	baseURL string
	apiKey  string
	client  *http.Client
}

func newGemini(cfg models.ProviderConfig, deps Deps) Provider {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIHost), "/")
	if base == "" {
		base = defaultGeminiBaseURL
	}
	return newClient(cfg, deps, &geminiBackend{
		id:      cfg.ID,
		baseURL: base,
		apiKey:  cfg.APIKey,
		client:  deps.HTTPClient,
	})
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiReq struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResp struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r geminiResp) text() string {
	var b strings.Builder
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (b *geminiBackend) capabilities() chatctx.Capabilities {
	return chatctx.Capabilities{InlineFiles: true}
}

func geminiRole(r models.Role) string {
	if r == models.RoleUser {
		return "user"
	}
	return "model"
}

func geminiParts(t chatctx.Turn) []geminiPart {
	parts := []geminiPart{{Text: t.Text()}}
	for _, p := range t.Binaries() {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MIMEType: p.MIME, Data: p.Data}})
	}
	return parts
}

func (b *geminiBackend) body(c call) geminiReq {
	out := geminiReq{}
	for _, t := range c.Context.History {
		out.Contents = append(out.Contents, geminiContent{Role: geminiRole(t.Role), Parts: geminiParts(t)})
	}
	if c.Context.Current != nil {
		out.Contents = append(out.Contents, geminiContent{Role: "user", Parts: geminiParts(*c.Context.Current)})
	}
	if c.System != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: c.System}}}
	}
	if c.Temperature > 0 || c.MaxTokens > 0 {
		gc := &geminiGenerationConfig{MaxOutputTokens: c.MaxTokens}
		if c.Temperature > 0 {
			t := c.Temperature
			gc.Temperature = &t
		}
		out.GenerationConfig = gc
	}
	return out
}

func (b *geminiBackend) req(method, path string, query url.Values, body any) (request, error) {
	if strings.TrimSpace(b.apiKey) == "" {
		return request{}, validationError(b.id, "api key is required")
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("key", b.apiKey)
	return request{
		provider: b.id,
		client:   b.client,
		method:   method,
		url:      b.baseURL + path + "?" + query.Encode(),
		body:     body,
	}, nil
}

func (b *geminiBackend) stream(ctx context.Context, c call, emit func(Chunk) bool) error {
	path := fmt.Sprintf("/v1beta/models/%s:streamGenerateContent", url.PathEscape(c.Model))
	r, err := b.req(http.MethodPost, path, url.Values{"alt": {"sse"}}, b.body(c))
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

		var decoded geminiResp
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fmt.Errorf("%s: decode chunk: %w", b.id, err)
		}
		if decoded.Error != nil && decoded.Error.Message != "" {
			return errors.New(decoded.Error.Message)
		}

		ch := Chunk{Text: decoded.text()}
		if u := decoded.UsageMetadata; u != nil {
			ch.Usage = &models.Usage{
				PromptTokens:     u.PromptTokenCount,
				CompletionTokens: u.CandidatesTokenCount,
				TotalTokens:      u.TotalTokenCount,
			}
		}
		if ch.Text == "" && ch.Usage == nil {
			continue
		}
		if !emit(ch) {
			return nil
		}
	}
}

func (b *geminiBackend) complete(ctx context.Context, c call) (string, error) {
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", url.PathEscape(c.Model))
	r, err := b.req(http.MethodPost, path, nil, b.body(c))
	if err != nil {
		return "", err
	}
	var decoded geminiResp
	if err := r.decode(ctx, &decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	return decoded.text(), nil
}

func (b *geminiBackend) listModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	r, err := b.req(http.MethodGet, "/v1beta/models", nil, nil)
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Models []struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
			Description string `json:"description"`
		} `json:"models"`
	}
	if err := r.decode(ctx, &decoded); err != nil {
		return nil, err
	}
	out := make([]models.ModelDescriptor, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		out = append(out, models.ModelDescriptor{
			ID:          strings.TrimPrefix(m.Name, "models/"),
			Name:        m.DisplayName,
			Description: m.Description,
		})
	}
	return out, nil
}

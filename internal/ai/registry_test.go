package ai

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/chatcore/internal/models"
)

type fakeProvider struct {
	id string
}

func (f *fakeProvider) ID() string { return f.id }
func (f *fakeProvider) Completions(context.Context, CompletionRequest, ChunkFunc) error {
	return nil
}
func (f *fakeProvider) Translate(context.Context, models.Message, models.Assistant) (string, error) {
	return "", nil
}
func (f *fakeProvider) Summarize(context.Context, []models.Message, models.Assistant) (string, error) {
	return "", nil
}
func (f *fakeProvider) GenerateText(context.Context, string, string) (string, error) { return "", nil }
func (f *fakeProvider) Suggestions(context.Context, []models.Message, models.Assistant) ([]Suggestion, error) {
	return nil, nil
}
func (f *fakeProvider) Check(context.Context) (bool, error) { return true, nil }
func (f *fakeProvider) Models(context.Context) []models.ModelDescriptor {
	return []models.ModelDescriptor{}
}

func TestRegistry_ConfigureAndGet(t *testing.T) {
	r := NewRegistry(Deps{})

	err := r.Configure(models.ProviderConfig{ID: "x", Type: "nope"})
	assert.True(t, IsValidation(err))

	_, err = r.Get("missing")
	assert.True(t, IsValidation(err))

	require.NoError(t, r.Configure(models.ProviderConfig{ID: " OpenAI ", APIKey: "k"}))
	p1, err := r.Get("openai")
	require.NoError(t, err)
	p2, err := r.Get("OPENAI")
	require.NoError(t, err)
	assert.Same(t, p1, p2, "instances are cached")
	assert.Equal(t, "openai", p1.ID())

	require.NoError(t, r.Configure(models.ProviderConfig{ID: "openai", APIKey: "k2"}))
	p3, err := r.Get("openai")
	require.NoError(t, err)
	assert.NotSame(t, p1, p3, "reconfigure rebuilds")

	cfg, ok := r.Config("openai")
	require.True(t, ok)
	assert.Equal(t, "k2", cfg.APIKey)
}

func TestRegistry_CustomFactory(t *testing.T) {
	r := NewRegistry(Deps{})
	r.Register("fake", func(cfg models.ProviderConfig, _ Deps) (Provider, error) {
		return &fakeProvider{id: cfg.ID}, nil
	})
	require.NoError(t, r.Configure(models.ProviderConfig{ID: "f1", Type: "fake"}, models.ProviderConfig{ID: "a0", Type: "fake"}))

	p, err := r.Get("f1")
	require.NoError(t, err)
	assert.IsType(t, &fakeProvider{}, p)

	cfgs := r.Configs()
	require.Len(t, cfgs, 2)
	assert.Equal(t, "a0", cfgs[0].ID)
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry(Deps{Defaults: Defaults{
		Chat:        models.ModelRef{Provider: "openai", ID: "gpt-default"},
		TopicNaming: models.ModelRef{Provider: "ollama", ID: "llama3"},
	}})
	require.NoError(t, r.Configure(
		models.ProviderConfig{ID: "openai", APIKey: "k"},
		models.ProviderConfig{ID: "ollama"},
	))

	p, ref, err := r.Resolve(models.ModelRef{})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.ID())
	assert.Equal(t, "gpt-default", ref.ID)

	p, ref, err = r.Resolve(r.Defaults().TopicNaming, models.ModelRef{Provider: "openai", ID: "gpt-a"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.ID())
	assert.Equal(t, "llama3", ref.ID)

	_, ref, err = r.Resolve(models.ModelRef{ID: "gpt-b"})
	require.NoError(t, err)
	assert.Equal(t, "openai", ref.Provider, "bare model ids use the default provider")

	_, _, err = r.Resolve(models.ModelRef{Provider: "ghost", ID: "m"})
	assert.True(t, IsValidation(err))

	empty := NewRegistry(Deps{})
	_, _, err = empty.Resolve()
	assert.True(t, IsValidation(err))
}

func TestSSEDecoder(t *testing.T) {
	in := ": comment\n" +
		"event: x\n" +
		"data: one\n\n" +
		"data: two\n" +
		"data: lines\r\n\r\n" +
		"data:tail"
	dec := newSSEDecoder(strings.NewReader(in))

	got, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))

	got, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "two\nlines", string(got))

	got, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "tail", string(got))

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestErrorEnvelopeMessage(t *testing.T) {
	assert.Equal(t, "bad", errorEnvelopeMessage([]byte(`{"error":{"message":"bad"}}`)))
	assert.Equal(t, "model not found", errorEnvelopeMessage([]byte(`{"error":"model not found"}`)))
	assert.Equal(t, "", errorEnvelopeMessage([]byte(`not json`)))
}

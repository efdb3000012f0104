package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/chatcore/internal/config"
	"github.com/suPer8Hu/chatcore/internal/models"
)

func TestNew_WiresEngine(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		DBDSN:           filepath.Join(dir, "chatcore.db"),
		FilesDir:        filepath.Join(dir, "files"),
		TitleNamingRate: 1,
		DefaultModel:    models.ModelRef{Provider: "ollama", ID: "llama3:latest"},
		Providers: []models.ProviderConfig{
			{ID: "ollama", Type: "ollama", APIHost: "http://127.0.0.1:1"},
		},
	}
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.StartNamer())

	p, err := a.Registry.Get("ollama")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.ID())
	assert.Equal(t, "llama3:latest", a.Registry.Defaults().Chat.ID)

	ctx := context.Background()
	asst := &models.Assistant{Name: "helper"}
	require.NoError(t, a.Chat.CreateAssistant(ctx, asst))
	list, err := a.Chat.ListAssistants(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, a.Close())
}

func TestNew_RejectsUnknownProviderType(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		DBDSN:     filepath.Join(dir, "chatcore.db"),
		FilesDir:  filepath.Join(dir, "files"),
		Providers: []models.ProviderConfig{{ID: "x", Type: "carrier-pigeon"}},
	}
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/chatcore/internal/models"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DB_DSN", "HTTP_ADDR", "JWT_SECRET", "REDIS_ADDR", "RABBIT_URL", "RABBIT_QUEUE",
		"PROVIDERS_FILE", "DEFAULT_MODEL", "TOPIC_NAMING_MODEL", "TRANSLATE_MODEL",
		"OPENAI_API_KEY", "OPENROUTER_API_KEY", "GEMINI_API_KEY", "ANTHROPIC_API_KEY",
		"OLLAMA_MODEL", "OLLAMA_BASE_URL", "WORKER_CONCURRENCY", "TITLE_NAMING_RATE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "data/chatcore.db", cfg.DBDSN)
	assert.Equal(t, "127.0.0.1:8787", cfg.HTTPAddr)
	assert.Equal(t, "title_jobs", cfg.RabbitQueue)
	assert.Equal(t, 2, cfg.WorkerConcurrency)
	assert.Equal(t, 1.0, cfg.TitleNamingRate)
	assert.Equal(t, models.ModelRef{Provider: "ollama", ID: "llama3:latest"}, cfg.DefaultModel)
	assert.True(t, cfg.TopicNamingModel.Empty())

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "ollama", cfg.Providers[0].ID)
	assert.Equal(t, "llama3:latest", cfg.Providers[0].Models[0].ID)
}

func TestLoad_EnvProviders(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-1")
	t.Setenv("GEMINI_API_KEY", "g-1")
	t.Setenv("DEFAULT_MODEL", "openai/gpt-4o-mini")
	t.Setenv("TRANSLATE_MODEL", "gemini/gemini-1.5-flash")
	t.Setenv("WORKER_CONCURRENCY", "500")

	cfg, err := Load()
	require.NoError(t, err)
	ids := []string{}
	for _, p := range cfg.Providers {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{"ollama", "openai", "gemini"}, ids)
	assert.Equal(t, models.ModelRef{Provider: "openai", ID: "gpt-4o-mini"}, cfg.DefaultModel)
	assert.Equal(t, "gemini", cfg.TranslateModel.Provider)
	assert.Equal(t, 50, cfg.WorkerConcurrency)
}

const tomlCatalog = `
default_model = "openai/gpt-4o"
topic_naming_model = "openai/gpt-4o-mini"

[[providers]]
id = "openai"
type = "openai"
name = "OpenAI"

[[providers.models]]
id = "gpt-4o"
name = "GPT-4o"
vision = true

[[providers]]
id = "local-llm"
type = "openai"
api_key = "none"
api_host = "http://localhost:1234/v1"
`

const yamlCatalog = `
default_model: anthropic/claude-test
providers:
  - id: anthropic
    type: anthropic
    api_key: ak-file
    models:
      - id: claude-test
        name: Claude
`

func write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_TOMLCatalogMergesWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("TOPIC_NAMING_MODEL", "ollama/llama3")
	t.Setenv("PROVIDERS_FILE", write(t, "providers.toml", tomlCatalog))

	cfg, err := Load()
	require.NoError(t, err)

	byID := map[string]models.ProviderConfig{}
	for _, p := range cfg.Providers {
		byID[p.ID] = p
	}
	require.Contains(t, byID, "openai")
	assert.Equal(t, "sk-env", byID["openai"].APIKey, "file entry without key keeps the env key")
	require.Len(t, byID["openai"].Models, 1)
	assert.True(t, byID["openai"].Models[0].Vision)
	assert.Equal(t, "http://localhost:1234/v1", byID["local-llm"].APIHost)

	assert.Equal(t, "gpt-4o", cfg.DefaultModel.ID)
	assert.Equal(t, models.ModelRef{Provider: "ollama", ID: "llama3"}, cfg.TopicNamingModel, "env wins over file")
}

func TestLoadCatalog_YAML(t *testing.T) {
	cat, err := LoadCatalog(write(t, "providers.yml", yamlCatalog))
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-test", cat.DefaultModel)
	require.Len(t, cat.Providers, 1)
	assert.Equal(t, "ak-file", cat.Providers[0].APIKey)
	assert.Equal(t, "Claude", cat.Providers[0].Models[0].Name)
}

func TestLoadCatalog_Errors(t *testing.T) {
	_, err := LoadCatalog(write(t, "providers.json", "{}"))
	assert.Error(t, err)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = LoadCatalog(write(t, "bad.toml", "providers = ["))
	assert.Error(t, err)
}

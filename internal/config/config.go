package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/suPer8Hu/chatcore/internal/models"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBDSN     string
	HTTPAddr  string
	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// rabbitMQ; empty URL names topics in-process
	RabbitURL   string
	RabbitQueue string

	FilesDir  string
	LogLevel  string
	LogFormat string

	// AI providers
	ProvidersFile    string
	Providers        []models.ProviderConfig
	DefaultModel     models.ModelRef
	TopicNamingModel models.ModelRef
	TranslateModel   models.ModelRef

	TitleNamingRate   float64
	WorkerConcurrency int
}

// Catalog is the optional providers file (TOML or YAML).
type Catalog struct {
	DefaultModel     string                  `toml:"default_model" yaml:"default_model"`
	TopicNamingModel string                  `toml:"topic_naming_model" yaml:"topic_naming_model"`
	TranslateModel   string                  `toml:"translate_model" yaml:"translate_model"`
	Providers        []models.ProviderConfig `toml:"providers" yaml:"providers"`
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func Load() (Config, error) {
	// DSN demo:
	// data/chatcore.db (sqlite) or
	// app:apppass@tcp(127.0.0.1:3306)/chatcore?charset=utf8mb4&parseTime=true&loc=Local
	cfg := Config{
		DBDSN:     getenv("DB_DSN", "data/chatcore.db"),
		HTTPAddr:  getenv("HTTP_ADDR", "127.0.0.1:8787"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getint("REDIS_DB", 0),

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: getenv("RABBIT_QUEUE", "title_jobs"),

		FilesDir:  getenv("FILES_DIR", filepath.Join("data", "files")),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "text"),

		ProvidersFile: os.Getenv("PROVIDERS_FILE"),

		TitleNamingRate:   getfloat("TITLE_NAMING_RATE", 1),
		WorkerConcurrency: clamp(getint("WORKER_CONCURRENCY", 2), 1, 50),
	}

	providers := envProviders()
	defaults := [3]string{
		os.Getenv("DEFAULT_MODEL"),
		os.Getenv("TOPIC_NAMING_MODEL"),
		os.Getenv("TRANSLATE_MODEL"),
	}

	if cfg.ProvidersFile != "" {
		cat, err := LoadCatalog(cfg.ProvidersFile)
		if err != nil {
			return Config{}, err
		}
		providers = merge(providers, cat.Providers)
		for i, v := range []string{cat.DefaultModel, cat.TopicNamingModel, cat.TranslateModel} {
			if defaults[i] == "" {
				defaults[i] = v
			}
		}
	}
	if defaults[0] == "" {
		defaults[0] = "ollama/" + getenv("OLLAMA_MODEL", "llama3:latest")
	}

	cfg.Providers = providers
	cfg.DefaultModel = models.ParseModelRef(defaults[0])
	cfg.TopicNamingModel = models.ParseModelRef(defaults[1])
	cfg.TranslateModel = models.ParseModelRef(defaults[2])
	return cfg, nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func staticModel(envKey, def string) []models.ModelDescriptor {
	if id := getenv(envKey, def); id != "" {
		return []models.ModelDescriptor{{ID: id, Name: id}}
	}
	return nil
}

// envProviders derives the catalog from API keys in the environment. Ollama
// needs no key and is always present.
func envProviders() []models.ProviderConfig {
	out := []models.ProviderConfig{{
		ID:      "ollama",
		Type:    "ollama",
		Name:    "Ollama",
		APIHost: getenv("OLLAMA_BASE_URL", "http://localhost:11434"),
		Models:  staticModel("OLLAMA_MODEL", "llama3:latest"),
	}}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		out = append(out, models.ProviderConfig{
			ID: "openai", Type: "openai", Name: "OpenAI", APIKey: key,
			APIHost: os.Getenv("OPENAI_BASE_URL"),
			Models:  staticModel("OPENAI_MODEL", ""),
		})
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		headers := map[string]string{}
		if v := os.Getenv("OPENROUTER_SITE_URL"); v != "" {
			headers["HTTP-Referer"] = v
		}
		if v := os.Getenv("OPENROUTER_APP_NAME"); v != "" {
			headers["X-Title"] = v
		}
		out = append(out, models.ProviderConfig{
			ID: "openrouter", Type: "openrouter", Name: "OpenRouter", APIKey: key,
			APIHost: os.Getenv("OPENROUTER_BASE_URL"),
			Models:  staticModel("OPENROUTER_MODEL", "openrouter/auto"),
			Headers: headers,
		})
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		out = append(out, models.ProviderConfig{
			ID: "gemini", Type: "gemini", Name: "Gemini", APIKey: key,
			APIHost: os.Getenv("GEMINI_BASE_URL"),
			Models:  staticModel("GEMINI_MODEL", ""),
		})
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		out = append(out, models.ProviderConfig{
			ID: "anthropic", Type: "anthropic", Name: "Anthropic", APIKey: key,
			APIHost: os.Getenv("ANTHROPIC_BASE_URL"),
			Models:  staticModel("ANTHROPIC_MODEL", ""),
		})
	}
	return out
}

// merge overlays file entries on env entries by id. A file entry without a
// key inherits the env key so secrets can stay out of the file.
func merge(env, file []models.ProviderConfig) []models.ProviderConfig {
	byID := make(map[string]models.ProviderConfig, len(env)+len(file))
	for _, p := range env {
		byID[p.ID] = p
	}
	for _, p := range file {
		p.ID = strings.ToLower(strings.TrimSpace(p.ID))
		if prev, ok := byID[p.ID]; ok && p.APIKey == "" {
			p.APIKey = prev.APIKey
		}
		byID[p.ID] = p
	}
	out := make([]models.ProviderConfig, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadCatalog parses a providers file, picking the format from its extension.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	var cat Catalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &cat); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cat); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("providers file %s: unsupported format (want .toml, .yaml or .yml)", path)
	}
	return &cat, nil
}

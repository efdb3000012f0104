package ai

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/suPer8Hu/chatcore/internal/models"
)

const (
	TypeOpenAI     = "openai"
	TypeOpenRouter = "openrouter"
	TypeGemini     = "gemini"
	TypeOllama     = "ollama"
	TypeAnthropic  = "anthropic"
)

type ProviderFactory func(cfg models.ProviderConfig, deps Deps) (Provider, error)

// Registry maps configured provider ids to their variant. Instances are
// built lazily and cached until the provider is reconfigured.
type Registry struct {
	mu        sync.RWMutex
	deps      Deps
	factories map[string]ProviderFactory
	configs   map[string]models.ProviderConfig
	instances map[string]Provider
}

func NewRegistry(deps Deps) *Registry {
	r := &Registry{
		deps:      deps.withDefaults(),
		factories: make(map[string]ProviderFactory),
		configs:   make(map[string]models.ProviderConfig),
		instances: make(map[string]Provider),
	}
	r.Register(TypeOpenAI, func(cfg models.ProviderConfig, d Deps) (Provider, error) {
		return newOpenAI(cfg, d, defaultOpenAIBaseURL), nil
	})
	r.Register(TypeOpenRouter, func(cfg models.ProviderConfig, d Deps) (Provider, error) {
		return newOpenAI(cfg, d, defaultOpenRouterBaseURL), nil
	})
	r.Register(TypeGemini, func(cfg models.ProviderConfig, d Deps) (Provider, error) {
		return newGemini(cfg, d), nil
	})
	r.Register(TypeOllama, func(cfg models.ProviderConfig, d Deps) (Provider, error) {
		return newOllama(cfg, d), nil
	})
	r.Register(TypeAnthropic, func(cfg models.ProviderConfig, d Deps) (Provider, error) {
		return newAnthropic(cfg, d), nil
	})
	return r
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (r *Registry) Register(typ string, f ProviderFactory) {
	typ = normalize(typ)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = f
	for id, cfg := range r.configs {
		if normalize(cfg.Type) == typ {
			delete(r.instances, id)
		}
	}
}

// Configure adds or replaces provider configurations. The type defaults to the id.
func (r *Registry) Configure(cfgs ...models.ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range cfgs {
		cfg.ID = normalize(cfg.ID)
		if cfg.ID == "" {
			return validationError("", "provider id is required")
		}
		if cfg.Type == "" {
			cfg.Type = cfg.ID
		}
		if _, ok := r.factories[normalize(cfg.Type)]; !ok {
			return validationError(cfg.ID, "unknown provider type %q", cfg.Type)
		}
		r.configs[cfg.ID] = cfg
		delete(r.instances, cfg.ID)
	}
	return nil
}

func (r *Registry) Get(id string) (Provider, error) {
	id = normalize(id)
	r.mu.RLock()
	p, ok := r.instances[id]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.instances[id]; ok {
		return p, nil
	}
	cfg, ok := r.configs[id]
	if !ok {
		return nil, validationError(id, "unknown ai provider")
	}
	f, ok := r.factories[normalize(cfg.Type)]
	if !ok {
		return nil, validationError(id, "unknown provider type %q", cfg.Type)
	}
	p, err := f(cfg, r.deps)
	if err != nil {
		return nil, fmt.Errorf("init provider %s: %w", id, err)
	}
	r.instances[id] = p
	return p, nil
}

// Config returns the configuration of one provider.
func (r *Registry) Config(id string) (models.ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[normalize(id)]
	return cfg, ok
}

// Configs lists configured providers sorted by id.
func (r *Registry) Configs() []models.ProviderConfig {
	r.mu.RLock()
	out := make([]models.ProviderConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, cfg)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Defaults() Defaults { return r.deps.Defaults }

// Resolve picks the first non-empty ref, falling back to the chat default.
// A ref without a provider uses the chat default's provider.
func (r *Registry) Resolve(refs ...models.ModelRef) (Provider, models.ModelRef, error) {
	ref := r.deps.Defaults.Chat
	for _, c := range refs {
		if !c.Empty() {
			ref = c
			break
		}
	}
	if ref.Provider == "" {
		ref.Provider = r.deps.Defaults.Chat.Provider
	}
	if ref.Empty() {
		return nil, ref, validationError(ref.Provider, "model is required")
	}
	if ref.Provider == "" {
		return nil, ref, validationError("", "no provider configured for model %q", ref.ID)
	}
	p, err := r.Get(ref.Provider)
	if err != nil {
		return nil, ref, err
	}
	return p, ref, nil
}

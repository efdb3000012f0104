package models

import "strings"

// ModelDescriptor is read-only catalog data, either listed live by a backend
// or declared statically in the provider catalog.
type ModelDescriptor struct {
	ID          string `json:"id" toml:"id" yaml:"id"`
	Name        string `json:"name" toml:"name" yaml:"name"`
	Description string `json:"description,omitempty" toml:"description" yaml:"description"`
	Provider    string `json:"provider" toml:"provider" yaml:"provider"`
	Vision      bool   `json:"vision,omitempty" toml:"vision" yaml:"vision"`
}

// ModelRef points at a model of a configured provider.
type ModelRef struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
}

func (r ModelRef) Empty() bool { return r.ID == "" }

func (r ModelRef) String() string {
	if r.Provider == "" {
		return r.ID
	}
	return r.Provider + "/" + r.ID
}

// ParseModelRef parses "provider/model". Model ids may themselves contain
// slashes (e.g. "openrouter/meta-llama/llama-3"), so only the first one splits.
func ParseModelRef(s string) ModelRef {
	s = strings.TrimSpace(s)
	if s == "" {
		return ModelRef{}
	}
	provider, id, ok := strings.Cut(s, "/")
	if !ok {
		return ModelRef{ID: s}
	}
	return ModelRef{Provider: provider, ID: id}
}

// ProviderConfig describes one configured backend.
type ProviderConfig struct {
	ID      string            `json:"id" toml:"id" yaml:"id"`
	Type    string            `json:"type" toml:"type" yaml:"type"`
	Name    string            `json:"name" toml:"name" yaml:"name"`
	APIKey  string            `json:"-" toml:"api_key" yaml:"api_key"`
	APIHost string            `json:"api_host" toml:"api_host" yaml:"api_host"`
	Models  []ModelDescriptor `json:"models" toml:"models" yaml:"models"`
	// Headers are sent with every request (e.g. OpenRouter's HTTP-Referer / X-Title).
	Headers map[string]string `json:"-" toml:"headers" yaml:"headers"`
}

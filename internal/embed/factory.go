package embed

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/dawnsearch/dawnsearch/internal/adapters"
)

// ProviderType selects which adapters.Embedder NewEmbedder constructs.
type ProviderType string

const (
	// ProviderOllama calls out to a running Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses the hash-based fallback embedder — no network,
	// no external process, reduced semantic quality.
	ProviderStatic ProviderType = "static"
)

// ParseProvider converts a config string to a ProviderType, defaulting to
// Ollama for anything unrecognized.
func ParseProvider(s string) ProviderType {
	if strings.EqualFold(s, string(ProviderStatic)) {
		return ProviderStatic
	}
	return ProviderOllama
}

func (p ProviderType) String() string { return string(p) }

// NewEmbedder constructs the embedder the search provider embeds pages
// and queries with, wrapped in an LRU cache. DAWNSEARCH_EMBEDDER
// overrides provider at the environment level ("ollama" or "static");
// DAWNSEARCH_OLLAMA_HOST/DAWNSEARCH_OLLAMA_MODEL/DAWNSEARCH_OLLAMA_TIMEOUT
// override the Ollama connection when that provider is selected.
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (adapters.Embedder, error) {
	if env := os.Getenv("DAWNSEARCH_EMBEDDER"); env != "" {
		provider = ParseProvider(env)
	}

	var embedder adapters.Embedder
	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	default:
		ollama, err := newOllamaFromEnv(ctx, model)
		if err != nil {
			return nil, err
		}
		embedder = ollama
	}

	return NewCachedEmbedder(embedder, DefaultEmbeddingCacheSize), nil
}

func newOllamaFromEnv(ctx context.Context, model string) (*OllamaEmbedder, error) {
	cfg := DefaultOllamaConfig()
	if model != "" {
		cfg.Model = model
	}
	if host := os.Getenv("DAWNSEARCH_OLLAMA_HOST"); host != "" {
		cfg.Host = host
	}
	if m := os.Getenv("DAWNSEARCH_OLLAMA_MODEL"); m != "" {
		cfg.Model = m
	}
	if timeoutStr := os.Getenv("DAWNSEARCH_OLLAMA_TIMEOUT"); timeoutStr != "" {
		if d, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = d
		}
	}
	return NewOllamaEmbedder(ctx, cfg)
}

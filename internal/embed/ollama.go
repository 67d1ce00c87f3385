package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	dawnerrors "github.com/dawnsearch/dawnsearch/internal/errors"
	"github.com/dawnsearch/dawnsearch/internal/vector"
)

// OllamaEmbedder generates embeddings by calling a running Ollama
// server's /api/embed endpoint. It is the real external-collaborator
// embedder. Embed retries a failed call with backoff; no circuit breaker
// wraps it.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	modelName string

	mu     sync.RWMutex
	closed bool
}

// NewOllamaEmbedder creates an Ollama embedder. Unless
// cfg.SkipHealthCheck is set, it confirms the configured model is
// installed and produces vector.Len-dimension embeddings before
// returning — a model mismatch is a startup error, not a runtime one.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOllamaTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultOllamaConnectTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultOllamaMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultOllamaPoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()

		if err := e.checkModelInstalled(checkCtx); err != nil {
			transport.CloseIdleConnections()
			return nil, dawnerrors.FatalStartup("ollama embedder unavailable", err)
		}

		dims, err := e.detectDimensions(checkCtx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, dawnerrors.FatalStartup("ollama embedder health check failed", err)
		}
		if dims != vector.Len {
			transport.CloseIdleConnections()
			return nil, dawnerrors.FatalStartup(
				fmt.Sprintf("ollama model %q produces %d-dimension embeddings, want %d", e.modelName, dims, vector.Len), nil)
		}
	}

	return e, nil
}

func (e *OllamaEmbedder) checkModelInstalled(ctx context.Context) error {
	models, err := e.listModels(ctx)
	if err != nil {
		return err
	}
	want := strings.ToLower(e.modelName)
	for _, m := range models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == strings.Split(want, ":")[0] {
			return nil
		}
	}
	return fmt.Errorf("model %q is not installed", e.modelName)
}

func (e *OllamaEmbedder) listModels(ctx context.Context) ([]OllamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}
	return result.Models, nil
}

func (e *OllamaEmbedder) detectDimensions(ctx context.Context) (int, error) {
	emb, err := e.doEmbed(ctx, "dimension detection")
	if err != nil {
		return 0, err
	}
	return len(emb), nil
}

// Embed returns the normalized embedding Ollama produces for text,
// retrying transient failures with exponential backoff.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (vector.Embedding, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, dawnerrors.Embedder("ollama embedder is closed", nil)
	}

	if strings.TrimSpace(text) == "" {
		return nil, dawnerrors.InvalidVector("cannot embed empty text")
	}

	cfg := dawnerrors.RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
	emb, err := dawnerrors.RetryWithResult(ctx, cfg, func() (vector.Embedding, error) {
		timeoutCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		return e.doEmbed(timeoutCtx, text)
	})
	if err != nil {
		return nil, dawnerrors.Embedder(fmt.Sprintf("ollama embed failed for model %q", e.modelName), err)
	}
	return emb, nil
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, text string) (vector.Embedding, error) {
	body, err := json.Marshal(OllamaEmbedRequest{Model: e.modelName, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	raw := result.Embeddings[0]
	v := make(vector.Embedding, len(raw))
	for i, f := range raw {
		v[i] = float32(f)
	}
	return normalizeEmbedding(v), nil
}

// ModelName returns the model identifier in use.
func (e *OllamaEmbedder) ModelName() string { return e.modelName }

// Close releases idle HTTP connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

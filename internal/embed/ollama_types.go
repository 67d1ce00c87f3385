package embed

import "time"

// Ollama API defaults.
const (
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel must produce vector.Len-dimension embeddings;
	// the embedder rejects any other width at construction time.
	DefaultOllamaModel = "embeddinggemma"

	DefaultOllamaTimeout        = 30 * time.Second
	DefaultOllamaConnectTimeout = 5 * time.Second
	DefaultOllamaMaxRetries     = 3
	DefaultOllamaPoolSize       = 4
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host            string
	Model           string
	Timeout         time.Duration
	ConnectTimeout  time.Duration
	MaxRetries      int
	PoolSize        int
	SkipHealthCheck bool // skips the startup model/dimension check, for tests
}

// DefaultOllamaConfig returns sensible defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		Timeout:        DefaultOllamaTimeout,
		ConnectTimeout: DefaultOllamaConnectTimeout,
		MaxRetries:     DefaultOllamaMaxRetries,
		PoolSize:       DefaultOllamaPoolSize,
	}
}

// OllamaEmbedRequest is the Ollama /api/embed request body.
type OllamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// OllamaEmbedResponse is the Ollama /api/embed response body.
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaModelListResponse is the Ollama /api/tags response body.
type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}

// OllamaModelInfo describes one model Ollama has installed.
type OllamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dawnsearch/dawnsearch/internal/adapters"
	"github.com/dawnsearch/dawnsearch/internal/vector"
)

// DefaultEmbeddingCacheSize is the default number of embeddings held in
// memory by a CachedEmbedder.
const DefaultEmbeddingCacheSize = 1000

// CachedEmbedder wraps an adapters.Embedder with LRU caching so a page
// re-embedded after a peer's MoreLikeSearch round-trip, or a repeated
// search query, skips the collaborator call entirely.
type CachedEmbedder struct {
	inner adapters.Embedder
	cache *lru.Cache[string, vector.Embedding]
}

// NewCachedEmbedder wraps inner with an LRU cache of the given size
// (DefaultEmbeddingCacheSize if size <= 0).
func NewCachedEmbedder(inner adapters.Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, vector.Embedding](size)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached embedding for text if present, otherwise
// computes it via the wrapped embedder and caches the result.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (vector.Embedding, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() adapters.Embedder { return c.inner }

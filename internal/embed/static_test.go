package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawnsearch/dawnsearch/internal/vector"
)

func TestStaticEmbedderProducesUnitVector(t *testing.T) {
	e := NewStaticEmbedder()
	v, err := e.Embed(context.Background(), "the quick brown fox jumps over the lazy dog")
	require.NoError(t, err)
	assert.Len(t, v, vector.Len)
	assert.True(t, vector.IsNormalized(v))
}

func TestStaticEmbedderIsDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	a, err := e.Embed(context.Background(), "golang concurrency patterns")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "golang concurrency patterns")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStaticEmbedderHandlesEmptyText(t *testing.T) {
	e := NewStaticEmbedder()
	v, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, vector.IsNormalized(v))
}

func TestStaticEmbedderDistinctTextsDiffer(t *testing.T) {
	e := NewStaticEmbedder()
	a, err := e.Embed(context.Background(), "search engines rank pages by relevance")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "peer to peer networking protocols")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSplitCamelCase(t *testing.T) {
	assert.Equal(t, []string{"get", "Embedding"}, splitCamelCase("getEmbedding"))
	assert.Equal(t, []string{"HTTP", "Server"}, splitCamelCase("HTTPServer"))
	assert.Equal(t, []string{}, splitCamelCase(""))
}

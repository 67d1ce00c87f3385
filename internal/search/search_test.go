package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawnsearch/dawnsearch/internal/adapters"
	"github.com/dawnsearch/dawnsearch/internal/vector"
)

// stubEmbedder assigns each text a deterministic unit vector derived from
// its first byte (weight 1 in that bucket, 0.3 in the next), so texts whose
// first letters are adjacent ("apples"/"banking") overlap while others
// ("apples"/"oranges") are orthogonal, without depending on the real hash
// embedder package.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) (vector.Embedding, error) {
	v := make(vector.Embedding, vector.Len)
	if len(text) == 0 {
		v[0] = 1
		return v, nil
	}
	bucket := int(text[0]) % vector.Len
	v[bucket] = 1
	v[(bucket+1)%vector.Len] = 0.3
	return normalizeForTest(v), nil
}

func normalizeForTest(v vector.Embedding) vector.Embedding {
	l := vector.Length(v)
	if l == 0 {
		v[0] = 1
		return v
	}
	out := make(vector.Embedding, len(v))
	for i, x := range v {
		out[i] = x / l
	}
	return out
}

type fixedEmbedder struct {
	v vector.Embedding
}

func (f fixedEmbedder) Embed(_ context.Context, _ string) (vector.Embedding, error) {
	return f.v, nil
}

func TestInsertAndSearchEmbeddingRoundtrip(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(context.Background(), dir, stubEmbedder{})
	require.NoError(t, err)
	defer p.Shutdown()

	ctx := context.Background()
	_, err = p.Insert(ctx, adapters.ExtractedPage{URL: "u1", Title: "", Text: "apples"})
	require.NoError(t, err)
	_, err = p.Insert(ctx, adapters.ExtractedPage{URL: "u2", Title: "", Text: "oranges"})
	require.NoError(t, err)
	_, err = p.Insert(ctx, adapters.ExtractedPage{URL: "u3", Title: "", Text: "banking"})
	require.NoError(t, err)

	count, err := p.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	q, err := p.GetEmbedding(ctx, "apples")
	require.NoError(t, err)
	result, err := p.SearchEmbedding(ctx, q)
	require.NoError(t, err)
	assert.Len(t, result.Pages, 3)
	assert.Equal(t, uint64(3), result.PagesSearched)
}

func TestInsertDuplicateURLIsNoop(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(context.Background(), dir, stubEmbedder{})
	require.NoError(t, err)
	defer p.Shutdown()

	ctx := context.Background()
	id1, err := p.Insert(ctx, adapters.ExtractedPage{URL: "dup", Text: "first"})
	require.NoError(t, err)
	id2, err := p.Insert(ctx, adapters.ExtractedPage{URL: "dup", Text: "second"})
	require.NoError(t, err)
	assert.Zero(t, id2)
	assert.NotZero(t, id1)

	count, err := p.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestSearchEmbeddingRejectsNonUnitQuery(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(context.Background(), dir, stubEmbedder{})
	require.NoError(t, err)
	defer p.Shutdown()

	bad := make(vector.Embedding, vector.Len)
	bad[0] = 2 // norm 2, well outside tolerance
	_, err = p.SearchEmbedding(context.Background(), bad)
	assert.Error(t, err)
}

func TestInsertRejectsNonUnitEmbedding(t *testing.T) {
	dir := t.TempDir()
	bad := make(vector.Embedding, vector.Len)
	bad[0] = 1.5
	p, err := Open(context.Background(), dir, fixedEmbedder{v: bad})
	require.NoError(t, err)
	defer p.Shutdown()

	_, err = p.Insert(context.Background(), adapters.ExtractedPage{URL: "u1", Text: "x"})
	assert.Error(t, err)

	count, err := p.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSaveAndReopenPreservesIndex(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(context.Background(), dir, stubEmbedder{})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Insert(ctx, adapters.ExtractedPage{URL: "u1", Text: "apples"})
	require.NoError(t, err)
	require.NoError(t, p.Save())
	require.NoError(t, p.Shutdown())

	reopened, err := Open(ctx, dir, stubEmbedder{})
	require.NoError(t, err)
	defer reopened.Shutdown()

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	assert.FileExists(t, filepath.Join(dir, "index.usearch"))
}

func TestLocalSpaceAvailable(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(context.Background(), dir, stubEmbedder{})
	require.NoError(t, err)
	defer p.Shutdown()

	ok, err := p.LocalSpaceAvailable(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPassesOnCleanStore(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(context.Background(), dir, stubEmbedder{})
	require.NoError(t, err)
	defer p.Shutdown()

	ctx := context.Background()
	_, err = p.Insert(ctx, adapters.ExtractedPage{URL: "u1", Text: "apples"})
	require.NoError(t, err)

	report, err := p.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Zero(t, report.WrongLength)
	assert.Zero(t, report.NotNormalized)
}

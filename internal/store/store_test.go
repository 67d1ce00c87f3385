package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawnsearch/dawnsearch/internal/vector"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dawnsearch.sqlite")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func unitAt(i int) vector.Embedding {
	v := make(vector.Embedding, vector.Len)
	v[i] = 1
	return v
}

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, Page{URL: "https://example.com", Title: "Example", Text: "hello world", Embedding: unitAt(0)})
	require.NoError(t, err)
	assert.NotZero(t, id)

	page, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", page.URL)
	assert.Equal(t, "Example", page.Title)
	assert.True(t, vector.IsNormalized(page.Embedding))
}

func TestInsertDuplicateURL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, Page{URL: "https://dup.example", Title: "A", Text: "a", Embedding: unitAt(0)})
	require.NoError(t, err)

	_, err = s.Insert(ctx, Page{URL: "https://dup.example", Title: "B", Text: "b", Embedding: unitAt(1)})
	assert.ErrorIs(t, err, ErrDuplicateURL)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.Insert(ctx, Page{URL: "https://a.example", Title: "A", Text: "a", Embedding: unitAt(0)})
	require.NoError(t, err)

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestEmbeddingFor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, Page{URL: "https://e.example", Title: "E", Text: "e", Embedding: unitAt(2)})
	require.NoError(t, err)

	emb, err := s.EmbeddingFor(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, float32(1), emb[2])
}

func TestScanEmbeddingsVisitsAllRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Insert(ctx, Page{URL: filepath.Join("https://x.example", string(rune('a'+i))), Title: "x", Text: "x", Embedding: unitAt(i % vector.Len)})
		require.NoError(t, err)
	}

	var seen int
	err := s.ScanEmbeddings(ctx, func(row EmbeddingRow) error {
		seen++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, seen)
}

func TestVerifyReportsNoViolationsForCleanStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, Page{URL: "https://v.example", Title: "V", Text: "v", Embedding: unitAt(0)})
	require.NoError(t, err)

	counts, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Scanned)
	assert.Zero(t, counts.WrongLength)
	assert.Zero(t, counts.NotNormalized)
}

func TestOpenRefusesSecondLockHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dawnsearch.sqlite")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(path)
	assert.Error(t, err)
}

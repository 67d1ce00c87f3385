package searchsvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawnsearch/dawnsearch/internal/adapters"
	"github.com/dawnsearch/dawnsearch/internal/search"
	"github.com/dawnsearch/dawnsearch/internal/udpsvc"
	"github.com/dawnsearch/dawnsearch/internal/vector"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) (vector.Embedding, error) {
	v := make(vector.Embedding, vector.Len)
	if len(text) == 0 {
		v[0] = 1
		return v, nil
	}
	bucket := int(text[0]) % vector.Len
	v[bucket] = 1
	l := vector.Length(v)
	for i := range v {
		v[i] /= l
	}
	return v, nil
}

type stubFanout struct {
	searchResult udpsvc.SearchCompletion
	searchErr    error
	insertCalled bool
	embResult    vector.Embedding
	embErr       error
}

func (f *stubFanout) Search(_ context.Context, _ vector.Embedding, _ *float32) (udpsvc.SearchCompletion, error) {
	return f.searchResult, f.searchErr
}

func (f *stubFanout) Insert(_ context.Context, _ adapters.ExtractedPage) error {
	f.insertCalled = true
	return nil
}

func (f *stubFanout) GetEmbedding(_ context.Context, _ string, _ uint64) (vector.Embedding, error) {
	return f.embResult, f.embErr
}

func newTestService(t *testing.T, fanout Fanout) (*Service, context.CancelFunc) {
	t.Helper()
	dir := t.TempDir()
	provider, err := search.Open(context.Background(), dir, stubEmbedder{})
	require.NoError(t, err)

	svc := New(provider, fanout)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return svc, cancel
}

func TestTextSearchLocalOnly(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Insert(ctx, adapters.ExtractedPage{URL: "u1", Text: "apples"}, false))
	require.NoError(t, svc.Insert(ctx, adapters.ExtractedPage{URL: "u2", Text: "oranges"}, false))
	time.Sleep(50 * time.Millisecond) // inserts are async fire-and-forget

	res, err := svc.TextSearch(ctx, "apples")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Pages)
	assert.Zero(t, res.ServersContacted)
}

func TestTextSearchMergesRemoteResults(t *testing.T) {
	fanout := &stubFanout{
		searchResult: udpsvc.SearchCompletion{
			ServersContacted: 1,
			PagesSearched:    5,
			Results: []udpsvc.RemotePage{
				{InstanceID: "peerB", PageID: 42, Distance: 0.01, URL: "http://remote", Title: "Remote", Text: "text"},
			},
		},
	}
	svc, _ := newTestService(t, fanout)
	ctx := context.Background()

	require.NoError(t, svc.Insert(ctx, adapters.ExtractedPage{URL: "u1", Text: "apples"}, false))
	time.Sleep(50 * time.Millisecond)

	res, err := svc.TextSearch(ctx, "apples")
	require.NoError(t, err)
	assert.Equal(t, uint(1), res.ServersContacted)

	var foundRemote bool
	for _, p := range res.Pages {
		if p.InstanceID == "peerB" {
			foundRemote = true
		}
	}
	assert.True(t, foundRemote)
}

func TestInsertFromNetworkDoesNotReplicate(t *testing.T) {
	fanout := &stubFanout{}
	svc, _ := newTestService(t, fanout)
	ctx := context.Background()

	require.NoError(t, svc.Insert(ctx, adapters.ExtractedPage{URL: "u1", Text: "apples"}, true))
	time.Sleep(50 * time.Millisecond)

	assert.False(t, fanout.insertCalled)
}

func TestInsertLocalReplicates(t *testing.T) {
	fanout := &stubFanout{}
	svc, _ := newTestService(t, fanout)
	ctx := context.Background()

	require.NoError(t, svc.Insert(ctx, adapters.ExtractedPage{URL: "u1", Text: "apples"}, false))
	time.Sleep(50 * time.Millisecond)

	assert.True(t, fanout.insertCalled)
}

func TestMoreLikeSearchRemotePeerUsesFanoutEmbedding(t *testing.T) {
	want := vector.RandomUnit()
	fanout := &stubFanout{embResult: want}
	svc, _ := newTestService(t, fanout)
	ctx := context.Background()

	res, err := svc.MoreLikeSearch(ctx, "peerB", 7)
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestStatsReportsPageCount(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Insert(ctx, adapters.ExtractedPage{URL: "u1", Text: "apples"}, false))
	time.Sleep(50 * time.Millisecond)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.PagesIndexed)
}

func TestShutdownStopsLoop(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))
}

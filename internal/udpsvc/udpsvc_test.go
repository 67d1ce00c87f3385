package udpsvc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawnsearch/dawnsearch/internal/adapters"
	"github.com/dawnsearch/dawnsearch/internal/vector"
)

var netUDPAddrZero net.UDPAddr

type stubBackend struct {
	mu      sync.Mutex
	pages   []LocalPage
	inserts []adapters.ExtractedPage
	embs    map[uint64]vector.Embedding
}

func newStubBackend() *stubBackend {
	return &stubBackend{embs: make(map[uint64]vector.Embedding)}
}

func (b *stubBackend) SearchEmbeddingLocal(_ context.Context, _ vector.Embedding) ([]LocalPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pages, nil
}

func (b *stubBackend) InsertFromNetwork(_ context.Context, page adapters.ExtractedPage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inserts = append(b.inserts, page)
	return nil
}

func (b *stubBackend) EmbeddingFor(_ context.Context, pageID uint64) (vector.Embedding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.embs[pageID], nil
}

func (b *stubBackend) PagesIndexed(_ context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.pages)), nil
}

func startService(t *testing.T, acceptInsert bool) (*Service, *stubBackend, context.CancelFunc) {
	t.Helper()
	backend := newStubBackend()
	svc, err := New(Config{ListenAddr: "127.0.0.1:0", AcceptInsert: acceptInsert}, backend)
	require.NoError(t, err)

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
	return svc, backend, cancel
}

func TestNewInstanceIDsAreDistinctAndAlphanumeric(t *testing.T) {
	a := newInstanceID()
	b := newInstanceID()
	assert.Len(t, a, 16)
	assert.Len(t, b, 16)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.True(t, (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}
}

func TestSearchWithNoPeersReturnsImmediately(t *testing.T) {
	svc, backend, _ := startService(t, false)
	backend.mu.Lock()
	backend.pages = []LocalPage{{PageID: 1, Distance: 0.1, URL: "u", Title: "t", Text: "x"}}
	backend.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	res, err := svc.Search(ctx, vector.RandomUnit(), nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), searchDeadline)
	assert.Zero(t, res.ServersContacted)
}

func TestSearchFansOutToKnownPeerAndCollectsPage(t *testing.T) {
	svcA, backendA, _ := startService(t, false)
	svcB, backendB, _ := startService(t, false)
	_ = backendA

	backendB.mu.Lock()
	backendB.pages = []LocalPage{{PageID: 7, Distance: 0.2, URL: "http://b/page", Title: "B Page", Text: "hello world"}}
	backendB.mu.Unlock()

	// Manually wire A's peer table to point at B, bypassing the
	// tracker/Announce flow the integration tests don't exercise.
	svcA.peers["peerB"] = &peerEntry{
		instanceID:   "peerB",
		addr:         svcB.conn.LocalAddr().(*net.UDPAddr),
		acceptInsert: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := svcA.Search(ctx, vector.RandomUnit(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint(1), res.ServersContacted)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "http://b/page", res.Results[0].URL)
}

func TestInsertReplicationRespectsAcceptInsertFlag(t *testing.T) {
	svcA, _, _ := startService(t, false)
	svcB, backendB, _ := startService(t, true)

	svcA.peers["peerB"] = &peerEntry{
		instanceID:   "peerB",
		addr:         svcB.conn.LocalAddr().(*net.UDPAddr),
		acceptInsert: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := svcA.Insert(ctx, adapters.ExtractedPage{URL: "http://new", Title: "New", Text: "body"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		backendB.mu.Lock()
		defer backendB.mu.Unlock()
		return len(backendB.inserts) == 1
	}, time.Second, 10*time.Millisecond)

	backendB.mu.Lock()
	defer backendB.mu.Unlock()
	assert.Equal(t, "http://new", backendB.inserts[0].URL)
}

func TestGetEmbeddingRoundTrip(t *testing.T) {
	svcA, _, _ := startService(t, false)
	svcB, backendB, _ := startService(t, false)

	want := vector.RandomUnit()
	backendB.mu.Lock()
	backendB.embs[99] = want
	backendB.mu.Unlock()

	svcA.peers["peerB"] = &peerEntry{
		instanceID:   "peerB",
		addr:         svcB.conn.LocalAddr().(*net.UDPAddr),
		acceptInsert: false,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := svcA.GetEmbedding(ctx, "peerB", 99)
	require.NoError(t, err)

	for i := range want {
		assert.InDelta(t, want[i], got[i], 0.01)
	}
}

func TestGetEmbeddingUnknownPeerErrors(t *testing.T) {
	svcA, _, _ := startService(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := svcA.GetEmbedding(ctx, "nobody", 1)
	assert.Error(t, err)
}

func TestPeersSnapshotReflectsTable(t *testing.T) {
	svcA, _, _ := startService(t, false)
	svcA.peers["peerB"] = &peerEntry{instanceID: "peerB", addr: &netUDPAddrZero, acceptInsert: true, pagesIndexed: 5, lastSeen: time.Now()}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := svcA.Peers(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "peerB", snap[0].InstanceID)
	assert.True(t, snap[0].AcceptInsert)
}

func TestOnTickExpiresStalePeers(t *testing.T) {
	svcA, _, _ := startService(t, false)
	svcA.peers["stale"] = &peerEntry{instanceID: "stale", addr: &netUDPAddrZero, lastSeen: time.Now().Add(-peerExpiry - time.Second)}
	svcA.onTick()
	assert.NotContains(t, svcA.peers, "stale")
}

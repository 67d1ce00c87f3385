// Package udpsvc implements the UDP service (C7): the single event loop
// multiplexing a bound UDP socket, outbound commands from the search
// service, and the Tick/Announce timers. Every mutation of the peer
// table, active-search registry, and active-get-embedding registry
// happens inside Run's one goroutine, so none of it needs a lock.
//
// Grounded on original_source/src/net/udp_service.rs's single select-loop
// (tokio::select! over socket.recv_from, a command channel, Tick and
// Announce) and internal/async/indexer.go's stopCh/doneCh shutdown shape
// from the teacher, generalized here to a lifecycle.Token. Command
// dispatch to the search service runs through the Backend interface
// rather than a direct import of internal/searchsvc, avoiding the cyclic
// dependency the two halves of the protocol would otherwise create
// (searchsvc commands udpsvc for fan-out; udpsvc calls back into
// searchsvc to answer inbound peer requests).
//
// That callback is the one place Run must not block: handleDatagram
// dispatches inbound Search/Insert/GetEmbedding to a short-lived worker
// goroutine rather than calling the Backend inline, because searchsvc's
// own Run goroutine can simultaneously be parked inside fanout.Search
// waiting on this loop's onTick to fire. Two single-writer loops calling
// synchronously back into each other is the re-entrancy spec §9 rules
// out — block either loop on the other and neither drains its channel
// again. Only the cheap, map-reading parts of dispatch (the search-id
// loop guard) run inline on the Run goroutine; everything that touches
// the Backend runs off it.
package udpsvc

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dawnsearch/dawnsearch/internal/adapters"
	dawnerrors "github.com/dawnsearch/dawnsearch/internal/errors"
	"github.com/dawnsearch/dawnsearch/internal/metrics"
	"github.com/dawnsearch/dawnsearch/internal/peer"
	"github.com/dawnsearch/dawnsearch/internal/vector"
)

const (
	tickInterval     = 50 * time.Millisecond
	announceInterval = 60 * time.Second
	searchDeadline   = 200 * time.Millisecond
	peerExpiry       = 300 * time.Second
	maxInsertTargets = 3
	trackerPort      = 7230

	// commandQueueDepth matches the spec's bounded-channel convention for
	// producer->service traffic (search_tx/udp_tx, capacity 2) — small on
	// purpose, so a stalled loop backs up its callers quickly rather than
	// buffering unbounded work.
	commandQueueDepth = 2
)

// Backend is the callback surface the UDP loop uses to answer inbound
// peer requests by reaching into the search service's single-writer
// state. The search service implements this; udpsvc never imports it.
type Backend interface {
	// SearchEmbeddingLocal performs a local-only embedding search —
	// never itself fans out to peers, since an inbound Search datagram
	// is already someone else's fan-out.
	SearchEmbeddingLocal(ctx context.Context, q vector.Embedding) ([]LocalPage, error)
	// InsertFromNetwork inserts a replicated page without re-replicating
	// it (the sender already did its own fan-out).
	InsertFromNetwork(ctx context.Context, page adapters.ExtractedPage) error
	// EmbeddingFor answers a peer's GetEmbedding request.
	EmbeddingFor(ctx context.Context, pageID uint64) (vector.Embedding, error)
	// PagesIndexed reports local page count for the Announce message.
	PagesIndexed(ctx context.Context) (uint64, error)
}

// LocalPage is one hit from a local-only embedding search, the shape the
// UDP loop turns into wire Page replies.
type LocalPage struct {
	PageID   uint64
	Distance float32
	URL      string
	Title    string
	Text     string
}

// RemotePage is one hit a remote peer reported back for one of our
// outbound searches.
type RemotePage struct {
	InstanceID string
	PageID     uint64
	Distance   float32
	URL        string
	Title      string
	Text       string
}

// SearchCompletion is delivered once an outbound search's deadline has
// passed — see spec §4.7 Tick.
type SearchCompletion struct {
	Results          []RemotePage
	ServersContacted uint
	ServersResponded uint
	PagesSearched    uint64
}

// GetEmbeddingCompletion answers an outbound GetEmbedding request.
type GetEmbeddingCompletion struct {
	Embedding vector.Embedding
	Err       error
}

// PeerSnapshot is a read-only copy of one peer-table entry, safe to hand
// to callers outside the loop (e.g. an HTTP /debug/peers handler).
type PeerSnapshot struct {
	InstanceID   string
	Address      string
	AcceptInsert bool
	PagesIndexed uint64
	LastSeen     time.Time
}

// Config configures a Service.
type Config struct {
	ListenAddr   string
	Trackers     []string
	AcceptInsert bool
	UPnP         bool
}

type peerEntry struct {
	instanceID   string
	addr         *net.UDPAddr
	acceptInsert bool
	pagesIndexed uint64
	lastSeen     time.Time
}

type activeSearch struct {
	deadline         time.Time
	results          []RemotePage
	serversContacted uint
	responded        map[string]struct{}
	pagesSearched    uint64
	reply            chan SearchCompletion
}

type activeGetEmbedding struct {
	instanceID string
	reply      chan GetEmbeddingCompletion
	breaker    *dawnerrors.CircuitBreaker
	started    time.Time
}

type datagram struct {
	data []byte
	addr *net.UDPAddr
}

// Service is the UDP service (C7). Construct with New, then run it with
// Run until the lifecycle token fires.
type Service struct {
	conn         *net.UDPConn
	backend      Backend
	instanceID   string
	trackerAddrs []*net.UDPAddr
	acceptInsert bool
	upnp         bool

	peers               map[string]*peerEntry
	activeSearches      map[uint64]*activeSearch
	activeGetEmbeddings map[uint64]*activeGetEmbedding
	breakers            map[string]*dawnerrors.CircuitBreaker

	cmdCh  chan any
	recvCh chan datagram

	// inflight tracks worker goroutines spawned for inbound Search/
	// Insert/GetEmbedding dispatch (see the package doc) so Run can wait
	// for them to drain on shutdown instead of abandoning them.
	inflight sync.WaitGroup
}

// New binds the UDP socket at cfg.ListenAddr and resolves tracker
// addresses. A bind failure is the FatalStartup condition spec §7
// describes — callers should treat a non-nil error here as fatal.
func New(cfg Config, backend Backend) (*Service, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, dawnerrors.FatalStartup(fmt.Sprintf("invalid udp_listen_address %q", cfg.ListenAddr), err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, dawnerrors.FatalStartup(fmt.Sprintf("cannot bind udp socket %q", cfg.ListenAddr), err)
	}

	trackers := make([]*net.UDPAddr, 0, len(cfg.Trackers))
	for _, t := range cfg.Trackers {
		ta, err := net.ResolveUDPAddr("udp", t)
		if err != nil {
			slog.Warn("tracker_address_invalid", slog.String("address", t), slog.String("error", err.Error()))
			continue
		}
		trackers = append(trackers, ta)
	}

	return &Service{
		conn:                conn,
		backend:             backend,
		instanceID:          newInstanceID(),
		trackerAddrs:        trackers,
		acceptInsert:        cfg.AcceptInsert,
		upnp:                cfg.UPnP,
		peers:               make(map[string]*peerEntry),
		activeSearches:      make(map[uint64]*activeSearch),
		activeGetEmbeddings: make(map[uint64]*activeGetEmbedding),
		breakers:            make(map[string]*dawnerrors.CircuitBreaker),
		cmdCh:               make(chan any, commandQueueDepth),
		recvCh:              make(chan datagram, commandQueueDepth),
	}, nil
}

// InstanceID returns this node's 16-character random identifier,
// generated once at construction and held for the process lifetime.
func (s *Service) InstanceID() string { return s.instanceID }

// newInstanceID derives a 16-character alphanumeric id from a fresh
// uuid.New() value — one byte of entropy per output character — rather
// than the original implementation's socket address (which changes across
// restarts and NATs and collides behind shared gateways; see DESIGN.md).
func newInstanceID() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	id := uuid.New()
	out := make([]byte, len(id))
	for i, b := range id {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}

// freshUint64 derives a pseudo-random uint64 from uuid.New() entropy, used
// to seed search_id and active_get_embeddings keys.
func freshUint64() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}

// Run drives the event loop until ctx is cancelled. Any pending active
// searches complete with whatever results they have buffered before Run
// returns, matching the spec's cancellation contract.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })

	if s.upnp {
		s.attemptUPnP()
	}

	tick := time.NewTicker(tickInterval)
	announce := time.NewTicker(announceInterval)
	defer tick.Stop()
	defer announce.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
			s.drainActiveSearches()
			_ = g.Wait()
			s.inflight.Wait()
			return nil
		case dg := <-s.recvCh:
			s.handleDatagram(ctx, dg.data, dg.addr)
		case cmd := <-s.cmdCh:
			s.handleCommand(ctx, cmd)
		case <-tick.C:
			s.onTick()
		case <-announce.C:
			s.onAnnounce(ctx)
		}
	}
}

func (s *Service) drainActiveSearches() {
	for id, as := range s.activeSearches {
		delete(s.activeSearches, id)
		as.reply <- SearchCompletion{
			Results:          as.results,
			ServersContacted: as.serversContacted,
			ServersResponded: uint(len(as.responded)),
			PagesSearched:    as.pagesSearched,
		}
	}
}

func (s *Service) readLoop(ctx context.Context) error {
	buf := make([]byte, peer.MaxDatagramSize)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("udp_read_error", slog.String("error", err.Error()))
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case s.recvCh <- datagram{data: data, addr: addr}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) sendTo(addr *net.UDPAddr, msg any) {
	data, err := peer.Encode(msg)
	if err != nil {
		slog.Warn("udp_encode_failed", slog.String("error", err.Error()))
		return
	}
	if _, err := s.conn.WriteToUDP(data, addr); err != nil {
		slog.Warn("udp_send_failed", slog.String("addr", addr.String()), slog.String("error", err.Error()))
	}
}

func (s *Service) handleDatagram(ctx context.Context, data []byte, addr *net.UDPAddr) {
	tag, msg, err := peer.Decode(data)
	if err != nil {
		slog.Debug("udp_decode_failed", slog.String("addr", addr.String()), slog.String("error", err.Error()))
		return
	}

	switch tag {
	case peer.TagSearch:
		s.dispatchInboundSearch(ctx, msg.(peer.Search), addr)
	case peer.TagPeers:
		s.handleInboundPeers(msg.(peer.Peers))
	case peer.TagPage:
		s.handleInboundPage(msg.(peer.Page))
	case peer.TagInsert:
		s.dispatchInboundInsert(ctx, msg.(peer.Insert))
	case peer.TagGetEmbedding:
		s.dispatchInboundGetEmbedding(ctx, msg.(peer.GetEmbedding), addr)
	case peer.TagEmbedding:
		s.handleInboundEmbedding(msg.(peer.Embedding))
	case peer.TagAnnounce:
		// Announce is peer->tracker only in this node's role; a stray
		// peer->peer Announce carries nothing the inbound dispatch needs.
		slog.Debug("udp_announce_ignored", slog.String("addr", addr.String()))
	default:
		slog.Debug("udp_unknown_tag", slog.String("addr", addr.String()))
	}
}

// dispatchInboundSearch runs the loop guard inline (it only reads
// activeSearches, which is otherwise only ever touched from the Run
// goroutine) and hands everything that calls into the Backend off to a
// worker goroutine — see the package doc for why this can't run inline.
func (s *Service) dispatchInboundSearch(ctx context.Context, m peer.Search, addr *net.UDPAddr) {
	if _, loop := s.activeSearches[m.SearchID]; loop {
		return // we sent this search ourselves; drop to avoid a reply loop
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.handleInboundSearch(ctx, m, addr)
	}()
}

func (s *Service) handleInboundSearch(ctx context.Context, m peer.Search, addr *net.UDPAddr) {
	emb, err := peer.DecodeSearchEmbedding(m)
	if err != nil {
		slog.Debug("udp_search_embedding_invalid", slog.String("error", err.Error()))
		return
	}

	pages, err := s.backend.SearchEmbeddingLocal(ctx, emb)
	if err != nil {
		slog.Warn("udp_local_search_failed", slog.String("error", err.Error()))
		return
	}

	for _, pg := range pages {
		if m.DistanceLimit != nil && pg.Distance >= *m.DistanceLimit {
			continue
		}
		reply := peer.Page{
			SearchID:   m.SearchID,
			InstanceID: s.instanceID,
			PageID:     pg.PageID,
			Distance:   pg.Distance,
			URL:        pg.URL,
			Title:      pg.Title,
			Text:       peer.TruncatePageText(pg.Text),
		}
		s.sendTo(addr, reply)
	}
}

func (s *Service) handleInboundPeers(m peer.Peers) {
	fresh := make(map[string]*peerEntry, len(m.Peers))
	now := time.Now()
	for _, pi := range m.Peers {
		addr, err := net.ResolveUDPAddr("udp", pi.Address)
		if err != nil {
			slog.Debug("udp_peer_address_invalid", slog.String("address", pi.Address), slog.String("error", err.Error()))
			continue
		}
		fresh[pi.InstanceID] = &peerEntry{
			instanceID:   pi.InstanceID,
			addr:         addr,
			acceptInsert: pi.AcceptInsert,
			pagesIndexed: pi.PagesIndexed,
			lastSeen:     now,
		}
	}
	s.peers = fresh
}

func (s *Service) handleInboundPage(m peer.Page) {
	as, ok := s.activeSearches[m.SearchID]
	if !ok {
		slog.Debug("udp_page_unknown_search", slog.Uint64("search_id", m.SearchID))
		return
	}
	as.results = append(as.results, RemotePage{
		InstanceID: m.InstanceID,
		PageID:     m.PageID,
		Distance:   m.Distance,
		URL:        m.URL,
		Title:      m.Title,
		Text:       m.Text,
	})
	as.responded[m.InstanceID] = struct{}{}
}

// dispatchInboundInsert checks s.acceptInsert (a read-only config value,
// never mutated after New) inline, then hands the Backend call off to a
// worker goroutine for the same reason dispatchInboundSearch does.
func (s *Service) dispatchInboundInsert(ctx context.Context, m peer.Insert) {
	if !s.acceptInsert {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.handleInboundInsert(ctx, m)
	}()
}

func (s *Service) handleInboundInsert(ctx context.Context, m peer.Insert) {
	url, title, text, err := peer.DecodeInsert(m)
	if err != nil {
		slog.Debug("udp_insert_decode_failed", slog.String("error", err.Error()))
		return
	}
	if err := s.backend.InsertFromNetwork(ctx, adapters.ExtractedPage{URL: url, Title: title, Text: text}); err != nil {
		slog.Warn("udp_insert_from_network_failed", slog.String("error", err.Error()))
	}
}

// dispatchInboundGetEmbedding hands the Backend call off to a worker
// goroutine; there's no shared state to read first here, unlike
// dispatchInboundSearch/dispatchInboundInsert.
func (s *Service) dispatchInboundGetEmbedding(ctx context.Context, m peer.GetEmbedding, addr *net.UDPAddr) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.handleInboundGetEmbedding(ctx, m, addr)
	}()
}

func (s *Service) handleInboundGetEmbedding(ctx context.Context, m peer.GetEmbedding, addr *net.UDPAddr) {
	emb, err := s.backend.EmbeddingFor(ctx, m.PageID)
	if err != nil {
		slog.Debug("udp_get_embedding_failed", slog.Uint64("page_id", m.PageID), slog.String("error", err.Error()))
		return
	}
	reply, err := peer.NewEmbeddingMessage(m.SearchID, emb)
	if err != nil {
		slog.Warn("udp_embedding_encode_failed", slog.String("error", err.Error()))
		return
	}
	s.sendTo(addr, reply)
}

func (s *Service) handleInboundEmbedding(m peer.Embedding) {
	ge, ok := s.activeGetEmbeddings[m.SearchID]
	if !ok {
		return
	}
	delete(s.activeGetEmbeddings, m.SearchID)

	emb, err := peer.DecodeEmbedding(m)
	if err != nil {
		ge.breaker.RecordFailure()
		ge.reply <- GetEmbeddingCompletion{Err: dawnerrors.Codec("malformed embedding reply", err)}
		return
	}
	ge.breaker.RecordSuccess()
	ge.reply <- GetEmbeddingCompletion{Embedding: emb}
}

func (s *Service) onTick() {
	now := time.Now()
	for id, as := range s.activeSearches {
		if now.After(as.deadline) {
			delete(s.activeSearches, id)
			if uint(len(as.responded)) < as.serversContacted {
				metrics.PeerTimeoutsTotal.Inc()
			}
			as.reply <- SearchCompletion{
				Results:          as.results,
				ServersContacted: as.serversContacted,
				ServersResponded: uint(len(as.responded)),
				PagesSearched:    as.pagesSearched,
			}
		}
	}
	for id, p := range s.peers {
		if now.Sub(p.lastSeen) > peerExpiry {
			delete(s.peers, id)
		}
	}
	metrics.PeerCount.Set(float64(len(s.peers)))
}

func (s *Service) onAnnounce(ctx context.Context) {
	count, err := s.backend.PagesIndexed(ctx)
	if err != nil {
		slog.Warn("udp_announce_pages_indexed_failed", slog.String("error", err.Error()))
		return
	}
	msg := peer.Announce{InstanceID: s.instanceID, AcceptInsert: s.acceptInsert, PagesIndexed: count}
	for _, t := range s.trackerAddrs {
		s.sendTo(t, msg)
	}
}

func (s *Service) attemptUPnP() {
	// Best-effort: a failure here must never fail Announce or startup.
	// No UPnP client ships in the retrieved example pack (see DESIGN.md);
	// this is a deliberate no-op placeholder wired to the upnp config
	// flag rather than a silent feature drop — operators relying on NAT
	// traversal should configure static port forwarding instead.
	slog.Info("upnp_mapping_skipped", slog.String("reason", "no upnp client available; configure port forwarding manually"))
}

func (s *Service) breakerFor(instanceID string) *dawnerrors.CircuitBreaker {
	b, ok := s.breakers[instanceID]
	if !ok {
		b = dawnerrors.NewCircuitBreaker("peer:" + instanceID)
		s.breakers[instanceID] = b
	}
	return b
}

// freshSearchID returns a random search id not already in use —
// regenerating on collision resolves the spec's open question about
// birthday-bound search_id clashes (see DESIGN.md).
func (s *Service) freshSearchID() uint64 {
	for {
		id := freshUint64()
		if _, exists := s.activeSearches[id]; !exists {
			return id
		}
	}
}

func (s *Service) freshGetEmbeddingID() uint64 {
	for {
		id := freshUint64()
		if _, exists := s.activeGetEmbeddings[id]; !exists {
			return id
		}
	}
}

type searchCmd struct {
	embedding     vector.Embedding
	distanceLimit *float32
	reply         chan SearchCompletion
}

type insertCmd struct {
	page adapters.ExtractedPage
}

type getEmbeddingCmd struct {
	instanceID string
	pageID     uint64
	reply      chan GetEmbeddingCompletion
}

type peersCmd struct {
	reply chan []PeerSnapshot
}

func (s *Service) handleCommand(_ context.Context, cmd any) {
	switch c := cmd.(type) {
	case searchCmd:
		s.startSearch(c)
	case insertCmd:
		s.replicate(c)
	case getEmbeddingCmd:
		s.startGetEmbedding(c)
	case peersCmd:
		c.reply <- s.snapshotPeers()
	}
}

func (s *Service) startSearch(c searchCmd) {
	searchID := s.freshSearchID()
	deadline := time.Now()
	if len(s.peers) > 0 {
		deadline = deadline.Add(searchDeadline)
	}
	as := &activeSearch{deadline: deadline, reply: c.reply, responded: make(map[string]struct{})}
	s.activeSearches[searchID] = as

	msg, err := peer.NewSearch(searchID, c.distanceLimit, c.embedding)
	if err != nil {
		slog.Warn("udp_outbound_search_encode_failed", slog.String("error", err.Error()))
		delete(s.activeSearches, searchID)
		c.reply <- SearchCompletion{}
		return
	}

	for _, p := range s.peers {
		as.serversContacted++
		as.pagesSearched += p.pagesIndexed
		s.sendTo(p.addr, msg)
	}
}

func (s *Service) replicate(c insertCmd) {
	candidates := make([]*peerEntry, 0, len(s.peers))
	for _, p := range s.peers {
		if p.acceptInsert {
			candidates = append(candidates, p)
		}
	}
	msg := peer.NewInsert(c.page.URL, c.page.Title, c.page.Text)
	for _, p := range pickRandomPeers(candidates, maxInsertTargets) {
		s.sendTo(p.addr, msg)
	}
}

// pickRandomPeers returns up to n distinct entries from candidates in
// random order, via a partial Fisher-Yates shuffle.
func pickRandomPeers(candidates []*peerEntry, n int) []*peerEntry {
	if n > len(candidates) {
		n = len(candidates)
	}
	pool := make([]*peerEntry, len(candidates))
	copy(pool, candidates)
	for i := 0; i < n; i++ {
		j := i + rand.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

func (s *Service) startGetEmbedding(c getEmbeddingCmd) {
	p, ok := s.peers[c.instanceID]
	if !ok {
		c.reply <- GetEmbeddingCompletion{Err: fmt.Errorf("udpsvc: unknown peer %q", c.instanceID)}
		return
	}
	breaker := s.breakerFor(c.instanceID)
	if !breaker.Allow() {
		c.reply <- GetEmbeddingCompletion{Err: dawnerrors.Embedder(fmt.Sprintf("peer %q circuit open", c.instanceID), dawnerrors.ErrCircuitOpen)}
		return
	}

	searchID := s.freshGetEmbeddingID()
	s.activeGetEmbeddings[searchID] = &activeGetEmbedding{instanceID: c.instanceID, reply: c.reply, breaker: breaker, started: time.Now()}
	s.sendTo(p.addr, peer.GetEmbedding{SearchID: searchID, PageID: c.pageID})
}

func (s *Service) snapshotPeers() []PeerSnapshot {
	out := make([]PeerSnapshot, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, PeerSnapshot{
			InstanceID:   p.instanceID,
			Address:      p.addr.String(),
			AcceptInsert: p.acceptInsert,
			PagesIndexed: p.pagesIndexed,
			LastSeen:     p.lastSeen,
		})
	}
	return out
}

// Search dispatches a query embedding to every known peer and blocks
// until the 200ms fan-out deadline elapses (or, if no peers are known,
// until the next 50ms tick), returning whatever results arrived in time.
func (s *Service) Search(ctx context.Context, q vector.Embedding, distanceLimit *float32) (SearchCompletion, error) {
	reply := make(chan SearchCompletion, 1)
	select {
	case s.cmdCh <- searchCmd{embedding: q, distanceLimit: distanceLimit, reply: reply}:
	case <-ctx.Done():
		return SearchCompletion{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return SearchCompletion{}, ctx.Err()
	}
}

// Insert replicates page to up to 3 random peers with accept_insert=true.
func (s *Service) Insert(ctx context.Context, page adapters.ExtractedPage) error {
	select {
	case s.cmdCh <- insertCmd{page: page}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetEmbedding fetches the embedding for pageID from the named peer.
func (s *Service) GetEmbedding(ctx context.Context, instanceID string, pageID uint64) (vector.Embedding, error) {
	reply := make(chan GetEmbeddingCompletion, 1)
	select {
	case s.cmdCh <- getEmbeddingCmd{instanceID: instanceID, pageID: pageID, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.Embedding, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peers returns a snapshot of the current peer table, taken inside the
// event loop goroutine — used by the HTTP adapter's /debug/peers route.
func (s *Service) Peers(ctx context.Context) ([]PeerSnapshot, error) {
	reply := make(chan []PeerSnapshot, 1)
	select {
	case s.cmdCh <- peersCmd{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ = trackerPort // not referenced elsewhere; this blank use keeps linters from reporting the constant as unused

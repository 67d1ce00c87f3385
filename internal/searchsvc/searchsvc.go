// Package searchsvc implements the search service (C8): the single-writer
// message loop that owns the search provider (C5) and commands the UDP
// service (C7) for remote fan-out. It is the only caller of C5's methods —
// the HTTP adapter, the crawler, and the UDP service all reach C5 only by
// sending a message here and waiting on a reply channel.
//
// Grounded on original_source/src/search_service.rs's message-driven
// actor (a bounded mpsc channel feeding a dedicated worker) and on the
// teacher's internal/async indexer worker loop for the send-on-bounded-
// channel, await-on-one-shot-reply shape. The cyclic dependency between
// this package and internal/udpsvc — each commands the other — is broken
// the same way spec §9 resolves it: udpsvc defines the Backend interface
// it needs answered, and this package implements it, while this package
// only depends on udpsvc's plain data types (SearchCompletion, LocalPage,
// RemotePage) and a small Fanout interface rather than importing udpsvc's
// Service type as a concrete dependency.
package searchsvc

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dawnsearch/dawnsearch/internal/adapters"
	"github.com/dawnsearch/dawnsearch/internal/bestk"
	dawnerrors "github.com/dawnsearch/dawnsearch/internal/errors"
	"github.com/dawnsearch/dawnsearch/internal/metrics"
	"github.com/dawnsearch/dawnsearch/internal/search"
	"github.com/dawnsearch/dawnsearch/internal/udpsvc"
	"github.com/dawnsearch/dawnsearch/internal/vector"
)

// commandQueueDepth matches the spec's search_tx channel: bounded at
// capacity 2, so a slow worker applies backpressure to callers quickly
// instead of letting requests pile up unboundedly.
const commandQueueDepth = 2

// mergeK is the Best-K capacity used to merge local and remote results,
// matching the spec's "Best-K (capacity 20)" merge step.
const mergeK = 20

// peerEmbeddingCacheSize bounds the (peer instance_id, page_id) ->
// embedding cache that short-circuits repeated GetEmbedding round trips
// from MoreLikeSearch — a user paging through "more like this" on the
// same remote hit shouldn't re-dial the peer every time.
const peerEmbeddingCacheSize = 1000

// Fanout is the subset of the UDP service's public surface the search
// service commands for remote work. Implemented by *udpsvc.Service.
type Fanout interface {
	Search(ctx context.Context, q vector.Embedding, distanceLimit *float32) (udpsvc.SearchCompletion, error)
	Insert(ctx context.Context, page adapters.ExtractedPage) error
	GetEmbedding(ctx context.Context, instanceID string, pageID uint64) (vector.Embedding, error)
}

// ResultPage is one ranked hit in a SearchResult, local or remote.
// InstanceID is empty for a locally-served page.
type ResultPage struct {
	InstanceID string
	PageID     uint64
	Distance   float32
	URL        string
	Title      string
	Text       string
}

// SearchResult is the reply payload for TextSearch, EmbeddingSearch, and
// MoreLikeSearch.
type SearchResult struct {
	Pages            []ResultPage
	PagesSearched    uint64
	ServersContacted uint
}

// Stats answers the Stats{sink} message variant.
type Stats struct {
	PagesIndexed uint64
}

// GetEmbeddingResult answers the GetEmbedding{page_id, sink} message
// variant.
type GetEmbeddingResult struct {
	Embedding vector.Embedding
	Err       error
}

type textSearchCmd struct {
	query string
	reply chan SearchResult
}

type embeddingSearchCmd struct {
	embedding    vector.Embedding
	searchRemote bool
	reply        chan SearchResult
}

type moreLikeSearchCmd struct {
	instanceID string
	pageID     uint64
	reply      chan SearchResult
}

type extractedPageCmd struct {
	page        adapters.ExtractedPage
	fromNetwork bool
}

type statsCmd struct {
	reply chan Stats
}

type getEmbeddingCmd struct {
	pageID uint64
	reply  chan GetEmbeddingResult
}

type saveCmd struct {
	reply chan error
}

type shutdownCmd struct {
	done chan struct{}
}

// Service is the search service (C8). Construct with New, then drive it
// with Run until the process shuts down.
type Service struct {
	provider     *search.Provider
	fanout       Fanout
	cmdCh        chan any
	peerEmbCache *lru.Cache[string, vector.Embedding]
}

// New builds a search service over provider, commanding fanout for remote
// search/insert/get-embedding work. fanout may be nil — a node running
// with UDP disabled serves local-only results and never replicates.
func New(provider *search.Provider, fanout Fanout) *Service {
	cache, _ := lru.New[string, vector.Embedding](peerEmbeddingCacheSize)
	return &Service{
		provider:     provider,
		fanout:       fanout,
		cmdCh:        make(chan any, commandQueueDepth),
		peerEmbCache: cache,
	}
}

// SetFanout binds the UDP service after both services are constructed,
// breaking the construction-order cycle: the search service must exist
// before the UDP service can be built (it's the UDP service's Backend),
// but the search service can't learn its Fanout until that UDP service
// exists. Must be called before Run starts reading cmdCh.
func (s *Service) SetFanout(fanout Fanout) {
	s.fanout = fanout
}

func peerEmbeddingCacheKey(instanceID string, pageID uint64) string {
	return instanceID + ":" + strconv.FormatUint(pageID, 10)
}

// Run drives the message loop until a Shutdown command is processed or
// ctx is cancelled. Per spec, the expected shutdown path is the former —
// the latter exists as a defensive fallback so the loop never leaks a
// goroutine if nobody pushed Shutdown.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case cmd := <-s.cmdCh:
			if sd, ok := cmd.(shutdownCmd); ok {
				s.handleShutdown(sd)
				return nil
			}
			s.dispatch(ctx, cmd)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Service) dispatch(ctx context.Context, cmd any) {
	switch c := cmd.(type) {
	case textSearchCmd:
		s.handleTextSearch(ctx, c)
	case embeddingSearchCmd:
		s.handleEmbeddingSearch(ctx, c)
	case moreLikeSearchCmd:
		s.handleMoreLikeSearch(ctx, c)
	case extractedPageCmd:
		s.handleExtractedPage(ctx, c)
	case statsCmd:
		s.handleStats(ctx, c)
	case getEmbeddingCmd:
		s.handleGetEmbedding(ctx, c)
	case saveCmd:
		s.handleSave(c)
	}
}

func (s *Service) handleTextSearch(ctx context.Context, c textSearchCmd) {
	emb, err := s.provider.GetEmbedding(ctx, c.query)
	if err != nil {
		slog.Warn("searchsvc_embed_failed", slog.String("error", err.Error()))
		c.reply <- SearchResult{}
		return
	}
	c.reply <- s.mergeSearch(ctx, emb, true)
}

func (s *Service) handleEmbeddingSearch(ctx context.Context, c embeddingSearchCmd) {
	if !c.searchRemote {
		local, err := s.provider.SearchEmbedding(ctx, c.embedding)
		if err != nil {
			slog.Warn("searchsvc_local_search_failed", slog.String("error", err.Error()))
			c.reply <- SearchResult{}
			return
		}
		c.reply <- SearchResult{Pages: toResultPages(local.Pages), PagesSearched: local.PagesSearched}
		return
	}
	c.reply <- s.mergeSearch(ctx, c.embedding, true)
}

func (s *Service) handleMoreLikeSearch(ctx context.Context, c moreLikeSearchCmd) {
	var (
		emb vector.Embedding
		err error
	)
	switch {
	case c.instanceID == "":
		emb, err = s.provider.EmbeddingFor(ctx, c.pageID)
	case s.fanout != nil:
		key := peerEmbeddingCacheKey(c.instanceID, c.pageID)
		if cached, ok := s.peerEmbCache.Get(key); ok {
			emb = cached
		} else {
			emb, err = s.fanout.GetEmbedding(ctx, c.instanceID, c.pageID)
			if err == nil {
				s.peerEmbCache.Add(key, emb)
			}
		}
	default:
		err = fmt.Errorf("searchsvc: more-like-search for remote peer %q with no fanout configured", c.instanceID)
	}
	if err != nil {
		slog.Warn("searchsvc_more_like_embedding_failed", slog.String("error", err.Error()))
		c.reply <- SearchResult{}
		return
	}
	c.reply <- s.mergeSearch(ctx, emb, true)
}

// mergeSearch runs a local search, then — if searchRemote and a fanout is
// configured — dispatches a remote fan-out bounded by the local worst-of-
// top-K distance, and merges both into a single Best-K(mergeK) ranking.
// Local results are inserted into the buffer first (per spec §4.8) so
// that, on a tie, a local page is preferred over an equally-distant
// remote one.
func (s *Service) mergeSearch(ctx context.Context, emb vector.Embedding, searchRemote bool) SearchResult {
	metrics.ActiveSearches.Inc()
	defer metrics.ActiveSearches.Dec()

	local, err := s.provider.SearchEmbedding(ctx, emb)
	if err != nil {
		slog.Warn("searchsvc_local_search_failed", slog.String("error", err.Error()))
		local = search.SearchResult{}
	}

	buffer := make([]ResultPage, 0, len(local.Pages)+mergeK)
	acc := bestk.New(mergeK)
	for _, p := range local.Pages {
		idx := len(buffer)
		buffer = append(buffer, ResultPage{PageID: p.ID, Distance: p.Distance, URL: p.URL, Title: p.Title, Text: p.Text})
		acc.Insert(idx, p.Distance)
	}

	var serversContacted uint
	var remotePagesSearched uint64
	if searchRemote && s.fanout != nil {
		limit := acc.WorstDistance()
		completion, err := s.fanout.Search(ctx, emb, &limit)
		if err != nil {
			slog.Warn("searchsvc_remote_fanout_failed", slog.String("error", err.Error()))
		} else {
			serversContacted = completion.ServersContacted
			remotePagesSearched = completion.PagesSearched
			for _, rp := range completion.Results {
				idx := len(buffer)
				buffer = append(buffer, ResultPage{
					InstanceID: rp.InstanceID,
					PageID:     rp.PageID,
					Distance:   rp.Distance,
					URL:        rp.URL,
					Title:      rp.Title,
					Text:       rp.Text,
				})
				acc.Insert(idx, rp.Distance)
			}
		}
	}

	entries := acc.Results()
	pages := make([]ResultPage, 0, len(entries))
	for _, e := range entries {
		pages = append(pages, buffer[e.ID])
	}

	return SearchResult{
		Pages:            pages,
		PagesSearched:    local.PagesSearched + remotePagesSearched,
		ServersContacted: serversContacted,
	}
}

func toResultPages(pages []search.FoundPage) []ResultPage {
	out := make([]ResultPage, 0, len(pages))
	for _, p := range pages {
		out = append(out, ResultPage{PageID: p.ID, Distance: p.Distance, URL: p.URL, Title: p.Title, Text: p.Text})
	}
	return out
}

// handleExtractedPage inserts page locally if the store has room, and —
// unless the page arrived from network replication — commands a
// replication fan-out regardless of whether the local insert succeeded,
// per the spec's CapacityExceeded note that "replication attempts still
// proceed" even when local space is exhausted.
func (s *Service) handleExtractedPage(ctx context.Context, c extractedPageCmd) {
	available, err := s.provider.LocalSpaceAvailable(ctx)
	switch {
	case err != nil:
		slog.Warn("searchsvc_capacity_check_failed", slog.String("error", err.Error()))
	case available:
		if _, err := s.provider.Insert(ctx, c.page); err != nil {
			slog.Warn("searchsvc_insert_failed", slog.String("url", c.page.URL), slog.String("error", err.Error()))
		} else {
			origin := "local"
			if c.fromNetwork {
				origin = "network"
			}
			metrics.InsertsTotal.WithLabelValues(origin).Inc()
			if count, err := s.provider.Count(ctx); err == nil {
				metrics.PagesIndexed.Set(float64(count))
			}
		}
	default:
		slog.Warn("searchsvc_local_capacity_exceeded", slog.String("url", c.page.URL))
		metrics.CapacityExceededTotal.Inc()
	}

	if !c.fromNetwork && s.fanout != nil {
		if err := s.fanout.Insert(ctx, c.page); err != nil {
			slog.Warn("searchsvc_replication_failed", slog.String("url", c.page.URL), slog.String("error", err.Error()))
		}
	}
}

func (s *Service) handleStats(ctx context.Context, c statsCmd) {
	count, err := s.provider.Count(ctx)
	if err != nil {
		slog.Warn("searchsvc_stats_count_failed", slog.String("error", err.Error()))
	}
	c.reply <- Stats{PagesIndexed: count}
}

func (s *Service) handleGetEmbedding(ctx context.Context, c getEmbeddingCmd) {
	emb, err := s.provider.EmbeddingFor(ctx, c.pageID)
	c.reply <- GetEmbeddingResult{Embedding: emb, Err: err}
}

func (s *Service) handleSave(c saveCmd) {
	err := s.provider.Save()
	if err != nil {
		slog.Warn("searchsvc_save_failed", slog.String("error", err.Error()))
	}
	if c.reply != nil {
		c.reply <- err
	}
}

func (s *Service) handleShutdown(c shutdownCmd) {
	if err := s.provider.Shutdown(); err != nil {
		slog.Warn("searchsvc_shutdown_failed", slog.String("error", err.Error()))
	}
	close(c.done)
}

// send pushes cmd onto the command channel, honoring ctx cancellation
// while the queue is full.
func (s *Service) send(ctx context.Context, cmd any) error {
	select {
	case s.cmdCh <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, reply chan T) (T, error) {
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TextSearch embeds query locally, searches locally, fans out remotely
// bounded by the local worst-of-top-20 distance, and returns the merged
// ranking.
func (s *Service) TextSearch(ctx context.Context, query string) (SearchResult, error) {
	reply := make(chan SearchResult, 1)
	if err := s.send(ctx, textSearchCmd{query: query, reply: reply}); err != nil {
		return SearchResult{}, err
	}
	return await(ctx, reply)
}

// EmbeddingSearch searches against a precomputed embedding, optionally
// fanning out remotely.
func (s *Service) EmbeddingSearch(ctx context.Context, emb vector.Embedding, searchRemote bool) (SearchResult, error) {
	reply := make(chan SearchResult, 1)
	if err := s.send(ctx, embeddingSearchCmd{embedding: emb, searchRemote: searchRemote, reply: reply}); err != nil {
		return SearchResult{}, err
	}
	return await(ctx, reply)
}

// MoreLikeSearch resolves instanceID/pageID to an embedding (locally if
// instanceID is empty, else via the fanout's GetEmbedding) and searches
// against it, always fanning out remotely.
func (s *Service) MoreLikeSearch(ctx context.Context, instanceID string, pageID uint64) (SearchResult, error) {
	reply := make(chan SearchResult, 1)
	if err := s.send(ctx, moreLikeSearchCmd{instanceID: instanceID, pageID: pageID, reply: reply}); err != nil {
		return SearchResult{}, err
	}
	return await(ctx, reply)
}

// Insert queues page for local insertion and, if fromNetwork is false,
// replication to peers. It returns as soon as the command is queued —
// per spec, ExtractedPage has no reply sink; failures are logged inside
// the loop rather than surfaced to the caller.
func (s *Service) Insert(ctx context.Context, page adapters.ExtractedPage, fromNetwork bool) error {
	return s.send(ctx, extractedPageCmd{page: page, fromNetwork: fromNetwork})
}

// Stats reports the current local page count.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := s.send(ctx, statsCmd{reply: reply}); err != nil {
		return Stats{}, err
	}
	return await(ctx, reply)
}

// Save persists the ANN index.
func (s *Service) Save(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, saveCmd{reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// Shutdown pushes Shutdown and blocks until the loop has torn down the
// search provider and exited Run.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.send(ctx, shutdownCmd{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// The following methods satisfy udpsvc.Backend, letting the UDP service
// answer inbound peer requests by routing back through this single-writer
// loop instead of touching the search provider directly.

// SearchEmbeddingLocal answers an inbound Search datagram: local-only, no
// further fan-out (the sender already did its own).
func (s *Service) SearchEmbeddingLocal(ctx context.Context, q vector.Embedding) ([]udpsvc.LocalPage, error) {
	res, err := s.EmbeddingSearch(ctx, q, false)
	if err != nil {
		return nil, err
	}
	out := make([]udpsvc.LocalPage, 0, len(res.Pages))
	for _, p := range res.Pages {
		out = append(out, udpsvc.LocalPage{PageID: p.PageID, Distance: p.Distance, URL: p.URL, Title: p.Title, Text: p.Text})
	}
	return out, nil
}

// InsertFromNetwork answers an inbound Insert datagram.
func (s *Service) InsertFromNetwork(ctx context.Context, page adapters.ExtractedPage) error {
	return s.Insert(ctx, page, true)
}

// EmbeddingFor answers an inbound GetEmbedding datagram.
func (s *Service) EmbeddingFor(ctx context.Context, pageID uint64) (vector.Embedding, error) {
	reply := make(chan GetEmbeddingResult, 1)
	if err := s.send(ctx, getEmbeddingCmd{pageID: pageID, reply: reply}); err != nil {
		return nil, err
	}
	res, err := await(ctx, reply)
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return nil, dawnerrors.Wrap(dawnerrors.KindStore, res.Err)
	}
	return res.Embedding, nil
}

// PagesIndexed answers the Announce message's page count.
func (s *Service) PagesIndexed(ctx context.Context) (uint64, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.PagesIndexed, nil
}

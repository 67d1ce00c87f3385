// Package search implements the search provider (C5): the single writer of
// the page store and ANN index, composing them behind the operations the
// search service drives — insert, embedding search, more-like, verify,
// save, and the startup index rebuild.
//
// Adapted from the project's code-indexing search provider: the
// embed-then-store-then-index pipeline and the "rebuild the ANN index from
// the store if the persisted file is missing or stale" policy are kept,
// generalized from source-file chunks to web pages and from the teacher's
// BM25+vector hybrid to the spec's pure embedding search.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dawnsearch/dawnsearch/internal/adapters"
	dawnerrors "github.com/dawnsearch/dawnsearch/internal/errors"
	"github.com/dawnsearch/dawnsearch/internal/annindex"
	"github.com/dawnsearch/dawnsearch/internal/store"
	"github.com/dawnsearch/dawnsearch/internal/vector"
)

// Capacity is the default maximum number of pages a local store accepts
// before local_space_available reports false.
const Capacity = 1_000_000

// resultK is the fixed fan-out width of a single embedding search,
// matching the spec's "C4.search(q, 20)".
const resultK = 20

// indexFileName is the ANN index's persisted file name under data_dir.
const indexFileName = "index.usearch"

// FoundPage is one hit from an embedding search: a page joined against its
// distance from the query.
type FoundPage struct {
	ID       uint64
	Distance float32
	URL      string
	Title    string
	Text     string
}

// SearchResult is the outcome of a local search: the ranked pages plus the
// bookkeeping the search service folds into its fan-out merge.
type SearchResult struct {
	Pages         []FoundPage
	PagesSearched uint64
}

// Provider is the search provider (C5): the only component that touches
// the page store and ANN index directly. Callers reach it exclusively
// through the search service's single-writer message loop.
type Provider struct {
	store    *store.Store
	index    *annindex.Index
	embedder adapters.Embedder
	dataDir  string
}

// Open opens the page store and ANN index under dataDir, rebuilding the
// index from the store if the persisted file is absent or fails to load.
func Open(ctx context.Context, dataDir string, embedder adapters.Embedder) (*Provider, error) {
	dbPath := filepath.Join(dataDir, "dawnsearch.sqlite")
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	count, err := st.Count(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}

	idx := annindex.New(int(count) + 1024)
	indexPath := filepath.Join(dataDir, indexFileName)
	if !idx.Load(indexPath) {
		slog.Info("ann_index_rebuild_start", slog.String("reason", "missing_or_stale_index_file"))
		if err := fillIndexFromStore(ctx, idx, st); err != nil {
			st.Close()
			return nil, err
		}
		if err := idx.Save(indexPath); err != nil {
			slog.Warn("ann_index_save_failed", slog.String("error", err.Error()))
		}
	}

	p := &Provider{store: st, index: idx, embedder: embedder, dataDir: dataDir}
	if idx.Size() != int(count) {
		slog.Warn("ann_index_store_count_mismatch",
			slog.Int("index_size", idx.Size()), slog.Uint64("store_count", count))
	}
	return p, nil
}

// fillIndexFromStore streams every page's embedding out of the store and
// adds it to idx, polling ctx so a shutdown mid-rebuild exits promptly
// instead of forcing the caller to wait out the whole table.
func fillIndexFromStore(ctx context.Context, idx *annindex.Index, st *store.Store) error {
	return st.ScanEmbeddings(ctx, func(row store.EmbeddingRow) error {
		if err := idx.Add(row.ID, row.Embedding); err != nil {
			slog.Warn("ann_index_rebuild_skip_row", slog.Uint64("id", row.ID), slog.String("error", err.Error()))
		}
		return nil
	})
}

// GetEmbedding delegates to the external embedder, per the C9 collaborator
// contract — the returned vector is required to already be unit-length.
func (p *Provider) GetEmbedding(ctx context.Context, text string) (vector.Embedding, error) {
	emb, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, dawnerrors.Embedder("embed failed", err)
	}
	if !vector.IsNormalized(emb) {
		return nil, dawnerrors.InvalidVector("embedder returned a non-unit vector")
	}
	return emb, nil
}

// SearchEmbedding performs a local ANN search and joins the results
// against the page store. Pages present in the index but missing from the
// store (a rebuild race, or a row deleted out of band) are logged and
// skipped rather than failing the whole search.
func (p *Provider) SearchEmbedding(ctx context.Context, q vector.Embedding) (SearchResult, error) {
	if !vector.IsNormalized(q) {
		return SearchResult{}, dawnerrors.InvalidVector("search query embedding is not unit-length")
	}

	hits, err := p.index.Search(q, resultK)
	if err != nil {
		return SearchResult{}, dawnerrors.Wrap(dawnerrors.KindStore, err)
	}

	pages := make([]FoundPage, 0, len(hits))
	for _, hit := range hits {
		page, err := p.store.Get(ctx, hit.ID)
		if err != nil {
			slog.Warn("search_result_page_missing", slog.Uint64("id", hit.ID), slog.String("error", err.Error()))
			continue
		}
		pages = append(pages, FoundPage{
			ID:       page.ID,
			Distance: hit.Distance,
			URL:      page.URL,
			Title:    page.Title,
			Text:     page.Text,
		})
	}

	return SearchResult{Pages: pages, PagesSearched: uint64(p.index.Size())}, nil
}

// SearchLike resolves a local page id's embedding and performs
// SearchEmbedding against it — the local half of "more like this". The
// remote-peer half (instance_id != "") is the search service's concern: it
// fetches the embedding via the UDP service and calls this with the
// result, since this package has no knowledge of peers.
func (p *Provider) SearchLike(ctx context.Context, pageID uint64) (SearchResult, error) {
	emb, err := p.store.EmbeddingFor(ctx, pageID)
	if err != nil {
		return SearchResult{}, err
	}
	return p.SearchEmbedding(ctx, emb)
}

// EmbeddingFor exposes a stored page's embedding, used to answer a peer's
// GetEmbedding request and the local half of more-like-search.
func (p *Provider) EmbeddingFor(ctx context.Context, pageID uint64) (vector.Embedding, error) {
	return p.store.EmbeddingFor(ctx, pageID)
}

// LocalSpaceAvailable reports whether the store has room for another page.
func (p *Provider) LocalSpaceAvailable(ctx context.Context) (bool, error) {
	count, err := p.store.Count(ctx)
	if err != nil {
		return false, err
	}
	return count < Capacity, nil
}

// Insert embeds title+" "+text and adds the result to the store and index.
// A page whose URL already exists is a silent no-op success, matching the
// spec's dedup-by-url insert contract — repeated crawls of the same URL
// must not grow the store.
func (p *Provider) Insert(ctx context.Context, page adapters.ExtractedPage) (uint64, error) {
	emb, err := p.GetEmbedding(ctx, page.Combined())
	if err != nil {
		return 0, err
	}

	id, err := p.store.Insert(ctx, store.Page{
		URL:       page.URL,
		Title:     page.Title,
		Text:      page.Text,
		Embedding: emb,
	})
	if err != nil {
		if err == store.ErrDuplicateURL {
			return 0, nil
		}
		return 0, err
	}

	if err := p.index.Add(id, emb); err != nil {
		return 0, dawnerrors.Wrap(dawnerrors.KindInvalidVector, err)
	}
	if p.index.Size() >= p.index.Capacity() {
		p.index.Reserve(p.index.Capacity() + 1024)
	}

	return id, nil
}

// Count returns the number of pages in the local store.
func (p *Provider) Count(ctx context.Context) (uint64, error) {
	return p.store.Count(ctx)
}

// Save persists the ANN index to data_dir/index.usearch.
func (p *Provider) Save() error {
	return p.index.Save(filepath.Join(p.dataDir, indexFileName))
}

// VerifyReport is the outcome of Verify: counts of rows violating the
// page-store invariants (I1, I2), never aborting the scan early so every
// violation is tallied.
type VerifyReport struct {
	Scanned       int
	WrongLength   int
	NotNormalized int
}

// Verify scans every row in the store and tallies integrity violations.
// Returns a FatalStartup error if any violation is found — per the spec,
// unrecoverable index corruption detected by verify is the one condition
// that should abort the process.
func (p *Provider) Verify(ctx context.Context) (VerifyReport, error) {
	counts, err := p.store.Verify(ctx)
	if err != nil {
		return VerifyReport{}, err
	}
	report := VerifyReport(counts)
	if report.WrongLength > 0 || report.NotNormalized > 0 {
		return report, dawnerrors.FatalStartup(
			fmt.Sprintf("page store verification failed: %d wrong-length, %d not normalized (of %d scanned)",
				report.WrongLength, report.NotNormalized, report.Scanned), nil)
	}
	return report, nil
}

// Shutdown persists the index and releases the store's handle and
// advisory lock.
func (p *Provider) Shutdown() error {
	if err := p.Save(); err != nil {
		slog.Warn("search_provider_save_failed_on_shutdown", slog.String("error", err.Error()))
	}
	if err := p.index.Close(); err != nil {
		slog.Warn("ann_index_close_failed", slog.String("error", err.Error()))
	}
	return p.store.Close()
}

// Package annindex is the in-memory approximate nearest-neighbor index over
// page embeddings (C4): an HNSW graph keyed by page id, persisted to disk
// and rebuilt from the page store when the persisted file is absent or
// fails to load.
//
// Adapted from the project's coder/hnsw-backed vector store: the id space
// is narrowed from arbitrary strings to the page store's uint64 ids, the
// metric is fixed to the inner-product distance the spec requires, and the
// growth and rebuild policy described in the search provider replaces the
// generic chunk/file vector-store semantics this was lifted from.
package annindex

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/dawnsearch/dawnsearch/internal/vector"
)

// growthStep is how much extra capacity is reserved when an Add would
// overflow the current capacity, matching the search provider's "grow by
// 1024" policy.
const growthStep = 1024

// Index is a persisted approximate nearest-neighbor index over page
// embeddings. Safe for concurrent use, though in practice only the search
// service's single writer goroutine ever calls Add/Search.
type Index struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[uint64]
	capacity int
	ids      map[uint64]struct{}
	closed   bool
}

// metadata is the sidecar persisted alongside the exported graph: it
// records which ids are live (the graph itself has no notion of deletion
// short of leaving orphaned nodes) and the capacity at save time.
type metadata struct {
	IDs      []uint64
	Capacity int
}

// New creates an empty index with the given initial reserved capacity.
func New(capacity int) *Index {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = ipDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	if capacity < growthStep {
		capacity = growthStep
	}

	return &Index{
		graph:    graph,
		capacity: capacity,
		ids:      make(map[uint64]struct{}, capacity),
	}
}

// ipDistance is the graph's distance function: 1 minus the inner product,
// so identical unit vectors are distance 0 and opposite vectors distance 2
// — ascending order matches "lower is better", consistent with
// vector.DistanceIP's raw inner-product convention inverted for ranking.
func ipDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}

// Reserve grows the index's target capacity. The underlying graph has no
// fixed-size allocation to grow, so this only updates the bookkeeping used
// by Capacity and the overflow-triggered auto-grow in Add.
func (idx *Index) Reserve(capacity int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if capacity > idx.capacity {
		idx.capacity = capacity
	}
}

// Add inserts or replaces the embedding for id. Re-adding an existing id
// uses lazy deletion (the stale node is orphaned rather than removed from
// the graph) since the underlying HNSW implementation corrupts its layer
// structure when the last-inserted node is deleted.
func (idx *Index) Add(id uint64, emb vector.Embedding) error {
	if !vector.IsNormalized(emb) {
		return fmt.Errorf("annindex: embedding for id %d is not normalized", id)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("annindex: index is closed")
	}

	if len(idx.ids) >= idx.capacity {
		idx.capacity += growthStep
	}

	vec := make([]float32, len(emb))
	copy(vec, emb)
	idx.graph.Add(hnsw.MakeNode(id, vec))
	idx.ids[id] = struct{}{}

	return nil
}

// Result is one search hit: a page id and its distance from the query,
// ascending (lower is better).
type Result struct {
	ID       uint64
	Distance float32
}

// Search returns up to k results approximately minimizing distance_ip(q, ·),
// ascending by distance. Not required to be exact — this is the contract
// the ANN index makes to every caller.
func (idx *Index) Search(q vector.Embedding, k int) ([]Result, error) {
	if !vector.IsNormalized(q) {
		return nil, fmt.Errorf("annindex: query is not normalized")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("annindex: index is closed")
	}
	if idx.graph.Len() == 0 {
		return nil, nil
	}

	nodes := idx.graph.Search([]float32(q), k)
	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		if _, live := idx.ids[node.Key]; !live {
			continue // orphaned by a lazy delete/re-add
		}
		results = append(results, Result{
			ID:       node.Key,
			Distance: ipDistance([]float32(q), node.Value),
		})
	}
	return results, nil
}

// Size returns the number of live ids in the index.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// Capacity returns the index's current reserved capacity.
func (idx *Index) Capacity() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.capacity
}

// Save persists the graph and its id/capacity metadata to path and
// path+".meta", writing both via a temp-file-then-rename so a crash mid-save
// cannot leave a half-written index that Load would misparse.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("annindex: create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("annindex: create index file: %w", err)
	}
	if err := idx.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("annindex: export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("annindex: close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("annindex: rename index file: %w", err)
	}

	return idx.saveMetadata(path + ".meta")
}

func (idx *Index) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("annindex: create metadata file: %w", err)
	}

	meta := metadata{IDs: make([]uint64, 0, len(idx.ids)), Capacity: idx.capacity}
	for id := range idx.ids {
		meta.IDs = append(meta.IDs, id)
	}

	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("annindex: encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("annindex: close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load replaces the index's contents with the graph persisted at path.
// Returns false (never an error a caller should abort on) if the file is
// absent or fails to parse — the index parameters are part of the on-disk
// format, so any mismatch here means "rebuild from the page store", not
// "fail to start".
func (idx *Index) Load(path string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	meta, err := loadMetadata(path + ".meta")
	if err != nil {
		return false
	}

	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = ipDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return false
	}

	idx.graph = graph
	idx.capacity = meta.Capacity
	idx.ids = make(map[uint64]struct{}, len(meta.IDs))
	for _, id := range meta.IDs {
		idx.ids[id] = struct{}{}
	}
	return true
}

func loadMetadata(path string) (metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return metadata{}, err
	}
	defer file.Close()

	var meta metadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return metadata{}, err
	}
	return meta, nil
}

// Close releases the index's in-memory graph.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	idx.graph = nil
	return nil
}

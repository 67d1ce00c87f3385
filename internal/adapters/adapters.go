// Package adapters defines the thin interfaces DawnSearch's core exchanges
// with its external collaborators: the embedding model, the crawler, the
// HTTP front-end, and the tracker. None of these are implemented in full
// here — the spec treats them as out-of-scope collaborators — except the
// embedder, which ships a static fallback so the rest of the system is
// runnable without a model server.
package adapters

import (
	"context"

	"github.com/dawnsearch/dawnsearch/internal/vector"
)

// Embedder produces a unit-length embedding for a piece of text. The model
// itself is out of scope; this is the only contract the search provider
// requires of it.
type Embedder interface {
	Embed(ctx context.Context, text string) (vector.Embedding, error)
}

// ExtractedPage is what the crawler/ingester hands to the search service:
// a page ready to be embedded and inserted.
type ExtractedPage struct {
	URL   string
	Title string
	Text  string
}

// Combined returns the text the search provider embeds for this page:
// title and body concatenated, matching the original ingestion pipeline's
// "title + ' ' + text" convention.
func (p ExtractedPage) Combined() string {
	if p.Title == "" {
		return p.Text
	}
	return p.Title + " " + p.Text
}

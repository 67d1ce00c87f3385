// Package embed provides the concrete adapters.Embedder implementations:
// a hash-based StaticEmbedder that needs no external process, and an
// OllamaEmbedder that calls out to a running Ollama server. Adapted from
// the project's code-search embedder package: the hashing/tokenization
// machinery and the HTTP client plumbing are kept, the batch-indexing,
// thermal-timeout-progression and MLX/GGUF provider paths are dropped —
// DawnSearch embeds one page at a time and has no local model runtime.
package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"

	"github.com/dawnsearch/dawnsearch/internal/vector"
)

// StaticEmbedder generates embeddings from a deterministic hash of the
// input text. It needs no model server and never fails, at lower semantic
// quality. It is selected with DAWNSEARCH_EMBEDDER=static and used by the
// verify command; nothing switches to it when Ollama is unreachable.
type StaticEmbedder struct{}

// NewStaticEmbedder creates a static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// stopWords are filtered before hashing so common filler words don't
// dominate the low-dimensional hash buckets.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"is": true, "are": true, "was": true, "were": true, "to": true,
	"of": true, "in": true, "on": true, "for": true, "with": true,
}

// Embed returns a unit-length, vector.Len-dimension embedding derived
// from hashed tokens and character trigrams of text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) (vector.Embedding, error) {
	v := make(vector.Embedding, vector.Len)

	tokens := filterStopWords(tokenize(text))
	for _, token := range tokens {
		v[hashToIndex(token, vector.Len)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		v[hashToIndex(ngram, vector.Len)] += ngramWeight
	}

	if vector.Length(v) == 0 {
		// Empty or all-stopword input: fall back to hashing the raw text
		// so we never hand the rest of the system a zero vector.
		v[hashToIndex(text, vector.Len)] = 1
	}
	return normalizeEmbedding(v), nil
}

func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCodeToken(word) {
			if lower := strings.ToLower(t); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

func splitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func filterStopWords(tokens []string) []string {
	var filtered []string
	for _, t := range tokens {
		if !stopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func normalizeForNgrams(text string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// normalizeEmbedding scales v to unit length in place.
func normalizeEmbedding(v vector.Embedding) vector.Embedding {
	length := vector.Length(v)
	if length == 0 {
		return v
	}
	for i := range v {
		v[i] /= length
	}
	return v
}

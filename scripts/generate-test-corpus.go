//go:build ignore

// Package main generates a synthetic corpus of web pages for benchmarking
// a DawnSearch node's insert and search paths without a live crawler.
// Usage: go run scripts/generate-test-corpus.go -pages 10000 -output testdata/bench/pages.jsonl
//
// Adapted from the teacher's synthetic-source-file generator: the
// word-pool-driven template fill survives, retargeted from Go/TS/Python/
// Markdown source templates to the url/title/text shape
// internal/adapters.ExtractedPage expects.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

var (
	numPages = flag.Int("pages", 10000, "Number of synthetic pages to generate")
	outPath  = flag.String("output", "testdata/bench/pages.jsonl", "Output JSONL file")
	seed     = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// syntheticPage mirrors the JSON shape a crawler would hand the search
// service: one line per page, fields matching adapters.ExtractedPage.
type syntheticPage struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

var (
	topics = []string{
		"machine learning", "distributed systems", "gardening", "home brewing",
		"vintage synthesizers", "mountain biking", "fermentation", "astronomy",
		"typography", "urban planning", "beekeeping", "woodworking",
		"cryptography", "birdwatching", "sourdough baking", "climate modeling",
		"analog photography", "board games", "sailing", "speedrunning",
	}
	adjectives = []string{
		"comprehensive", "practical", "beginner's", "advanced", "definitive",
		"quick", "in-depth", "concise", "illustrated", "annotated",
	}
	nouns = []string{
		"guide", "overview", "tutorial", "reference", "handbook",
		"primer", "walkthrough", "field notes", "FAQ", "cheat sheet",
	}
	sentenceTemplates = []string{
		"This page covers the fundamentals of %s, including common pitfalls and best practices.",
		"%s has seen renewed interest as more hobbyists document their projects online.",
		"A short history of %s, from early experiments to modern techniques.",
		"Frequently asked questions about getting started with %s.",
		"Tools and equipment recommended for %s, with notes on budget alternatives.",
		"Community forums and mailing lists dedicated to %s discussion.",
		"Step-by-step instructions for a weekend project involving %s.",
		"Why %s matters and how it connects to adjacent disciplines.",
	}
)

func randomWord(pool []string, r *rand.Rand) string {
	return pool[r.Intn(len(pool))]
}

func main() {
	flag.Parse()
	r := rand.New(rand.NewSource(*seed))

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i := 0; i < *numPages; i++ {
		topic := randomWord(topics, r)
		page := syntheticPage{
			URL:   fmt.Sprintf("https://example.test/articles/%d-%s", i, slugify(topic)),
			Title: fmt.Sprintf("%s %s to %s", strings.Title(randomWord(adjectives, r)), randomWord(nouns, r), topic),
			Text:  generateBody(topic, r),
		}
		if err := enc.Encode(page); err != nil {
			fmt.Fprintf(os.Stderr, "encode page %d: %v\n", i, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generated %d synthetic pages to %s\n", *numPages, *outPath)
}

func generateBody(topic string, r *rand.Rand) string {
	sentenceCount := 4 + r.Intn(6)
	var b strings.Builder
	for i := 0; i < sentenceCount; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		tmpl := randomWord(sentenceTemplates, r)
		fmt.Fprintf(&b, tmpl, topic)
	}
	return b.String()
}

func slugify(s string) string {
	return strings.ReplaceAll(s, " ", "-")
}

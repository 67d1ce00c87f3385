// Package httpapi is the external collaborator spec section 6 calls the
// "HTTP adapter": it maps GET /?q=<text> to TextSearch and
// GET /?s=<instance_id>:<page_id> to MoreLikeSearch, renders the result
// page, and serves /robots.txt. It also carries the ambient endpoints a
// long-running service needs in production — /healthz and /metrics — plus
// /debug/peers for inspecting the UDP peer table, none of which the spec
// forbids (section 6 only names the minimum query surface).
//
// Grounded on original_source/src/net/http.rs's hand-rolled GET handler
// (query key dispatch, plain HTML result page) translated into an
// idiomatic net/http.ServeMux server — the teacher repo has no HTTP web
// server of its own (internal/daemon/server.go speaks a private JSON
// protocol over a Unix socket, not HTTP), so this package follows the
// original implementation's shape directly rather than the teacher's.
package httpapi

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	dawnerrors "github.com/dawnsearch/dawnsearch/internal/errors"
	"github.com/dawnsearch/dawnsearch/internal/metrics"
	"github.com/dawnsearch/dawnsearch/internal/searchsvc"
)

// Searcher is the subset of the search service the HTTP adapter drives.
type Searcher interface {
	TextSearch(ctx context.Context, query string) (searchsvc.SearchResult, error)
	MoreLikeSearch(ctx context.Context, instanceID string, pageID uint64) (searchsvc.SearchResult, error)
	Stats(ctx context.Context) (searchsvc.Stats, error)
}

// PeerLister is the subset of the UDP service /debug/peers reports on.
// Nil when the node runs with UDP disabled.
type PeerLister interface {
	Peers(ctx context.Context) ([]PeerSnapshot, error)
}

// PeerSnapshot mirrors udpsvc.PeerSnapshot without importing internal/udpsvc
// directly, keeping this package usable with any PeerLister implementation.
type PeerSnapshot struct {
	InstanceID   string
	Address      string
	AcceptInsert bool
	PagesIndexed uint64
}

// Adapter serves the HTTP surface over a Searcher and, optionally, a
// PeerLister.
type Adapter struct {
	searcher Searcher
	peers    PeerLister
}

// New builds an Adapter. peers may be nil if UDP is disabled.
func New(searcher Searcher, peers PeerLister) *Adapter {
	return &Adapter{searcher: searcher, peers: peers}
}

// Handler builds the http.Handler serving all of the adapter's routes.
func (a *Adapter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleSearch)
	mux.HandleFunc("/robots.txt", handleRobots)
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/peers", a.handleDebugPeers)
	return mux
}

func handleRobots(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "User-agent: *")
	fmt.Fprintln(w, "Disallow:")
}

func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := a.searcher.Stats(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "unhealthy")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (a *Adapter) handleDebugPeers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if a.peers == nil {
		fmt.Fprintln(w, "udp service disabled")
		return
	}
	snaps, err := a.peers.Peers(r.Context())
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		if body, jerr := dawnerrors.FormatJSON(err); jerr == nil {
			w.Write(body)
		} else {
			fmt.Fprintf(w, `{"error":%q}`, err.Error())
		}
		return
	}
	if len(snaps) == 0 {
		fmt.Fprintln(w, "no known peers")
		return
	}
	for _, p := range snaps {
		fmt.Fprintf(w, "%s\t%s\taccept_insert=%t\tpages_indexed=%d\n",
			p.InstanceID, p.Address, p.AcceptInsert, p.PagesIndexed)
	}
}

func (a *Adapter) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	q := r.URL.Query()
	var result searchsvc.SearchResult
	var err error
	remote := "false"

	switch {
	case q.Has("q"):
		remote = "true"
		result, err = a.searcher.TextSearch(r.Context(), strings.ReplaceAll(q.Get("q"), "+", " "))
	case q.Has("s"):
		remote = "true"
		instanceID, pageID, perr := parseMoreLikeKey(q.Get("s"))
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		result, err = a.searcher.MoreLikeSearch(r.Context(), instanceID, pageID)
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, renderPage(""))
		return
	}

	metrics.SearchLatency.WithLabelValues(remote).Observe(time.Since(start).Seconds())

	if err != nil {
		slog.Warn("http_search_failed", slog.String("error", err.Error()))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		// debug=false: a public query surface shouldn't leak the error Kind.
		message := html.EscapeString(dawnerrors.FormatForUser(err, false))
		fmt.Fprint(w, renderPage("<p>"+message+"</p>"))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, renderPage(formatResults(result)))
}

// parseMoreLikeKey splits "instance_id:page_id" per spec section 6's
// MoreLikeSearch query key. instance_id is always the 16-character
// alphanumeric id from udpsvc.newInstanceID, so splitting on the first
// colon is unambiguous.
func parseMoreLikeKey(s string) (instanceID string, pageID uint64, err error) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("malformed more-like-search key %q: expected instance_id:page_id", s)
	}
	instanceID = s[:idx]
	pageID, err = strconv.ParseUint(s[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed page id in key %q: %w", s, err)
	}
	return instanceID, pageID, nil
}

func renderPage(body string) string {
	return fmt.Sprintf(`<html>
<head><title>DawnSearch</title></head>
<body style="margin: 2em">
<form method="get">
<input name="q" id="searchbox">
<input type="submit" value="Search">
</form>
%s
<script>
document.getElementById("searchbox").focus();
</script>
</body>
</html>
`, body)
}

func formatResults(result searchsvc.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Searched %d pages</p>", result.PagesSearched)
	for _, p := range result.Pages {
		url := html.EscapeString(p.URL)
		title := html.EscapeString(p.Title)
		text := html.EscapeString(truncate(p.Text, 400))
		key := p.InstanceID + ":" + strconv.FormatUint(p.PageID, 10)
		fmt.Fprintf(&b, `<p><a href="%s">%s</a><br>%.2f <a href="?s=%s">more like this</a></p><p>%s...</p>`,
			url, title, p.Distance, key, text)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isUTF8Start(s[n]) {
		n--
	}
	return s[:n]
}

func isUTF8Start(b byte) bool {
	return b&0xC0 != 0x80
}

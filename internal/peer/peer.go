// Package peer implements the peer protocol codec (C6): the tagged wire
// messages UDP peers exchange, MessagePack-encoded with compact field
// names and capped to a single UDP datagram.
//
// Grounded on original_source/src/net/udp_messages.rs and udp_service.rs,
// which serialize the same tagged enum with rmp_serde (Rust's MessagePack
// binding) over rand/tokio UDP sockets; this package uses
// github.com/vmihailenco/msgpack/v5, the Go ecosystem's equivalent,
// pulled into the dependency surface from the retrieved example pack.
// Embeddings travel i24-quantized (internal/vector.ToI24/FromI24) and
// Insert's free-text fields are snappy-compressed, standing in for the
// original's smaz compressor — no Go port of smaz exists in the
// retrieved pack, and snappy serves the identical role of shrinking short
// UTF-8 strings to fit a datagram.
package peer

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dawnsearch/dawnsearch/internal/vector"
)

// MaxDatagramSize is the UDP MTU payload budget every encoded message
// must fit within (spec §4.6/§6).
const MaxDatagramSize = 1472

// maxPageText is how far a Page message's text field is truncated on the
// sender side before encoding.
const maxPageText = 500

// Tag identifies which message variant an envelope carries.
type Tag string

const (
	TagAnnounce     Tag = "announce"
	TagPeers        Tag = "peers"
	TagSearch       Tag = "search"
	TagPage         Tag = "page"
	TagGetEmbedding Tag = "get_embedding"
	TagEmbedding    Tag = "embedding"
	TagInsert       Tag = "insert"
)

// PeerInfo is one entry in a Peers message's peer list.
type PeerInfo struct {
	InstanceID   string `msgpack:"id"`
	Address      string `msgpack:"addr"`
	AcceptInsert bool   `msgpack:"ai"`
	PagesIndexed uint64 `msgpack:"n"`
}

// Announce is sent peer→tracker and peer→peers to advertise liveness and
// size.
type Announce struct {
	InstanceID   string `msgpack:"id"`
	AcceptInsert bool   `msgpack:"ai"`
	PagesIndexed uint64 `msgpack:"n"`
}

// Peers is the tracker's reply to Announce: up to 25 peers per datagram,
// chunked by the caller if the known set is larger.
type Peers struct {
	Peers []PeerInfo `msgpack:"peers"`
}

// Search carries a query embedding to a peer, optionally bounding replies
// to distances strictly better than DistanceLimit.
type Search struct {
	SearchID      uint64   `msgpack:"sid"`
	DistanceLimit *float32 `msgpack:"dl,omitempty"`
	Embedding     []byte   `msgpack:"emb"` // i24-encoded, 1152 bytes
}

// Page is a single search hit returned to the peer that sent a Search.
type Page struct {
	SearchID   uint64  `msgpack:"sid"`
	InstanceID string  `msgpack:"id"`
	PageID     uint64  `msgpack:"pid"`
	Distance   float32 `msgpack:"d"`
	URL        string  `msgpack:"u"`
	Title      string  `msgpack:"t"`
	Text       string  `msgpack:"x"`
}

// GetEmbedding asks a peer for the embedding behind one of its page ids.
type GetEmbedding struct {
	SearchID uint64 `msgpack:"sid"`
	PageID   uint64 `msgpack:"pid"`
}

// Embedding answers a GetEmbedding request.
type Embedding struct {
	SearchID  uint64 `msgpack:"sid"`
	Embedding []byte `msgpack:"emb"` // i24-encoded, 1152 bytes
}

// Insert replicates a page to a peer willing to accept it. Fields are
// snappy-compressed UTF-8, matching the original's smaz-compressed
// payload.
type Insert struct {
	URLSnappy   []byte `msgpack:"u"`
	TitleSnappy []byte `msgpack:"t"`
	TextSnappy  []byte `msgpack:"x"`
}

// envelope is the on-wire tagged-union shape: a short tag plus the raw
// MessagePack bytes of the variant-specific payload, decoded only once
// the tag is known.
type envelope struct {
	Tag  Tag    `msgpack:"t"`
	Body []byte `msgpack:"b"`
}

// Encode serializes msg into its tagged envelope and fails if the result
// would not fit in a single UDP datagram.
func Encode(msg any) ([]byte, error) {
	tag, err := tagFor(msg)
	if err != nil {
		return nil, err
	}
	body, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("peer: encode %s body: %w", tag, err)
	}
	out, err := msgpack.Marshal(envelope{Tag: tag, Body: body})
	if err != nil {
		return nil, fmt.Errorf("peer: encode %s envelope: %w", tag, err)
	}
	if len(out) > MaxDatagramSize {
		return nil, fmt.Errorf("peer: encoded %s message is %d bytes, exceeds datagram limit %d", tag, len(out), MaxDatagramSize)
	}
	return out, nil
}

func tagFor(msg any) (Tag, error) {
	switch msg.(type) {
	case Announce, *Announce:
		return TagAnnounce, nil
	case Peers, *Peers:
		return TagPeers, nil
	case Search, *Search:
		return TagSearch, nil
	case Page, *Page:
		return TagPage, nil
	case GetEmbedding, *GetEmbedding:
		return TagGetEmbedding, nil
	case Embedding, *Embedding:
		return TagEmbedding, nil
	case Insert, *Insert:
		return TagInsert, nil
	default:
		return "", fmt.Errorf("peer: encode: unrecognized message type %T", msg)
	}
}

// Decode unwraps a received datagram into its tag and the concrete
// message value. An unrecognized tag is returned as ("", nil, nil) —
// callers should ignore unknown variants with a debug log rather than
// treat them as a codec error, per spec §4.6.
func Decode(data []byte) (Tag, any, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("peer: decode envelope: %w", err)
	}

	switch env.Tag {
	case TagAnnounce:
		var m Announce
		if err := msgpack.Unmarshal(env.Body, &m); err != nil {
			return env.Tag, nil, fmt.Errorf("peer: decode announce: %w", err)
		}
		return env.Tag, m, nil
	case TagPeers:
		var m Peers
		if err := msgpack.Unmarshal(env.Body, &m); err != nil {
			return env.Tag, nil, fmt.Errorf("peer: decode peers: %w", err)
		}
		return env.Tag, m, nil
	case TagSearch:
		var m Search
		if err := msgpack.Unmarshal(env.Body, &m); err != nil {
			return env.Tag, nil, fmt.Errorf("peer: decode search: %w", err)
		}
		return env.Tag, m, nil
	case TagPage:
		var m Page
		if err := msgpack.Unmarshal(env.Body, &m); err != nil {
			return env.Tag, nil, fmt.Errorf("peer: decode page: %w", err)
		}
		return env.Tag, m, nil
	case TagGetEmbedding:
		var m GetEmbedding
		if err := msgpack.Unmarshal(env.Body, &m); err != nil {
			return env.Tag, nil, fmt.Errorf("peer: decode get_embedding: %w", err)
		}
		return env.Tag, m, nil
	case TagEmbedding:
		var m Embedding
		if err := msgpack.Unmarshal(env.Body, &m); err != nil {
			return env.Tag, nil, fmt.Errorf("peer: decode embedding: %w", err)
		}
		return env.Tag, m, nil
	case TagInsert:
		var m Insert
		if err := msgpack.Unmarshal(env.Body, &m); err != nil {
			return env.Tag, nil, fmt.Errorf("peer: decode insert: %w", err)
		}
		return env.Tag, m, nil
	default:
		return "", nil, nil
	}
}

// NewSearch builds a Search message, i24-encoding q.
func NewSearch(searchID uint64, distanceLimit *float32, q vector.Embedding) (Search, error) {
	enc, err := vector.ToI24(q)
	if err != nil {
		return Search{}, err
	}
	return Search{SearchID: searchID, DistanceLimit: distanceLimit, Embedding: enc}, nil
}

// DecodeSearchEmbedding i24-decodes a Search message's embedding field.
func DecodeSearchEmbedding(s Search) (vector.Embedding, error) {
	return vector.FromI24(s.Embedding)
}

// NewEmbeddingMessage builds an Embedding reply, i24-encoding v.
func NewEmbeddingMessage(searchID uint64, v vector.Embedding) (Embedding, error) {
	enc, err := vector.ToI24(v)
	if err != nil {
		return Embedding{}, err
	}
	return Embedding{SearchID: searchID, Embedding: enc}, nil
}

// DecodeEmbedding i24-decodes an Embedding message's payload.
func DecodeEmbedding(e Embedding) (vector.Embedding, error) {
	return vector.FromI24(e.Embedding)
}

// TruncatePageText truncates s to at most maxPageText bytes on a UTF-8
// rune boundary, matching original_source/src/util.rs's slice_up_to — a
// naive byte slice could otherwise split a multi-byte rune and produce
// invalid UTF-8 on the wire.
func TruncatePageText(s string) string {
	return sliceUpTo(s, maxPageText)
}

func sliceUpTo(s string, maxLen int) string {
	if maxLen >= len(s) {
		return s
	}
	idx := maxLen
	for idx > 0 && !isUTF8Boundary(s, idx) {
		idx--
	}
	return s[:idx]
}

func isUTF8Boundary(s string, idx int) bool {
	if idx == 0 || idx == len(s) {
		return true
	}
	// A byte is not a continuation byte (10xxxxxx) iff it starts a rune.
	return s[idx]&0xC0 != 0x80
}

// NewInsert compresses url/title/text with snappy for wire transport.
func NewInsert(url, title, text string) Insert {
	return Insert{
		URLSnappy:   snappy.Encode(nil, []byte(url)),
		TitleSnappy: snappy.Encode(nil, []byte(title)),
		TextSnappy:  snappy.Encode(nil, []byte(text)),
	}
}

// DecodeInsert decompresses an Insert message's fields back to UTF-8.
func DecodeInsert(m Insert) (url, title, text string, err error) {
	u, err := snappy.Decode(nil, m.URLSnappy)
	if err != nil {
		return "", "", "", fmt.Errorf("peer: decompress insert url: %w", err)
	}
	t, err := snappy.Decode(nil, m.TitleSnappy)
	if err != nil {
		return "", "", "", fmt.Errorf("peer: decompress insert title: %w", err)
	}
	x, err := snappy.Decode(nil, m.TextSnappy)
	if err != nil {
		return "", "", "", fmt.Errorf("peer: decompress insert text: %w", err)
	}
	return string(u), string(t), string(x), nil
}

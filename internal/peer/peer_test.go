package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dawnsearch/dawnsearch/internal/vector"
)

func TestEncodeDecodeAnnounce(t *testing.T) {
	msg := Announce{InstanceID: "abc123", AcceptInsert: true, PagesIndexed: 42}
	data, err := Encode(msg)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), MaxDatagramSize)

	tag, decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TagAnnounce, tag)
	assert.Equal(t, msg, decoded)
}

func TestEncodeDecodeSearchWithEmbedding(t *testing.T) {
	q := vector.RandomUnit()
	msg, err := NewSearch(123, nil, q)
	require.NoError(t, err)

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), MaxDatagramSize)

	tag, decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TagSearch, tag)

	search := decoded.(Search)
	assert.Equal(t, uint64(123), search.SearchID)
	got, err := DecodeSearchEmbedding(search)
	require.NoError(t, err)
	assert.True(t, vector.IsNormalized(got))
}

func TestEncodeDecodeInsertRoundtrips(t *testing.T) {
	msg := NewInsert("https://example.com", "Example Title", "Some body text about the page.")
	data, err := Encode(msg)
	require.NoError(t, err)

	tag, decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TagInsert, tag)

	url, title, text, err := DecodeInsert(decoded.(Insert))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", url)
	assert.Equal(t, "Example Title", title)
	assert.Equal(t, "Some body text about the page.", text)
}

func TestDecodeUnknownTagIsIgnoredNotError(t *testing.T) {
	raw, err := msgpack.Marshal(envelope{Tag: "future_variant", Body: []byte{}})
	require.NoError(t, err)

	tag, decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, Tag(""), tag)
	assert.Nil(t, decoded)
}

func TestTruncatePageTextRespectsUTF8Boundary(t *testing.T) {
	s := "a\xE2\x98\x83b" // "a", snowman (3 bytes), "b"
	truncated := sliceUpTo(s, 2)
	assert.True(t, isValidUTF8Tail(truncated))
}

func isValidUTF8Tail(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i]&0xC0 == 0x80 && i == len(s)-1 {
			return false
		}
	}
	return true
}

func TestEncodeRejectsUnrecognizedType(t *testing.T) {
	_, err := Encode(struct{ X int }{X: 1})
	assert.Error(t, err)
}

package listener

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, bs []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(bs)
	require.Nil(t, err)
	require.Nil(t, w.Close())
	return buf.Bytes()
}

func zlibbed(t *testing.T, bs []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(bs)
	require.Nil(t, err)
	require.Nil(t, w.Close())
	return buf.Bytes()
}

func flated(t *testing.T, bs []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.Nil(t, err)
	_, err = w.Write(bs)
	require.Nil(t, err)
	require.Nil(t, w.Close())
	return buf.Bytes()
}

func body(bs []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(bs))
}

func TestDecodeBody(t *testing.T) {
	doc := []byte(`{"a": 1}`)

	cases := []struct {
		name string
		enc  []string
		body []byte
	}{
		{"plain", nil, doc},
		{"identity", []string{"identity"}, doc},
		{"gzip", []string{"gzip"}, gzipped(t, doc)},
		{"x-gzip upper case", []string{" X-GZIP "}, gzipped(t, doc)},
		{"zlib deflate", []string{"deflate"}, zlibbed(t, doc)},
		{"raw deflate", []string{"deflate"}, flated(t, doc)},
		{"stacked in one line", []string{"deflate, gzip"}, gzipped(t, zlibbed(t, doc))},
		{"stacked over lines", []string{"gzip", "deflate"}, zlibbed(t, gzipped(t, doc))},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := http.Header{"Content-Encoding": c.enc}
			got, err := decodeBody(h, body(c.body))
			require.Nil(t, err)
			assert.Equal(t, doc, got)
		})
	}
}

func TestDecodeBodyEmpty(t *testing.T) {
	got, err := decodeBody(http.Header{"Content-Encoding": {"gzip"}}, body(nil))
	assert.Nil(t, err)
	assert.Empty(t, got)

	got, err = decodeBody(http.Header{}, nil)
	assert.Nil(t, err)
	assert.Empty(t, got)
}

func TestDecodeBodyUnsupported(t *testing.T) {
	for _, enc := range []string{"br", "zstd", "compress"} {
		_, err := decodeBody(http.Header{"Content-Encoding": {enc}}, body([]byte("xx")))
		assert.ErrorIs(t, err, ErrUnsupportedEncoding, enc)
	}

	_, err := decodeBody(http.Header{"Content-Encoding": {"gzip"}}, body([]byte("not gzip")))
	assert.NotNil(t, err)
}

func TestDecodeBodyTooLarge(t *testing.T) {
	big := []byte(strings.Repeat("a", maxBodySize+1))

	_, err := decodeBody(http.Header{}, body(big))
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	// small on the wire, too large once inflated
	_, err = decodeBody(http.Header{"Content-Encoding": {"gzip"}}, body(gzipped(t, big)))
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

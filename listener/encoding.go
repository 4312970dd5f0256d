package listener

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodySize caps a captured body, before and after decoding.
const maxBodySize = 16 << 20

var (
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
	ErrBodyTooLarge        = errors.New("body too large")
)

// decodeBody reads a captured body and undoes its Content-Encoding. Stacked encodings
// such as "deflate, gzip" are removed last applied first.
func decodeBody(h http.Header, body io.ReadCloser) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	defer body.Close()

	bs, err := readLimited(body)
	if err != nil || len(bs) == 0 {
		return nil, err
	}

	encs := contentEncodings(h)
	for i := len(encs) - 1; i >= 0; i-- {
		if bs, err = decode(encs[i], bs); err != nil {
			return nil, fmt.Errorf("%s: %w", encs[i], err)
		}
	}
	return bs, nil
}

// contentEncodings lists the codings of every Content-Encoding line in order of
// application, without identity.
func contentEncodings(h http.Header) []string {
	var res []string
	for _, line := range h.Values("Content-Encoding") {
		for _, enc := range strings.Split(line, ",") {
			enc = strings.ToLower(strings.TrimSpace(enc))
			if enc != "" && enc != "identity" {
				res = append(res, enc)
			}
		}
	}
	return res
}

func decode(enc string, bs []byte) ([]byte, error) {
	var r io.ReadCloser
	switch enc {
	case "gzip", "x-gzip":
		gr, err := gzip.NewReader(bytes.NewReader(bs))
		if err != nil {
			return nil, err
		}
		r = gr
	case "deflate":
		// deflate is meant to be zlib wrapped but plenty of servers send it raw
		zr, err := zlib.NewReader(bytes.NewReader(bs))
		if err != nil {
			r = flate.NewReader(bytes.NewReader(bs))
		} else {
			r = zr
		}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedEncoding, enc)
	}
	defer r.Close()
	return readLimited(r)
}

func readLimited(r io.Reader) ([]byte, error) {
	bs, err := io.ReadAll(io.LimitReader(r, maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(bs) > maxBodySize {
		return nil, ErrBodyTooLarge
	}
	return bs, nil
}

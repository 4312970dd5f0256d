package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/siegeai/siegeinfer/pipeline"
	"gopkg.in/yaml.v3"
)

const maxLineSize = 64 << 20

// JSONL sends one document per non-blank line of r. Documents are identified as
// name:line. Lines are not validated here; the pipeline rejects malformed ones.
func JSONL(ctx context.Context, r io.Reader, name string, out chan<- pipeline.Doc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line += 1
		bs := bytes.TrimSpace(scanner.Bytes())
		if len(bs) == 0 {
			continue
		}

		doc := pipeline.Doc{
			ID:   fmt.Sprintf("%s:%d", name, line),
			JSON: bytes.Clone(bs),
		}
		if err := send(ctx, out, doc); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s:%d: %w", name, line+1, err)
	}
	return nil
}

// YAML sends every document of a multi-document YAML stream. Empty documents are
// skipped. Decoding stops at the first syntax error since the stream cannot be
// resynchronised after it.
func YAML(ctx context.Context, r io.Reader, name string, out chan<- pipeline.Doc) error {
	dec := yaml.NewDecoder(r)
	for i := 1; ; i++ {
		var node any
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%s: document %d: %w", name, i, err)
		}
		if node == nil {
			slog.Debug("skipping empty yaml document", "name", name, "document", i)
			continue
		}

		doc := pipeline.Doc{
			ID:      fmt.Sprintf("%s:%d", name, i),
			Value:   node,
			Decoded: true,
		}
		if err := send(ctx, out, doc); err != nil {
			return err
		}
	}
}

// ReadIndices reads one document index per line, ignoring blank lines and lines
// starting with #.
func ReadIndices(r io.Reader) ([]string, error) {
	var res []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s := strings.TrimSpace(scanner.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		res = append(res, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func send(ctx context.Context, out chan<- pipeline.Doc, doc pipeline.Doc) error {
	select {
	case out <- doc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

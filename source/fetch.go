package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/siegeai/siegeinfer/pipeline"
	"github.com/valyala/fastjson"
)

const indexPlaceholder = "{index}"

// Fetcher downloads one JSON document per index.
type Fetcher struct {
	Client      *http.Client
	Concurrency int
	URL         func(index string) string
}

// URLTemplate substitutes the escaped index for {index} in tmpl, or appends it when
// tmpl has no placeholder.
func URLTemplate(tmpl string) func(string) string {
	return func(index string) string {
		esc := url.PathEscape(index)
		if strings.Contains(tmpl, indexPlaceholder) {
			return strings.ReplaceAll(tmpl, indexPlaceholder, esc)
		}
		return strings.TrimSuffix(tmpl, "/") + "/" + esc
	}
}

// Fetch GETs every index and sends the JSON bodies to out, identified by their index.
// Failed requests, non-200 responses and bodies that are not JSON are logged and
// dropped. It returns once all indices are handled or ctx is done.
func (f *Fetcher) Fetch(ctx context.Context, indices []string, out chan<- pipeline.Doc) error {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	n := f.Concurrency
	if n <= 0 {
		n = 8
	}

	jobs := make(chan string)
	var dropped atomic.Int64

	wg := &sync.WaitGroup{}
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			for index := range jobs {
				bs, err := f.get(ctx, client, index)
				if err != nil {
					if ctx.Err() == nil {
						slog.Warn("dropping document", "index", index, "err", err)
					}
					dropped.Add(1)
					continue
				}
				if err := send(ctx, out, pipeline.Doc{ID: index, JSON: bs}); err != nil {
					return
				}
			}
		}()
	}

loop:
	for _, index := range indices {
		select {
		case jobs <- index:
		case <-ctx.Done():
			break loop
		}
	}
	close(jobs)
	wg.Wait()

	slog.Info("fetched documents", "requested", len(indices), "dropped", dropped.Load())
	return ctx.Err()
}

func (f *Fetcher) get(ctx context.Context, client *http.Client, index string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(index), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, res.Status)
	}

	bs, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if err := fastjson.ValidateBytes(bs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return bs, nil
}

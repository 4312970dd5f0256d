package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/siegeai/siegeinfer/infer"
	"github.com/siegeai/siegeinfer/schema"
	"github.com/valyala/fastjson"
)

const DefaultBatchSize = 256

// Doc is one input document. Sources either hand over raw JSON or, with Decoded set,
// an already decoded Value.
type Doc struct {
	ID      string
	JSON    []byte
	Value   any
	Decoded bool
}

// Index remembers which document IDs have been folded into a schema.
type Index interface {
	Contains(id string) bool
	Add(id string)
}

type Options struct {
	Config    schema.Config
	Workers   int
	BatchSize int
	Metrics   *Metrics
	Index     Index

	// Initial is merged with the batch schemas, e.g. a schema restored from a
	// checkpoint.
	Initial schema.Schema
}

type Result struct {
	Schema   schema.Schema
	Fitted   int
	Rejected int
	Skipped  int
	Batches  int
}

type batch struct {
	docs    []Doc
	skipped int
}

type batchResult struct {
	schema   schema.Schema
	ids      []string
	fitted   int
	rejected int
	skipped  int
}

// Run fits and reduces docs until the channel is closed. Batches are fitted by
// Workers goroutines and merged in whatever order they finish. If ctx is done first,
// Run returns the schema of every batch merged so far together with ctx.Err(); the
// Index then holds exactly the IDs of those batches.
func Run(ctx context.Context, opts Options, docs <-chan Doc) (Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	res := Result{Schema: opts.Initial}
	if res.Schema == nil {
		res.Schema = schema.NewUnknown()
	}

	batches := make(chan batch, opts.Workers)
	results := make(chan batchResult, opts.Workers)

	go batchJob(ctx, opts, docs, batches)

	wg := &sync.WaitGroup{}
	wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go fitJob(ctx, opts, batches, results, wg)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		res.Schema = opts.Config.Merge(res.Schema, r.schema)
		res.Fitted += r.fitted
		res.Rejected += r.rejected
		res.Skipped += r.skipped
		res.Batches += 1
		if opts.Index != nil {
			for _, id := range r.ids {
				opts.Index.Add(id)
			}
		}
		opts.Metrics.observeMerge()
	}

	if err := ctx.Err(); err != nil {
		slog.Warn("reduction interrupted", "batches", res.Batches, "fitted", res.Fitted, "err", err)
		return res, err
	}

	slog.Debug("reduction done", "batches", res.Batches, "fitted", res.Fitted, "rejected", res.Rejected, "skipped", res.Skipped)
	return res, nil
}

// batchJob groups docs into batches, dropping the ones the index already holds.
func batchJob(ctx context.Context, opts Options, docs <-chan Doc, batches chan<- batch) {
	defer close(batches)

	queued := make(map[string]struct{})
	cur := batch{docs: make([]Doc, 0, opts.BatchSize)}

	send := func() bool {
		if len(cur.docs) == 0 && cur.skipped == 0 {
			return true
		}
		select {
		case batches <- cur:
		case <-ctx.Done():
			return false
		}
		cur = batch{docs: make([]Doc, 0, opts.BatchSize)}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-docs:
			if !ok {
				send()
				return
			}
			if opts.Index != nil && d.ID != "" {
				_, dup := queued[d.ID]
				if dup || opts.Index.Contains(d.ID) {
					slog.Debug("skipping processed document", "id", d.ID)
					cur.skipped += 1
					opts.Metrics.observeDocument(outcomeSkipped)
					continue
				}
				queued[d.ID] = struct{}{}
			}
			cur.docs = append(cur.docs, d)
			if len(cur.docs) >= opts.BatchSize && !send() {
				return
			}
		}
	}
}

// fitJob fits and reduces whole batches. Each worker owns its parser.
func fitJob(ctx context.Context, opts Options, batches <-chan batch, results chan<- batchResult, wg *sync.WaitGroup) {
	defer wg.Done()

	var p fastjson.Parser
	for b := range batches {
		if ctx.Err() != nil {
			continue
		}

		start := time.Now()
		r := fitBatch(opts.Config, &p, opts.Metrics, b)
		opts.Metrics.observeBatch(time.Since(start))

		select {
		case results <- r:
		case <-ctx.Done():
		}
	}
}

func fitBatch(cfg schema.Config, p *fastjson.Parser, m *Metrics, b batch) batchResult {
	r := batchResult{
		ids:     make([]string, 0, len(b.docs)),
		skipped: b.skipped,
	}

	schemas := make([]schema.Schema, 0, len(b.docs))
	for _, d := range b.docs {
		s, err := fitDoc(cfg, p, d)
		if err != nil {
			slog.Warn("skipping malformed document", "id", d.ID, "err", err)
			r.rejected += 1
			m.observeDocument(outcomeRejected)
		} else {
			schemas = append(schemas, s)
			r.fitted += 1
			m.observeDocument(outcomeFitted)
		}
		if d.ID != "" {
			r.ids = append(r.ids, d.ID)
		}
	}

	r.schema = cfg.Reduce(schemas...)
	return r
}

func fitDoc(cfg schema.Config, p *fastjson.Parser, d Doc) (schema.Schema, error) {
	if d.Decoded {
		return infer.Fit(cfg, d.Value)
	}
	v, err := p.ParseBytes(d.JSON)
	if err != nil {
		return nil, err
	}
	return infer.ParseSampleBodyFastJson(cfg, v)
}

// FromSlice returns a closed channel holding docs.
func FromSlice(docs []Doc) <-chan Doc {
	ch := make(chan Doc, len(docs))
	for _, d := range docs {
		ch <- d
	}
	close(ch)
	return ch
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/siegeai/siegeinfer/checkpoint"
	"github.com/siegeai/siegeinfer/internal/config"
	"github.com/siegeai/siegeinfer/pipeline"
	"github.com/siegeai/siegeinfer/schema"
	"github.com/siegeai/siegeinfer/source"
)

type reduceFlags struct {
	out        string
	checkpoint string
	json       bool
}

func (f *reduceFlags) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&f.out, "out", "", "write the schema here instead of stdout")
	fs.StringVar(&f.checkpoint, "checkpoint", cfg.Checkpoint, "resume from and save progress to this file")
	fs.BoolVar(&f.json, "json", false, "write the schema in its JSON encoding")
}

// producer sends documents to out and returns when done; it must not close out.
type producer func(ctx context.Context, out chan<- pipeline.Doc) error

func runJSONL(ctx context.Context, cfg *config.Config, args []string) error {
	return runFiles(ctx, cfg, "jsonl", args, source.JSONL)
}

func runYAML(ctx context.Context, cfg *config.Config, args []string) error {
	return runFiles(ctx, cfg, "yaml", args, source.YAML)
}

func runFiles(ctx context.Context, cfg *config.Config, name string, args []string,
	read func(context.Context, io.Reader, string, chan<- pipeline.Doc) error) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var rf reduceFlags
	rf.register(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	files := fs.Args()
	produce := func(ctx context.Context, out chan<- pipeline.Doc) error {
		if len(files) == 0 {
			return read(ctx, os.Stdin, "stdin", out)
		}
		for _, path := range files {
			if err := readFile(ctx, path, out, read); err != nil {
				return err
			}
		}
		return nil
	}
	return reduce(ctx, cfg, rf, produce)
}

func readFile(ctx context.Context, path string, out chan<- pipeline.Doc,
	read func(context.Context, io.Reader, string, chan<- pipeline.Doc) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return read(ctx, f, path, out)
}

func runFetch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	var rf reduceFlags
	rf.register(fs, cfg)
	indicesPath := fs.String("indices", "", "file with one document index per line (required)")
	url := fs.String("url", "", "document URL, {index} is replaced by the index (required)")
	concurrency := fs.Int("concurrency", 8, "parallel downloads")
	timeout := fs.Duration("timeout", 30*time.Second, "per request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *indicesPath == "" || *url == "" {
		return fmt.Errorf("%w: fetch needs -indices and -url", schema.ErrInvalidConfiguration)
	}

	f, err := os.Open(*indicesPath)
	if err != nil {
		return err
	}
	indices, err := source.ReadIndices(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	slog.Info("fetching documents", "indices", len(indices), "url", *url)

	fetcher := &source.Fetcher{
		Client:      &http.Client{Timeout: *timeout},
		Concurrency: *concurrency,
		URL:         source.URLTemplate(*url),
	}
	return reduce(ctx, cfg, rf, func(ctx context.Context, out chan<- pipeline.Doc) error {
		return fetcher.Fetch(ctx, indices, out)
	})
}

// reduce runs produce through the pipeline, resuming from and saving to the
// checkpoint when one is configured. Progress is saved even when interrupted.
func reduce(ctx context.Context, cfg *config.Config, rf reduceFlags, produce producer) error {
	state := checkpoint.NewState(cfg.Schema)
	if rf.checkpoint != "" {
		var err error
		if state, err = checkpoint.Load(rf.checkpoint, cfg.Schema); err != nil {
			return err
		}
	}

	docs := make(chan pipeline.Doc, cfg.BatchSize)
	produced := make(chan error, 1)
	go func() {
		defer close(docs)
		produced <- produce(ctx, docs)
	}()

	start := time.Now()
	res, runErr := pipeline.Run(ctx, pipeline.Options{
		Config:    cfg.Schema,
		Workers:   cfg.Workers,
		BatchSize: cfg.BatchSize,
		Index:     state.Processed,
		Initial:   state.Schema,
	}, docs)
	prodErr := <-produced

	state.Schema = res.Schema
	state.Documents += res.Fitted
	slog.Info("reduced documents",
		"fitted", res.Fitted, "rejected", res.Rejected, "skipped", res.Skipped,
		"batches", res.Batches, "total", state.Documents, "elapsed", time.Since(start))

	if rf.checkpoint != "" {
		if err := state.Save(rf.checkpoint); err != nil {
			return fmt.Errorf("could not save checkpoint: %w", err)
		}
		slog.Info("saved checkpoint", "path", rf.checkpoint)
	}

	if runErr != nil {
		return runErr
	}
	if prodErr != nil && !errors.Is(prodErr, context.Canceled) {
		return prodErr
	}
	return writeSchema(rf, state.Schema)
}

func writeSchema(rf reduceFlags, s schema.Schema) error {
	w, err := openOutput(rf.out)
	if err != nil {
		return err
	}

	var bs []byte
	if rf.json {
		if bs, err = schema.Marshal(s); err != nil {
			_ = w.Close()
			return err
		}
	} else {
		bs = []byte(s.String())
	}
	bs = append(bs, '\n')

	if _, err := w.Write(bs); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

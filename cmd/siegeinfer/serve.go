package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"time"

	"github.com/siegeai/siegeinfer/checkpoint"
	"github.com/siegeai/siegeinfer/internal/config"
	"github.com/siegeai/siegeinfer/internal/fake"
	"github.com/siegeai/siegeinfer/server"
)

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Addr, "listen address")
	path := fs.String("checkpoint", cfg.Checkpoint, "restore from and save the schema to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s := server.New(cfg.Schema, cfg.Workers)

	state := checkpoint.NewState(cfg.Schema)
	if *path != "" {
		var err error
		if state, err = checkpoint.Load(*path, cfg.Schema); err != nil {
			return err
		}
		s.Restore(state.Schema, state.Documents)
	}

	if err := listenAndServe(ctx, *addr, s.Handler()); err != nil {
		return err
	}

	if *path != "" {
		state.Schema, state.Documents = s.Snapshot()
		if err := state.Save(*path); err != nil {
			return err
		}
		slog.Info("saved checkpoint", "path", *path, "documents", state.Documents)
	}
	return nil
}

func runFakeServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fakeserve", flag.ContinueOnError)
	addr := fs.String("addr", ":8081", "listen address")
	seed := fs.Int64("seed", 1, "generator seed, documents are stable for a given seed and index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return listenAndServe(ctx, *addr, fake.Handler(*seed))
}

// listenAndServe serves h until ctx is done, then shuts down gracefully.
func listenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		slog.Info("serving", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

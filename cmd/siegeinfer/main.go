package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/siegeai/siegeinfer/internal/config"
)

const usage = `usage: siegeinfer <command> [flags] [args]

commands:
  jsonl      infer the schema of newline delimited JSON files (stdin when none given)
  yaml       infer the schema of multi-document YAML files (stdin when none given)
  fetch      infer the schema of documents downloaded by index
  serve      accept documents over HTTP and serve the running schema
  listen     infer route schemas from captured HTTP traffic
  fakeserve  serve generated documents by index

Configuration is read from the environment and .env, see SIEGE_* variables.
`

type command func(ctx context.Context, cfg *config.Config, args []string) error

var commands = map[string]command{
	"jsonl":     runJSONL,
	"yaml":      runYAML,
	"fetch":     runFetch,
	"serve":     runServe,
	"listen":    runListen,
	"fakeserve": runFakeServe,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("could not load config", "err", err)
		return 1
	}
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = cmd(ctx, cfg, args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 2
	case errors.Is(err, context.Canceled):
		slog.Warn("interrupted")
		return 130
	default:
		slog.Error("failed", "command", args[0], "err", err)
		return 1
	}
}

// openOutput returns stdout for "" or "-", otherwise the created file.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

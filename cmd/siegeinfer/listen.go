package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/siegeai/siegeinfer/integrations/siegeserver"
	"github.com/siegeai/siegeinfer/internal/config"
	"github.com/siegeai/siegeinfer/listener"
)

func runListen(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	device := fs.String("i", cfg.Device, "interface to capture from")
	filter := fs.String("f", cfg.Filter, "BPF filter for live capture")
	fname := fs.String("r", "", "read packets from this pcap file, overrides -i")
	out := fs.String("out", "", "write the route schemas here on exit instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		src     listener.PacketSource
		closeFn func() error
		err     error
	)
	if *fname != "" {
		src, closeFn, err = listener.NewPacketSourceFile(*fname)
	} else {
		src, err = listener.NewPacketSourceLive(*device, *filter)
	}
	if err != nil {
		return fmt.Errorf("could not init packet source: %w", err)
	}
	if closeFn != nil {
		defer closeFn()
	}

	// without an api key schemas are only written locally
	var pub listener.Publisher
	if cfg.APIKey != "" {
		client, err := siegeserver.NewClient(cfg.APIKey, cfg.Server)
		if err != nil {
			return err
		}
		pub = client
	} else {
		slog.Info("no SIEGE_APIKEY, schemas will not be published")
	}

	l, err := listener.NewListener(src, pub, listener.Options{
		Config:          cfg.Schema,
		PublishInterval: cfg.PublishInterval,
		Registerer:      prometheus.NewRegistry(),
	})
	if err != nil {
		return err
	}

	if err = l.RegisterStartup(); err != nil {
		return err
	}
	defer l.RegisterShutdown()

	jobs, cancel := context.WithCancel(ctx)
	defer cancel()

	capture := &sync.WaitGroup{}
	capture.Add(2)
	go l.ListenJob(jobs, capture)
	go l.ReassembleJob(jobs, capture)

	publish := &sync.WaitGroup{}
	publish.Add(1)
	go l.PublishJob(jobs, publish)

	captured := make(chan struct{})
	go func() {
		capture.Wait()
		close(captured)
	}()

	if *fname != "" {
		slog.Info("replaying", "file", *fname)
	} else {
		slog.Info("listening", "device", *device, "filter", *filter)
	}

	select {
	case <-ctx.Done():
	case <-captured:
	}
	cancel()
	capture.Wait()
	publish.Wait()

	return writeRoutes(*out, l.Schemas())
}

func writeRoutes(path string, routes []siegeserver.RouteSchema) error {
	w, err := openOutput(path)
	if err != nil {
		return err
	}
	for _, r := range routes {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", r.Route, r.Schema); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

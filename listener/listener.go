package listener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/siegeai/siegeinfer/httpassembly"
	"github.com/siegeai/siegeinfer/infer"
	"github.com/siegeai/siegeinfer/integrations/siegeserver"
	"github.com/siegeai/siegeinfer/schema"
)

var (
	ErrNoPacketSource = errors.New("listener needs a packet source")
)

// Publisher receives the route schemas a listener infers.
type Publisher interface {
	Startup(ctx context.Context) (*siegeserver.ListenerConfig, error)
	Shutdown(ctx context.Context, listenerID string) error
	Update(ctx context.Context, args siegeserver.ListenerUpdate) error
}

type Options struct {
	Config          schema.Config
	PublishInterval time.Duration
	Registerer      prometheus.Registerer
	// Gatherer is sent along with every update in text exposition format. It
	// defaults to Registerer when that is also a Gatherer.
	Gatherer prometheus.Gatherer
}

type Listener struct {
	source   PacketSource
	client   Publisher
	cfg      schema.Config
	every    time.Duration
	packets  chan gopacket.Packet
	metrics  *metrics
	gatherer prometheus.Gatherer

	listenerID string

	mu      sync.Mutex
	schemas map[string]schema.Schema
	dirty   bool
}

func NewListener(source PacketSource, client Publisher, opts Options) (*Listener, error) {
	if source == nil {
		return nil, ErrNoPacketSource
	}
	if opts.PublishInterval <= 0 {
		opts.PublishInterval = 10 * time.Second
	}
	if opts.Gatherer == nil {
		opts.Gatherer, _ = opts.Registerer.(prometheus.Gatherer)
	}

	l := &Listener{
		source:   source,
		client:   client,
		cfg:      opts.Config,
		every:    opts.PublishInterval,
		packets:  make(chan gopacket.Packet, 1024),
		metrics:  newMetrics(opts.Registerer),
		gatherer: opts.Gatherer,
		schemas:  make(map[string]schema.Schema),
	}
	return l, nil
}

func (l *Listener) RegisterStartup() error {
	if l.client == nil {
		l.listenerID = uuid.NewString()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	config, err := l.client.Startup(ctx)
	if err != nil {
		slog.Error("could not register listener startup", "err", err)
		return err
	}
	l.listenerID = config.ListenerID
	slog.Info("registered listener", "id", l.listenerID)
	return nil
}

func (l *Listener) RegisterShutdown() {
	if l.client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := l.client.Shutdown(ctx, l.listenerID); err != nil {
		slog.Warn("could not register listener shutdown", "err", err)
	}
}

// ListenJob forwards captured packets to the reassembler until ctx is done or the
// source runs dry.
func (l *Listener) ListenJob(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(l.packets)

	packets := l.source.Packets()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-packets:
			if !ok {
				slog.Info("packet source exhausted")
				return
			}
			l.metrics.packets.Inc()
			select {
			case l.packets <- p:
			case <-ctx.Done():
				return
			}
		}
	}
}

// ReassembleJob rebuilds HTTP exchanges from the packets ListenJob forwards.
func (l *Listener) ReassembleJob(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	assembler := httpassembly.NewAssembler(&factory{l: l})
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-l.packets:
			if !ok {
				assembler.FlushCloseOlderThan(time.Now().Add(time.Hour))
				return
			}
			assembler.Assemble(p)
		case <-ticker.C:
			n := assembler.FlushCloseOlderThan(time.Now().Add(-2 * time.Minute))
			slog.Debug("flushed idle streams", "closed", n)
		}
	}
}

// PublishJob sends the route schemas every PublishInterval when they changed, and
// once more when ctx is done.
func (l *Listener) PublishJob(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(l.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			l.publish(final)
			cancel()
			return
		case <-ticker.C:
			l.publish(ctx)
		}
	}
}

func (l *Listener) publish(ctx context.Context) {
	if l.client == nil {
		return
	}

	l.mu.Lock()
	if !l.dirty {
		l.mu.Unlock()
		return
	}
	update := siegeserver.ListenerUpdate{
		ListenerID: l.listenerID,
		Schemas:    l.routeSchemasLocked(),
	}
	l.dirty = false
	l.mu.Unlock()

	update.Metrics = l.gatherMetrics()
	if err := l.client.Update(ctx, update); err != nil {
		slog.Warn("could not publish schemas", "err", err)
		l.mu.Lock()
		l.dirty = true
		l.mu.Unlock()
		return
	}
	l.metrics.publishes.Inc()
	slog.Debug("published schemas", "routes", len(update.Schemas))
}

func (l *Listener) gatherMetrics() string {
	if l.gatherer == nil {
		return ""
	}
	mfs, err := l.gatherer.Gather()
	if err != nil {
		slog.Warn("could not gather metrics", "err", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			slog.Warn("could not encode metrics", "err", err)
			return ""
		}
	}
	return buf.String()
}

// Schemas returns a snapshot of the schema inferred for every route.
func (l *Listener) Schemas() []siegeserver.RouteSchema {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.routeSchemasLocked()
}

func (l *Listener) routeSchemasLocked() []siegeserver.RouteSchema {
	res := make([]siegeserver.RouteSchema, 0, len(l.schemas))
	for route, s := range l.schemas {
		res = append(res, siegeserver.NewRouteSchema(route, s))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Route < res[j].Route })
	return res
}

type factory struct {
	l *Listener
}

func (f *factory) New() httpassembly.HttpStream {
	return &stream{l: f.l}
}

type stream struct {
	l *Listener
}

func (s *stream) ReassembledRequestResponse(req *http.Request, res *http.Response) {
	s.l.handleRequestResponse(req, res)
}

func (l *Listener) handleRequestResponse(req *http.Request, res *http.Response) {
	slog.Debug("handling", "method", req.Method, "url", req.URL, "status", res.StatusCode)
	l.metrics.exchanges.Inc()
	if 500 <= res.StatusCode && res.StatusCode < 600 {
		return
	}

	route := req.Method + " " + templatePath(req.URL.Path)

	rb, err := decodeBody(req.Header, req.Body)
	if err != nil {
		slog.Warn("could not read request body", "route", route, "err", err)
	} else if len(rb) > 0 && res.StatusCode != http.StatusBadRequest {
		l.observe(route+" request", rb)
	}

	wb, err := decodeBody(res.Header, res.Body)
	if err != nil {
		slog.Warn("could not read response body", "route", route, "err", err)
	} else if len(wb) > 0 {
		l.observe(route+" response "+strconv.Itoa(res.StatusCode), wb)
	}
}

func (l *Listener) observe(key string, body []byte) {
	s, err := infer.ParseSampleBodyBytes(l.cfg, body)
	if err != nil {
		// not json
		l.metrics.bodies.WithLabelValues("rejected").Inc()
		return
	}
	l.metrics.bodies.WithLabelValues("fitted").Inc()

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.schemas[key]; ok {
		s = l.cfg.Merge(prev, s)
	}
	l.schemas[key] = s
	l.dirty = true
}

// templatePath replaces numeric and UUID path segments with {arg1}, {arg2}, ...
func templatePath(path string) string {
	nparams := 1
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		_, intErr := strconv.Atoi(p)
		_, uuidErr := uuid.Parse(p)
		if intErr == nil || uuidErr == nil {
			parts[i] = fmt.Sprintf("{arg%d}", nparams)
			nparams += 1
		}
	}
	return strings.Join(parts, "/")
}

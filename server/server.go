package server

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/siegeai/siegeinfer/infer"
	"github.com/siegeai/siegeinfer/pipeline"
	"github.com/siegeai/siegeinfer/schema"
	"github.com/siegeai/siegeinfer/source"
	"github.com/urfave/negroni"
)

const maxBodySize = 64 << 20

// Server accepts documents over HTTP and keeps the schema of everything posted so far.
type Server struct {
	cfg      schema.Config
	workers  int
	router   *mux.Router
	registry *prometheus.Registry
	metrics  *pipeline.Metrics

	mu        sync.Mutex
	schema    schema.Schema
	documents int
}

func New(cfg schema.Config, workers int) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		cfg:      cfg,
		workers:  workers,
		router:   mux.NewRouter(),
		registry: reg,
		metrics:  pipeline.NewMetrics(reg),
		schema:   schema.NewUnknown(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/documents", s.handlePostDocuments()).Methods(http.MethodPost)
	s.router.HandleFunc("/schema", s.handleGetSchema()).Methods(http.MethodGet)
	s.router.HandleFunc("/schema.json", s.handleGetSchemaJSON()).Methods(http.MethodGet)
	s.router.HandleFunc("/schema", s.handleDeleteSchema()).Methods(http.MethodDelete)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Handler returns the routes wrapped in recovery and request logging.
func (s *Server) Handler() http.Handler {
	n := negroni.New(negroni.NewRecovery(), negroni.HandlerFunc(logMiddleware))
	n.UseHandler(s.router)
	return n
}

// Registry is where the server's metrics live; other components may add theirs.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Snapshot returns the current schema and how many documents it was built from.
func (s *Server) Snapshot() (schema.Schema, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema, s.documents
}

// Restore replaces the current state, e.g. with one loaded from a checkpoint.
func (s *Server) Restore(sch schema.Schema, documents int) {
	if sch == nil {
		sch = schema.NewUnknown()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = sch
	s.documents = documents
}

func (s *Server) merge(sch schema.Schema, n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = s.cfg.Merge(s.schema, sch)
	s.documents += n
	return s.documents
}

func logMiddleware(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	next(w, r)
	status := 0
	if ww, ok := w.(negroni.ResponseWriter); ok {
		status = ww.Status()
	}
	slog.Info("handled request", "method", r.Method, "uri", r.RequestURI, "proto", r.Proto, "status", status)
}

type postResponse struct {
	Fitted    int `json:"fitted"`
	Rejected  int `json:"rejected"`
	Documents int `json:"documents"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handlePostDocuments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := http.MaxBytesReader(w, r.Body, maxBodySize)

		mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mt == "application/x-ndjson" || mt == "application/jsonl" {
			s.postLines(r.Context(), w, body)
			return
		}

		bs, err := io.ReadAll(body)
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
			return
		}
		sch, err := infer.ParseSampleBodyBytes(s.cfg, bs)
		if err != nil {
			s.metrics.ObserveDocuments(0, 1)
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s.metrics.ObserveDocuments(1, 0)

		total := s.merge(sch, 1)
		writeJSON(w, http.StatusOK, postResponse{Fitted: 1, Documents: total})
	}
}

// postLines reduces a newline delimited body through the batch pipeline. Malformed
// lines are rejected individually; the request fails only when no line fits.
func (s *Server) postLines(ctx context.Context, w http.ResponseWriter, body io.Reader) {
	docs := make(chan pipeline.Doc)
	readErr := make(chan error, 1)
	go func() {
		defer close(docs)
		readErr <- source.JSONL(ctx, body, "request", docs)
	}()

	res, err := pipeline.Run(ctx, pipeline.Options{Config: s.cfg, Workers: s.workers, Metrics: s.metrics}, docs)
	if rerr := <-readErr; rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if res.Fitted == 0 && res.Rejected > 0 {
		writeJSON(w, http.StatusBadRequest, postResponse{Rejected: res.Rejected})
		return
	}

	total := s.merge(res.Schema, res.Fitted)
	writeJSON(w, http.StatusOK, postResponse{Fitted: res.Fitted, Rejected: res.Rejected, Documents: total})
}

func (s *Server) handleGetSchema() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sch, _ := s.Snapshot()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, sch.String()+"\n")
	}
}

type schemaResponse struct {
	Config    schema.Config  `json:"config"`
	Documents int            `json:"documents"`
	Schema    schema.Encoded `json:"schema"`
	Rendered  string         `json:"rendered"`
}

func (s *Server) handleGetSchemaJSON() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sch, n := s.Snapshot()
		writeJSON(w, http.StatusOK, schemaResponse{
			Config:    s.cfg,
			Documents: n,
			Schema:    schema.Encoded{Schema: sch},
			Rendered:  sch.String(),
		})
	}
}

func (s *Server) handleDeleteSchema() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Restore(nil, 0)
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("could not write response", "err", err)
	}
}

// Package api serves the dataq HTTP interface: configuration, stored
// paths and events, live pipeline views and debug charts.
package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/dataq/internal/anomaly"
	"github.com/banshee-data/dataq/internal/config"
	"github.com/banshee-data/dataq/internal/db"
	"github.com/banshee-data/dataq/internal/geospace"
	"github.com/banshee-data/dataq/internal/ingest"
	"github.com/banshee-data/dataq/internal/occupancy"
	"github.com/banshee-data/dataq/internal/pipeline"
	"github.com/banshee-data/dataq/internal/stitch"
	"github.com/banshee-data/dataq/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Pipeline is the part of *pipeline.Pipeline the API drives.
type Pipeline interface {
	Configure(ctx context.Context, s pipeline.Settings) error
	Held() []stitch.Held
	AnomalyStats() map[string]map[string]anomaly.Summary
	Occupancy() occupancy.Snapshot
	Status() pipeline.Status
}

// Server holds the handler dependencies. Feed may be nil when no live
// source is attached.
type Server struct {
	pipeline Pipeline
	db       *db.DB
	geo      *geospace.Transformer
	feed     *ingest.Feed
	clock    timeutil.Clock

	mu  sync.Mutex // serializes config updates
	cfg *config.Config
}

// Options are the Server dependencies.
type Options struct {
	Pipeline Pipeline
	DB       *db.DB
	Geo      *geospace.Transformer
	Feed     *ingest.Feed
	Clock    timeutil.Clock
	Config   *config.Config
}

// NewServer creates a server. Config is the configuration currently applied
// to the pipeline.
func NewServer(o Options) *Server {
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.Geo == nil {
		o.Geo = geospace.NewTransformer()
	}
	if o.Config == nil {
		o.Config = config.EmptyConfig()
	}
	return &Server{
		pipeline: o.Pipeline,
		db:       o.DB,
		geo:      o.Geo,
		feed:     o.Feed,
		clock:    o.Clock,
		cfg:      o.Config,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController, which
// the websocket upgrade needs for Hijack.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/config", s.showConfig)
	mux.HandleFunc("POST /api/config", s.updateConfig)
	mux.HandleFunc("GET /api/paths", s.listPaths)
	mux.HandleFunc("GET /api/paths/{id}", s.getPath)
	mux.HandleFunc("GET /api/anomalies", s.listAnomalies)
	mux.HandleFunc("GET /api/occupancy", s.showOccupancy)
	mux.HandleFunc("GET /api/stitch/held", s.showHeld)
	mux.HandleFunc("GET /api/anomaly/stats", s.showAnomalyStats)
	mux.HandleFunc("GET /api/status", s.showStatus)
	mux.HandleFunc("POST /api/geospace/transform", s.transform)
	mux.HandleFunc("POST /api/geospace/calibrate", s.calibrate)
	mux.HandleFunc("GET /debug/occupancy", s.occupancyChart)
	mux.HandleFunc("GET /debug/paths.png", s.pathsPlot)
}

// ServeMux returns a new mux with the API routes registered.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Config returns the configuration currently applied.
func (s *Server) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

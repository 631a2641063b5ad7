// Package web serves the node's live status page, the same view as JSON,
// and the Prometheus metrics when they are enabled.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/sensor-node/internal/status"
)

// readHeaderTimeout bounds how long a client may hold a connection before
// sending its request line.
const readHeaderTimeout = 5 * time.Second

// Server exposes a status.Tracker over HTTP. All routes are read-only.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New builds a Server on addr. A non-nil metrics handler is mounted at
// /metrics. Anything other than GET or HEAD gets 405.
func New(addr string, tracker *status.Tracker, metrics http.Handler) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.servePage)
	mux.HandleFunc("GET /index.html", s.servePage)
	mux.HandleFunc("GET /index.json", s.serveStatus)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the routes without a listener, for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// servePage renders the readings table. Readings change every few seconds,
// so nothing is cached.
func (s *Server) servePage(w http.ResponseWriter, _ *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	renderHTML(w, snap)
}

func (s *Server) serveStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(status.FormatJSON(snap))
}

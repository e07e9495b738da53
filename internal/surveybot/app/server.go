package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/money626/epidemic-servey-chatbot/common/trace"
	"github.com/money626/epidemic-servey-chatbot/common/version"
)

// Server serves the webhook callback, the rendered chart and the operational
// endpoints (/, /health, /status, /metrics).
type Server struct {
	addr      string
	store     statusProvider
	startedAt time.Time
	mux       *http.ServeMux
	handler   http.Handler

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
}

// statusProvider is the minimal interface the server needs from the Store.
type statusProvider interface {
	CountUsers(ctx context.Context) (int, error)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type statusResponse struct {
	Status string `json:"status"`
	version.Build
	StartedAt  time.Time `json:"started_at"`
	UptimeSecs float64   `json:"uptime_seconds"`
	UserCount  int       `json:"user_count"`
}

// NewServer creates the HTTP server without starting it.
func NewServer(addr string, sp statusProvider) *Server {
	mux := http.NewServeMux()
	s := &Server{
		addr:      addr,
		store:     sp,
		startedAt: time.Now(),
		mux:       mux,
		handler:   trace.Middleware(mux),
	}
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Handle registers an extra route. Call it before Run.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Addr returns the bound address once Run is listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Lock()
	s.server, s.ln = srv, ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
		return nil
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Hello World!"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	users := 0
	if s.store != nil {
		n, err := s.store.CountUsers(r.Context())
		if err != nil {
			slog.Warn("status: failed to count users", "err", err)
		}
		users = n
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:     "ok",
		Build:      version.Current(),
		StartedAt:  s.startedAt,
		UptimeSecs: time.Since(s.startedAt).Seconds(),
		UserCount:  users,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", "err", err)
	}
}

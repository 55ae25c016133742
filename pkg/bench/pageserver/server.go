// Package pageserver provides an importable HTTP server hosting the
// generated agent pages a benchmark run navigates to. Tests and the CLI can
// start and stop it programmatically without running a separate process.
package pageserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// Config holds server configuration options.
type Config struct {
	Addr         string        // Listen address (":0" binds a random port)
	Dir          string        // Directory of generated pages to serve
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout
}

// DefaultConfig returns a configuration suitable for testing: a random port
// and the current directory.
func DefaultConfig() Config {
	return Config{
		Addr:         ":0",
		Dir:          ".",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server serves the static benchmark pages.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	addr       string
	mu         sync.Mutex
	running    bool
}

// NewServer creates a page server for the configured directory. The server
// does not listen until Start is called.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("page directory is required")
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(cfg.Dir)))

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{httpServer: httpServer}, nil
}

// Start begins listening and serving in the background. It returns the bound
// address, which is the way to discover the port when Addr was ":0".
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.addr, nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = ln
	s.addr = ln.Addr().String()
	s.running = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			// Server was shut down from under us; nothing to report.
		}
	}()

	return s.addr, nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the address the server is listening on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

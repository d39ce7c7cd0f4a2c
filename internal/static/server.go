// Package static serves a directory over HTTP with client caching disabled,
// so every scenario run sees the files currently on disk.
package static

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/cors"

	"github.com/kuitang/modulista-e2e/internal/errs"
	"github.com/kuitang/modulista-e2e/internal/obs"
)

// DefaultPort is the port the asset server listens on when none is given.
const DefaultPort = 8081

const shutdownTimeout = 5 * time.Second

// Config configures the server.
type Config struct {
	Root string // directory to serve; "." when empty
	Port int    // 0 picks a free port
	// Host restricts the listen address; empty listens on all interfaces.
	Host string
}

// Server is a static file server with an explicit start/stop lifecycle.
type Server struct {
	cfg     Config
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// New builds a server. Nothing is bound until Start.
func New(cfg Config) *Server {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	return &Server{
		cfg:     cfg,
		handler: Handler(cfg.Root),
		ready:   make(chan struct{}),
	}
}

// Handler returns the full middleware chain over a file server for root.
func Handler(root string) http.Handler {
	files := http.FileServer(http.Dir(root))
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	})
	return obs.RequestContextMiddleware(obs.AccessLogMiddleware("static", NoCache(c.Handler(files))))
}

// NoCache sets headers that forbid caching on every response, including
// errors and directory listings.
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setNoCache(w.Header())
		next.ServeHTTP(&noCacheWriter{ResponseWriter: w}, r)
	})
}

func setNoCache(h http.Header) {
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

// noCacheWriter reapplies the headers when the status is written, since
// http.FileServer strips Cache-Control from error responses.
type noCacheWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *noCacheWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		setNoCache(w.Header())
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *noCacheWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}

func (w *noCacheWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Start binds the listening socket and serves until ctx is cancelled, then
// shuts down gracefully. A bind failure is returned as bind_error.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errs.Wrap(errs.BindError, fmt.Sprintf("could not bind %s", addr), err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	logger := obs.Pkg("static")
	logger.Info("static_server_listening", "addr", ln.Addr().String(), "root", s.cfg.Root)

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("static server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("static server shutdown: %w", err)
		}
		logger.Info("static_server_stopped")
		return nil
	}
}

// Ready is closed once the socket is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr reports the bound address, or "" before Start binds.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL is the http base URL of the bound server.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	_, port, _ := net.SplitHostPort(addr)
	return "http://localhost:" + port + "/"
}

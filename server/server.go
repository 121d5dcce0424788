// Package server exposes Squirrel VMs over the network: a Connect
// evaluation service with per-session VMs, and a language server.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/squirrel/vm"
)

var log = commonlog.GetLogger("squirrel.server")

// Server serves the Connect evaluation and session services. Connect
// speaks its own HTTP/JSON protocol as well as gRPC and gRPC-Web on the
// same handlers.
type Server struct {
	worker   *VMWorker
	sessions *SessionStore
	mux      *http.ServeMux
	http     *http.Server

	stopSweeper func()
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	sweepInterval time.Duration
	sessionTTL    time.Duration
}

// WithSessionTTL destroys sessions idle for longer than ttl. Zero
// disables expiry.
func WithSessionTTL(ttl time.Duration) ServerOption {
	return func(c *serverConfig) { c.sessionTTL = ttl }
}

// New creates a Server. newVM builds the shared VM and one VM per
// session.
func New(newVM func() *vm.VM, opts ...ServerOption) *Server {
	cfg := &serverConfig{
		sweepInterval: 5 * time.Minute,
		sessionTTL:    30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewVMWorker(newVM())
	sessions := NewSessionStore(newVM)

	s := &Server{
		worker:   worker,
		sessions: sessions,
		mux:      http.NewServeMux(),
	}

	for path, h := range NewEvalService(worker, sessions).Handlers() {
		s.mux.Handle(path, h)
	}
	for path, h := range NewSessionService(sessions).Handlers() {
		s.mux.Handle(path, h)
	}

	if cfg.sessionTTL > 0 {
		s.stopSweeper = sessions.StartSweeper(cfg.sweepInterval, cfg.sessionTTL)
	}
	return s
}

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler { return s.mux }

// Sessions returns the session store.
func (s *Server) Sessions() *SessionStore { return s.sessions }

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Noticef("squirrel server listening on %s", addr)
		log.Noticef("  Connect (HTTP/JSON): http://%s%s", addr, EvaluateProcedure)
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Stop destroys every session and the shared VM.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.sessions.DestroyAll()
	shutdown(s.worker)
}

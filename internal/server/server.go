package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/afeedhshaji/mobai-relay/pkg/llm"
	"github.com/rs/zerolog/log"
)

// ShutdownTimeout bounds how long in-flight requests get to finish.
const ShutdownTimeout = 30 * time.Second

// Server serves the assistant API until its context is cancelled.
type Server struct {
	srv *http.Server
}

// New builds a server listening on addr.
func New(addr string, responder llm.Responder, token string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewHandlers(responder, token).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run listens on the configured address and blocks until ctx is cancelled
// or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("Starting assistant server")
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down assistant server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

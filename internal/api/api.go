// Package api is the HTTP front of the agent: a health probe and a chat
// endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/multiagent/internal/config"
	"github.com/dotcommander/multiagent/internal/errs"
	"github.com/dotcommander/multiagent/internal/logging"
)

const (
	// RequestIDHeader carries the correlation id of a request.
	RequestIDHeader = "X-Request-ID"

	maxBodyBytes = 1 << 20
)

// Server owns the router and the listener lifecycle.
type Server struct {
	cfg     *config.Config
	handler *Handler
	log     zerolog.Logger
}

// New creates the API server.
func New(cfg *config.Config, invoker Invoker) *Server {
	return &Server{
		cfg:     cfg,
		handler: NewHandler(cfg, invoker),
		log:     logging.For("api"),
	}
}

// Router builds the chi router with the middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(hlog.NewHandler(s.log))
	r.Use(requestID)
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestSize(maxBodyBytes))

	r.Get("/health", s.handler.Health)
	r.Post("/chat", s.handler.Chat)

	return r
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errs.Error{Err: err, Reason: fmt.Sprintf("Could not listen on %s.", addr)}
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. The listener and any open
// connections are closed immediately on cancellation.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Close()
	})

	s.log.Info().Str("addr", ln.Addr().String()).Msg("API listening")
	err := g.Wait()
	s.log.Info().Msg("API stopped")
	return err
}

type requestIDKey struct{}

// RequestIDFrom returns the correlation id stored by the request middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("request_id", id)
		})
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

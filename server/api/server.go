package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/compose-network/verifier/server/api/middleware"
)

type Server struct {
	cfg Config
	log zerolog.Logger

	Router *mux.Router
	http   *http.Server
	chain  []func(http.Handler) http.Handler

	mtx      sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

func NewServer(cfg Config, log zerolog.Logger) *Server {
	r := mux.NewRouter()
	s := &Server{
		cfg:    cfg,
		log:    log.With().Str("component", "http-api").Logger(),
		Router: r,
		ready:  make(chan struct{}),
	}

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	return s
}

// UseDefaults installs request id, recovery, access logging, body limits
// and, when configured, CORS.
func (s *Server) UseDefaults() {
	s.Use(middleware.RequestID())
	s.Use(middleware.Recover(s.log))
	s.Use(middleware.Logger(s.log))
	if s.cfg.MaxBodyBytes > 0 {
		s.Use(middleware.MaxBody(s.cfg.MaxBodyBytes))
	}
	if s.cfg.EnableCORS {
		s.EnableCORS()
	}
}

// Use appends middleware to the chain and rebuilds the handler
func (s *Server) Use(mw func(http.Handler) http.Handler) {
	s.chain = append(s.chain, mw)
	s.http.Handler = s.buildHandler()
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// buildHandler constructs the middleware chain
func (s *Server) buildHandler() http.Handler {
	h := http.Handler(s.Router)
	for i := len(s.chain) - 1; i >= 0; i-- {
		h = s.chain[i](h)
	}
	return h
}

// Start serves until ctx is canceled, then drains in-flight requests for up
// to the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	s.mtx.Lock()
	s.listener = ln
	s.mtx.Unlock()
	close(s.ready)

	go func() {
		<-ctx.Done()
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("HTTP API shutdown did not complete cleanly")
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP API server starting")
	err = s.http.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info().Msg("HTTP API server stopped")
	return nil
}

// Addr blocks until the server is listening and returns its address.
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.listener.Addr(), nil
}

// EnableCORS enables permissive CORS. Use sparingly in prod.
func (s *Server) EnableCORS() {
	s.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.ExposedHeaders([]string{"X-Request-ID"}),
	))
}

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"runnerd/internal/cache"
	"runnerd/internal/config"
	"runnerd/internal/ws"
)

// Server serves batched runner invocations over HTTP and WebSocket.
type Server struct {
	cfg        *config.Config
	methods    *Registry
	cache      cache.Cache
	httpServer *http.Server
	logger     zerolog.Logger
}

// New creates a new Server
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	var respCache cache.Cache
	if cfg.IsCacheEnabled() {
		var err error
		respCache, err = cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.GetTTLDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		logger.Info().
			Int("size", cfg.Cache.Size).
			Int("ttl", cfg.Cache.TTL).
			Msg("response cache enabled")
	} else {
		respCache = cache.NewNoopCache()
		logger.Info().Msg("response cache disabled")
	}

	return &Server{
		cfg:     cfg,
		methods: NewRegistry(),
		cache:   respCache,
		logger:  logger,
	}, nil
}

// RegisterMethod adds a runner method under a name.
func (s *Server) RegisterMethod(name string, m Method) {
	s.methods.Register(name, m)
	s.logger.Info().Str("method", name).Msg("registered method")
}

// Handler builds the HTTP handler tree: POST /<method>, /ws upgrades,
// and a liveness endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(s.methods, s.logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/", NewHandler(s.methods, s.cache, s.cfg, s.logger))
	return mux
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.GetRequestTimeoutDuration(),
		WriteTimeout: s.cfg.GetRequestTimeoutDuration(),
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.Info().
			Str("addr", addr).
			Strs("methods", s.methods.Methods()).
			Msg("starting runner server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("runner server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server...")

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	if s.cache != nil {
		s.cache.Close()
	}

	if err != nil {
		return fmt.Errorf("runner server shutdown error: %w", err)
	}
	s.logger.Info().Msg("server stopped")
	return nil
}

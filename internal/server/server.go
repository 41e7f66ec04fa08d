package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/logger"
	"github.com/raaihank/text-anonymizer/internal/lookup"
	"github.com/raaihank/text-anonymizer/internal/websocket"
)

// ruleSet pairs compiled rules with the pattern configuration they came
// from so per-request overrides can be merged on top
type ruleSet struct {
	patterns config.PatternConfig
	rules    *anonymizer.Rules
}

// Server exposes the anonymizer over HTTP
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	sink    lookup.Sink
	gen     anonymizer.Generator
	limiter *clientLimiter
	router  *mux.Router
	server  *http.Server
	wsHub   *websocket.Hub
	version string

	ruleSet atomic.Pointer[ruleSet]

	cancelHub context.CancelFunc
}

// Option customizes a Server
type Option func(*Server)

// WithGenerator sets the substitute value source
func WithGenerator(g anonymizer.Generator) Option {
	return func(s *Server) { s.gen = g }
}

// WithVersion sets the version reported by /info
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a new server instance. rules must have been compiled from
// cfg.PatternConfig.
func New(cfg *config.Config, rules *anonymizer.Rules, sink lookup.Sink, log *logger.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config is required")
	}
	if rules == nil {
		return nil, errors.New("compiled rules are required")
	}
	if sink == nil {
		sink = lookup.NopSink{}
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		sink:    sink,
		router:  mux.NewRouter(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gen == nil {
		s.gen = anonymizer.NewFakeGenerator(cfg.Generator.Seed)
	}

	s.ruleSet.Store(&ruleSet{patterns: cfg.PatternConfig, rules: rules})

	if cfg.Server.RateLimit.Enabled {
		s.limiter = newClientLimiter(cfg.Server.RateLimit)
	}

	if cfg.WebSocket.Enabled {
		s.wsHub = websocket.NewHub(websocket.HubConfigFrom(cfg.WebSocket), log.WithComponent("websocket").Logger)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.wsHub != nil {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)
	api.HandleFunc("/anonymize", s.handleAnonymize).Methods(http.MethodPost)
	api.HandleFunc("/lookups/{run_id}", s.handleLookup).Methods(http.MethodGet)
}

// Handler returns the server's router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the websocket hub and serves HTTP until Stop is called
func (s *Server) Start() error {
	s.logger.Info("Starting anonymizer server",
		zap.Int("port", s.config.Server.Port),
		zap.String("lookup_sink", s.config.Lookup.Sink),
		zap.Bool("rate_limit", s.limiter != nil),
		zap.Bool("websocket", s.wsHub != nil),
	)

	s.startBackground()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startBackground starts the hub and the limiter cleanup loop
func (s *Server) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelHub = cancel

	if s.wsHub != nil {
		go s.wsHub.Run(ctx)
	}
	if s.limiter != nil {
		go s.limiter.cleanupLoop(ctx, time.Minute, 10*time.Minute)
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping anonymizer server")
	if s.cancelHub != nil {
		s.cancelHub()
	}
	return s.server.Shutdown(ctx)
}

// UpdateRules swaps the rules used by new requests
func (s *Server) UpdateRules(patterns config.PatternConfig, rules *anonymizer.Rules) {
	s.ruleSet.Store(&ruleSet{patterns: patterns, rules: rules})
	s.logger.Info("Detection rules updated")
}

// rulesFor returns the rules to use for one request, compiling overrides
// on top of the current configuration when present
func (s *Server) rulesFor(overrides map[string]string) (*anonymizer.Rules, error) {
	current := s.ruleSet.Load()
	override := config.PatternConfigFromMap(overrides)
	if override.IsZero() {
		return current.rules, nil
	}
	return anonymizer.CompileRules(current.patterns.Merge(override))
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/doc-sentinel/internal/audit"
	"github.com/raaihank/doc-sentinel/internal/cache"
	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/privacy"
	"github.com/raaihank/doc-sentinel/internal/security"
	"github.com/raaihank/doc-sentinel/internal/summarize"
	"github.com/raaihank/doc-sentinel/internal/web"
	"github.com/raaihank/doc-sentinel/internal/websocket"
)

// Version is reported by /info
var Version = "0.1.0"

const statusInterval = 30 * time.Second

// Auditor records per-document label counts
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Summarizer generates certificate drafts from confirmed text. On failure
// Summarize may return the sections generated before the error.
type Summarizer interface {
	Summarize(ctx context.Context, text string, opts summarize.Options) (*summarize.Result, error)
	TemplateKeys() []string
}

// Dependencies are the optional collaborators of the server. A nil Store
// falls back to an in-memory store; a nil Auditor or Summarizer disables
// that feature.
type Dependencies struct {
	Store      cache.SessionStore
	Auditor    Auditor
	Summarizer Summarizer
}

// Server is the HTTP review API
type Server struct {
	config   atomic.Pointer[config.Config]
	detector atomic.Pointer[privacy.Detector]
	logger   *logger.Logger

	store      cache.SessionStore
	auditor    Auditor
	summarizer Summarizer

	router  *mux.Router
	server  *http.Server
	wsHub   *websocket.Hub
	limiter *security.RateLimiter
	locks   *sessionLocks

	startTime       time.Time
	totalRedactions atomic.Int64
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Dependencies) (*Server, error) {
	if log == nil {
		log = logger.Nop()
	}

	detector, err := privacy.New(cfg.Privacy, log.WithComponent("privacy"))
	if err != nil {
		return nil, fmt.Errorf("failed to create privacy detector: %w", err)
	}

	store := deps.Store
	if store == nil {
		store = cache.NewMemoryStore(cfg.Review.SessionTTL)
	}

	s := &Server{
		logger:     log.WithComponent("server"),
		store:      store,
		auditor:    deps.Auditor,
		summarizer: deps.Summarizer,
		router:     mux.NewRouter(),
		wsHub:      websocket.NewHub(cfg.WebSocket, log),
		limiter:    security.NewRateLimiter(cfg.Security),
		locks:      newSessionLocks(),
		startTime:  time.Now(),
	}
	s.config.Store(cfg)
	s.detector.Store(detector)

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
	s.router.Use(s.requestIDMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if ws := s.config.Load().WebSocket; ws.Enabled {
		s.router.HandleFunc(ws.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
		s.router.HandleFunc("/dashboard", web.Dashboard(ws.Path)).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.maxBodyMiddleware)

	api.HandleFunc("/redact", s.handleRedact).Methods(http.MethodPost)
	api.HandleFunc("/reviews", s.handleCreateReview).Methods(http.MethodPost)

	api.HandleFunc("/reviews/{id}", s.handleGetReview).Methods(http.MethodGet)
	api.HandleFunc("/reviews/{id}/search", s.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/reviews/{id}/navigate", s.handleNavigate).Methods(http.MethodPost)
	api.HandleFunc("/reviews/{id}/delete", s.handleDelete).Methods(http.MethodPost)
	api.HandleFunc("/reviews/{id}/text", s.handleReplaceText).Methods(http.MethodPut)
	api.HandleFunc("/reviews/{id}/confirm", s.handleConfirm).Methods(http.MethodPost)
	api.HandleFunc("/reviews/{id}/summarize", s.handleSummarize).Methods(http.MethodPost)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub for broadcasting events
func (s *Server) Hub() *websocket.Hub {
	return s.wsHub
}

// Start runs background workers and serves until Stop is called
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Load()
	s.logger.Info("Starting doc-sentinel server",
		zap.Int("port", cfg.Server.Port),
		zap.Strings("detectors", s.detector.Load().EnabledCategories()),
		zap.Bool("interactive", cfg.Review.Interactive),
		zap.Bool("websocket", cfg.WebSocket.Enabled),
	)

	go s.wsHub.Run(ctx)
	s.limiter.StartCleanup(ctx)
	go s.broadcastStatus(ctx)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping doc-sentinel server")
	return s.server.Shutdown(ctx)
}

// Reload swaps in a new configuration. Only the redaction settings and
// review defaults take effect without a restart.
func (s *Server) Reload(cfg *config.Config) error {
	detector, err := privacy.New(cfg.Privacy, s.logger.WithComponent("privacy"))
	if err != nil {
		return fmt.Errorf("failed to rebuild privacy detector: %w", err)
	}

	s.detector.Store(detector)
	s.config.Store(cfg)

	s.logger.Info("Configuration reloaded",
		zap.Strings("detectors", detector.EnabledCategories()),
		zap.Bool("strict_names", cfg.Privacy.StrictNames),
		zap.Bool("interactive", cfg.Review.Interactive),
	)
	return nil
}

func (s *Server) broadcastStatus(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.wsHub.BroadcastEvent(websocket.Event{
				Type: websocket.EventTypeSystemStatus,
				Data: s.systemStatus(ctx),
			})
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) systemStatus(ctx context.Context) websocket.SystemStatusEvent {
	status := websocket.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           time.Since(s.startTime).Round(time.Second).String(),
		TotalRedactions:  s.totalRedactions.Load(),
		ConnectedClients: s.wsHub.ClientCount(),
	}
	if stats, err := s.store.Stats(ctx); err == nil {
		status.ActiveSessions = stats.Sessions
	} else {
		status.Status = "degraded"
	}
	if g, ok := s.summarizer.(interface{ State() string }); ok {
		status.Summarizer = g.State()
	}
	return status
}

// sessionLocks serializes calls on one review session
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*refLock)}
}

// lock acquires the session's lock and returns its release func
func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	rl, ok := l.locks[id]
	if !ok {
		rl = &refLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

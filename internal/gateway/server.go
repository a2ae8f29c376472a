// Package gateway exposes the privacy pipeline over HTTP: role-gated document
// queries, audit inspection for auditors, and a monitoring WebSocket.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/access"
	"github.com/caresight/docguard/internal/audit"
	"github.com/caresight/docguard/internal/config"
	"github.com/caresight/docguard/internal/logger"
	"github.com/caresight/docguard/internal/pii"
	"github.com/caresight/docguard/internal/retrieval"
	"github.com/caresight/docguard/internal/websocket"
)

// RetrieverFactory builds a retriever restricted to the given scope. The
// gateway calls it per request so every search is scope-filtered at source.
type RetrieverFactory func(scope access.DataScope) retrieval.Retriever

// Dependencies carries the collaborators the server routes requests through.
type Dependencies struct {
	Table     *access.Table
	Detector  pii.Detector
	Auditor   audit.Store
	Retriever RetrieverFactory
	Reranker  *retrieval.CrossEncoderReranker
	Cache     *retrieval.ResultCache
	Hub       *websocket.Hub
}

// Server is the main gateway server.
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	table    *access.Table
	detector pii.Detector
	auditor  audit.Store
	retrieve RetrieverFactory
	reranker *retrieval.CrossEncoderReranker
	cache    *retrieval.ResultCache
	hub      *websocket.Hub
	salt     []byte
	router   *mux.Router
	server   *http.Server
	limiter  *rateLimiter
	started  time.Time
	done     chan struct{}
}

// New creates a gateway server instance.
func New(cfg *config.Config, log *logger.Logger, deps Dependencies) (*Server, error) {
	if deps.Table == nil {
		return nil, fmt.Errorf("access table is required")
	}
	if deps.Detector == nil {
		return nil, fmt.Errorf("PII detector is required")
	}
	if deps.Auditor == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("retriever factory is required")
	}
	// An empty salt would degrade actor and query hashes to unkeyed digests.
	if cfg.Audit.Salt == "" {
		return nil, fmt.Errorf("audit salt is required")
	}

	limiter := newRateLimiter(cfg.Server.RequestsPerMin)
	limiter.startCleanupRoutine()

	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("gateway"),
		table:    deps.Table,
		detector: deps.Detector,
		auditor:  deps.Auditor,
		retrieve: deps.Retriever,
		reranker: deps.Reranker,
		cache:    deps.Cache,
		hub:      deps.Hub,
		salt:     []byte(cfg.Audit.Salt),
		router:   mux.NewRouter(),
		limiter:  limiter,
		done:     make(chan struct{}),
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

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.hub != nil {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.hub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/query", s.handleQuery).Methods("POST")
	api.HandleFunc("/audit", s.handleAudit).Methods("GET")
}

// Start starts the HTTP server and the monitoring hub.
func (s *Server) Start() error {
	s.logger.Info("Starting gateway server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("privacy_enabled", s.config.Privacy.Enabled),
		zap.String("audit_backend", s.config.Audit.Backend),
	)

	s.started = time.Now()
	if s.hub != nil {
		go s.hub.Run()
		go s.broadcastStatus()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping gateway server")
	close(s.done)
	return s.server.Shutdown(ctx)
}

// broadcastStatus reports hub and server health to monitoring clients.
func (s *Server) broadcastStatus() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			stats := s.hub.GetStats()
			s.hub.BroadcastEvent(websocket.Event{
				Type:      websocket.EventTypeSystemStatus,
				Timestamp: time.Now(),
				Data: websocket.SystemStatusEvent{
					Status:           "healthy",
					Uptime:           time.Since(s.started).String(),
					TotalRequests:    stats.TotalMessages,
					ConnectedClients: int(stats.ActiveConnections),
				},
			})
		}
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/access"
	"github.com/caresight/docguard/internal/audit"
	"github.com/caresight/docguard/internal/config"
	"github.com/caresight/docguard/internal/embeddings"
	"github.com/caresight/docguard/internal/gateway"
	"github.com/caresight/docguard/internal/logger"
	"github.com/caresight/docguard/internal/pii"
	"github.com/caresight/docguard/internal/retrieval"
	"github.com/caresight/docguard/internal/websocket"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("DocGuard %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting DocGuard",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	deps, cleanup, err := buildDependencies(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer cleanup()

	server, err := gateway.New(cfg, log, deps)
	if err != nil {
		log.Fatal("Failed to create gateway server", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// buildDependencies wires the privacy pipeline, audit store, and retrieval
// stack from configuration. The returned cleanup closes every open resource.
func buildDependencies(cfg *config.Config, log *logger.Logger) (gateway.Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	detector, err := buildDetector(cfg, log)
	if err != nil {
		return gateway.Dependencies{}, func() {}, fmt.Errorf("failed to create PII detector: %w", err)
	}

	auditStore, err := audit.NewStore(cfg.Audit, log.WithComponent("audit"))
	if err != nil {
		return gateway.Dependencies{}, func() {}, fmt.Errorf("failed to create audit store: %w", err)
	}
	closers = append(closers, func() { auditStore.Close() })

	embedder, err := embeddings.NewFactory(log.WithComponent("embeddings")).CreateService(cfg.Embeddings.Service)
	if err != nil {
		cleanup()
		return gateway.Dependencies{}, func() {}, fmt.Errorf("failed to create embedding service: %w", err)
	}
	closers = append(closers, func() { embedder.Close() })

	store, err := retrieval.NewVectorStore(&cfg.Retrieval.Store, log.WithComponent("vector"))
	if err != nil {
		cleanup()
		return gateway.Dependencies{}, func() {}, fmt.Errorf("failed to connect vector store: %w", err)
	}
	closers = append(closers, func() { store.Close() })

	sparse := retrieval.NewSparseRetriever()
	if err := bootstrapSparseIndex(store, sparse, log); err != nil {
		log.Warn("Sparse index bootstrap failed, keyword search degraded", zap.Error(err))
	}

	factory := func(scope access.DataScope) retrieval.Retriever {
		dense := retrieval.NewDenseRetriever(store, embedder, scope.Collections)
		return retrieval.NewHybridRetriever(dense, sparse,
			cfg.Retrieval.SubTimeout, cfg.Retrieval.RRFK,
			log.WithComponent("retrieval"))
	}

	var reranker *retrieval.CrossEncoderReranker
	if cfg.Retrieval.Rerank.Enabled {
		scorer := retrieval.NewModelScorer(cfg.Retrieval.Scorer, log.WithComponent("rerank"))
		reranker = retrieval.NewCrossEncoderReranker(scorer, cfg.Retrieval.Rerank.Timeout, log.WithComponent("rerank"))
	}

	var cache *retrieval.ResultCache
	if cfg.Retrieval.Cache.Enabled {
		cache, err = retrieval.NewResultCache(cfg.Retrieval.Cache, log.WithComponent("cache"))
		if err != nil {
			log.Warn("Result cache unavailable, continuing without it", zap.Error(err))
			cache = nil
		} else {
			closers = append(closers, func() { cache.Close() })
		}
	}

	var hub *websocket.Hub
	if cfg.WebSocket.Hub.Enabled {
		hub = websocket.NewHub(&cfg.WebSocket.Hub, log.WithComponent("websocket"))
	}

	return gateway.Dependencies{
		Table:     access.NewTable(),
		Detector:  detector,
		Auditor:   auditStore,
		Retriever: factory,
		Reranker:  reranker,
		Cache:     cache,
		Hub:       hub,
	}, cleanup, nil
}

// buildDetector assembles the screening chain: the model detector leads when
// enabled, with the pattern rules as a deterministic fallback.
func buildDetector(cfg *config.Config, log *logger.Logger) (pii.Detector, error) {
	pattern, err := pii.NewPatternDetector(cfg.Privacy.Detectors, log.WithComponent("privacy"))
	if err != nil {
		return nil, err
	}
	if !cfg.Privacy.ModelFallback {
		return pattern, nil
	}
	model := pii.NewModelDetector(cfg.Privacy.Model, log.WithComponent("privacy"))
	return pii.NewFallbackChain(model, pattern, log.WithComponent("privacy")), nil
}

// bootstrapSparseIndex loads the chunk corpus into the in-memory keyword
// index at startup.
func bootstrapSparseIndex(store *retrieval.VectorStore, sparse *retrieval.SparseRetriever, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	chunks, err := store.AllChunks(ctx, nil)
	if err != nil {
		return err
	}
	sparse.Index(chunks)
	log.Info("Sparse index built", zap.Int("chunks", len(chunks)))
	return nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		}
	}
	return logger.New(loggerConfig)
}

// performHealthCheck probes the running server's health endpoint.
func performHealthCheck() {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}

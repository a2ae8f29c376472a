package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/config"
	"github.com/caresight/docguard/internal/embeddings"
	"github.com/caresight/docguard/internal/ingest"
	"github.com/caresight/docguard/internal/logger"
	"github.com/caresight/docguard/internal/retrieval"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		inputFile  = flag.String("input", "", "Input chunk file (CSV, Parquet, or JSON lines)")
		batchSize  = flag.Int("batch-size", 0, "Batch size override (0 uses config)")
		skipIndex  = flag.Bool("skip-index", false, "Skip creating the vector index")
		showStats  = flag.Bool("stats", false, "Show chunk store statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input chunks.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input chunks.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting DocGuard ingest",
		zap.String("input", *inputFile))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling ingest")
		cancel()
	}()

	store, err := retrieval.NewVectorStore(&cfg.Retrieval.Store, log.WithComponent("vector"))
	if err != nil {
		log.Fatal("Failed to connect vector store", zap.Error(err))
	}
	defer store.Close()

	if *showStats {
		count, err := store.Count(ctx)
		if err != nil {
			log.Fatal("Failed to count chunks", zap.Error(err))
		}
		fmt.Printf("Stored chunks: %d\n", count)
		return
	}

	embedder, err := embeddings.NewFactory(log.WithComponent("embeddings")).CreateService(cfg.Embeddings.Service)
	if err != nil {
		log.Fatal("Failed to create embedding service", zap.Error(err))
	}
	defer embedder.Close()

	ingestConfig := cfg.Ingest
	if *batchSize > 0 {
		ingestConfig.BatchSize = *batchSize
	}
	if *skipIndex {
		ingestConfig.CreateIndex = false
	}

	pipeline := ingest.NewPipeline(store, embedder, &ingestConfig, log.WithComponent("ingest"))

	result, err := pipeline.ProcessFile(ctx, *inputFile)
	if err != nil {
		log.Fatal("Ingest failed", zap.Error(err))
	}

	log.Info("Ingest completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Duration("duration", result.Duration),
		zap.Duration("embedding_time", result.EmbeddingTime),
		zap.Duration("database_time", result.DatabaseTime))
}

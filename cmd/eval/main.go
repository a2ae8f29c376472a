package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/config"
	"github.com/caresight/docguard/internal/embeddings"
	"github.com/caresight/docguard/internal/eval"
	"github.com/caresight/docguard/internal/logger"
	"github.com/caresight/docguard/internal/retrieval"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		datasetPath = flag.String("dataset", "", "Evaluation dataset (JSON)")
		topK        = flag.Int("top-k", 0, "Retrieval depth override (0 uses config)")
		outputPath  = flag.String("output", "", "Write the report to a file instead of stdout")
		format      = flag.String("format", "", "Report format: json or markdown (default from config)")
		strategies  = flag.String("strategies", "dense,sparse,hybrid", "Comma-separated strategies to evaluate")
	)
	flag.Parse()

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

	dataset := cfg.Eval.DatasetPath
	if *datasetPath != "" {
		dataset = *datasetPath
	}
	if dataset == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s --dataset eval.json [options]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	depth := cfg.Eval.TopK
	if *topK > 0 {
		depth = *topK
	}
	reportFormat := cfg.Eval.Format
	if *format != "" {
		reportFormat = *format
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling evaluation")
		cancel()
	}()

	data, err := eval.LoadDataset(dataset, log.WithComponent("eval"))
	if err != nil {
		log.Fatal("Failed to load dataset", zap.Error(err))
	}

	configs, cleanup, err := buildStrategies(ctx, cfg, *strategies, log)
	if err != nil {
		log.Fatal("Failed to build retrieval strategies", zap.Error(err))
	}
	defer cleanup()

	runner := eval.NewRunner(data, depth, log.WithComponent("eval"))
	report, err := runner.Run(ctx, configs)
	if err != nil {
		log.Fatal("Evaluation failed", zap.Error(err))
	}

	var rendered []byte
	if reportFormat == "json" {
		rendered, err = report.JSON()
		if err != nil {
			log.Fatal("Failed to render report", zap.Error(err))
		}
	} else {
		rendered = []byte(report.Markdown())
	}

	output := cfg.Eval.OutputPath
	if *outputPath != "" {
		output = *outputPath
	}
	if output != "" {
		if err := os.WriteFile(output, rendered, 0644); err != nil {
			log.Fatal("Failed to write report", zap.Error(err))
		}
		log.Info("Report written", zap.String("path", output))
	} else {
		fmt.Println(string(rendered))
	}
}

// buildStrategies wires the requested retrieval strategies against the live
// chunk store. The sparse and hybrid strategies share one in-memory index.
func buildStrategies(ctx context.Context, cfg *config.Config, names string, log *logger.Logger) (map[string]eval.RetrieveFunc, func(), error) {
	store, err := retrieval.NewVectorStore(&cfg.Retrieval.Store, log.WithComponent("vector"))
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to connect vector store: %w", err)
	}

	embedder, err := embeddings.NewFactory(log.WithComponent("embeddings")).CreateService(cfg.Embeddings.Service)
	if err != nil {
		store.Close()
		return nil, func() {}, fmt.Errorf("failed to create embedding service: %w", err)
	}

	cleanup := func() {
		embedder.Close()
		store.Close()
	}

	chunks, err := store.AllChunks(ctx, nil)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("failed to load chunks: %w", err)
	}
	sparse := retrieval.NewSparseRetriever()
	sparse.Index(chunks)

	dense := retrieval.NewDenseRetriever(store, embedder, nil)
	hybrid := retrieval.NewHybridRetriever(dense, sparse,
		cfg.Retrieval.SubTimeout, cfg.Retrieval.RRFK, log.WithComponent("retrieval"))

	available := map[string]retrieval.Retriever{
		"dense":  dense,
		"sparse": sparse,
		"hybrid": hybrid,
	}

	configs := make(map[string]eval.RetrieveFunc)
	for _, name := range splitStrategies(names) {
		retriever, ok := available[name]
		if !ok {
			cleanup()
			return nil, func() {}, fmt.Errorf("unknown strategy: %s", name)
		}
		configs[name] = asRetrieveFunc(retriever)
	}
	return configs, cleanup, nil
}

func asRetrieveFunc(r retrieval.Retriever) eval.RetrieveFunc {
	return func(ctx context.Context, question string, topK int) ([]string, error) {
		chunks, err := r.Retrieve(ctx, question, topK)
		if err != nil {
			return nil, err
		}
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		return texts, nil
	}
}

func splitStrategies(names string) []string {
	var out []string
	for _, s := range strings.Split(names, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

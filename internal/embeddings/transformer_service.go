package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

// TransformerService generates semantic embeddings through a transformer
// backend, with optional Redis caching keyed by text hash. It requires a
// backend from a build-tagged implementation; without one, construction
// fails and the factory falls back to the hash service.
type TransformerService struct {
	config      ModelConfig
	logger      *logger.Logger
	backend     TransformerBackend
	tokenizer   *Tokenizer
	redisClient *redis.Client
	stats       *ModelStats
	cacheHits   int64
	cacheLookup int64
	mu          sync.RWMutex
	startTime   time.Time
}

// NewTransformerService creates a transformer-backed embedding service.
func NewTransformerService(config ModelConfig, log *logger.Logger, redisClient *redis.Client) (*TransformerService, error) {
	start := time.Now()

	backend := NewTransformerBackend(log, config.ModelPath, config.MaxLength)
	if backend == nil || !backend.IsReady() {
		return nil, fmt.Errorf("%w: no transformer backend available (build with -tags onnx)", ErrModelNotLoaded)
	}

	service := &TransformerService{
		config:      config,
		logger:      log,
		backend:     backend,
		tokenizer:   NewTokenizer(config.MaxLength),
		redisClient: redisClient,
		startTime:   start,
		stats: &ModelStats{
			ServiceType:   "transformer",
			StartTime:     start,
			ModelLoadTime: time.Since(start),
		},
	}

	log.Info("Transformer embedding service initialized",
		zap.String("model", config.ModelName),
		zap.String("model_path", config.ModelPath),
		zap.Int("max_length", config.MaxLength),
		zap.Bool("redis_cache", redisClient != nil),
		zap.Duration("load_time", service.stats.ModelLoadTime))

	return service, nil
}

// GenerateEmbedding embeds one text, consulting the cache first.
func (s *TransformerService) GenerateEmbedding(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
	}

	start := time.Now()

	if cached := s.cacheGet(ctx, text); cached != nil {
		s.updateStats(1, len(strings.Fields(text)), time.Since(start), true)
		return &Result{
			Embedding:   cached,
			Duration:    time.Since(start),
			TokenCount:  len(strings.Fields(text)),
			ServiceType: "transformer",
			CacheHit:    true,
		}, nil
	}

	tokens := s.tokenizer.Tokenize(text)

	inferCtx := ctx
	if s.config.ModelTimeout > 0 {
		var cancel context.CancelFunc
		inferCtx, cancel = context.WithTimeout(ctx, s.config.ModelTimeout)
		defer cancel()
	}

	vectors, err := s.backend.EmbedBatch(inferCtx, []*TokenizedInput{tokens})
	if err != nil {
		s.updateStats(1, tokens.Length, time.Since(start), false)
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
	if len(vectors) != 1 {
		s.updateStats(1, tokens.Length, time.Since(start), false)
		return nil, fmt.Errorf("%w: backend returned %d vectors for 1 input", ErrInferenceFailed, len(vectors))
	}

	embedding := NormalizeEmbedding(vectors[0])
	s.cachePut(ctx, text, embedding)

	duration := time.Since(start)
	s.updateStats(1, tokens.Length, duration, true)

	return &Result{
		Embedding:   embedding,
		Duration:    duration,
		TokenCount:  tokens.Length,
		ServiceType: "transformer",
	}, nil
}

// GenerateBatchEmbeddings embeds texts in backend-sized batches.
func (s *TransformerService) GenerateBatchEmbeddings(ctx context.Context, texts []string) (*BatchResult, error) {
	if len(texts) == 0 {
		return &BatchResult{ServiceType: "transformer"}, nil
	}

	start := time.Now()
	result := &BatchResult{
		Embeddings:  make([][]float32, len(texts)),
		ServiceType: "transformer",
	}

	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	// Collect uncached, non-empty texts into inference batches.
	var pendingIdx []int
	var pendingTokens []*TokenizedInput
	flush := func() error {
		if len(pendingIdx) == 0 {
			return nil
		}
		vectors, err := s.backend.EmbedBatch(ctx, pendingTokens)
		if err != nil {
			return err
		}
		for i, idx := range pendingIdx {
			embedding := NormalizeEmbedding(vectors[i])
			result.Embeddings[idx] = embedding
			s.cachePut(ctx, texts[idx], embedding)
			result.Successful++
		}
		pendingIdx = pendingIdx[:0]
		pendingTokens = pendingTokens[:0]
		return nil
	}

	for i, text := range texts {
		select {
		case <-ctx.Done():
			result.Errors = append(result.Errors, fmt.Errorf("batch cancelled at item %d", i))
			result.Failed++
			continue
		default:
		}

		if strings.TrimSpace(text) == "" {
			result.Errors = append(result.Errors, fmt.Errorf("empty text at index %d", i))
			result.Failed++
			continue
		}

		if cached := s.cacheGet(ctx, text); cached != nil {
			result.Embeddings[i] = cached
			result.Successful++
			result.CacheHits++
			continue
		}

		tokens := s.tokenizer.Tokenize(text)
		result.TotalTokens += tokens.Length
		pendingIdx = append(pendingIdx, i)
		pendingTokens = append(pendingTokens, tokens)

		if len(pendingIdx) >= batchSize {
			if err := flush(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
			}
		}
	}
	if err := flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}

	result.Duration = time.Since(start)
	s.updateStats(int64(result.Successful), result.TotalTokens, result.Duration, result.Successful > 0)
	return result, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "docguard:emb:" + hex.EncodeToString(sum[:])
}

func (s *TransformerService) cacheGet(ctx context.Context, text string) []float32 {
	if s.redisClient == nil {
		return nil
	}

	s.mu.Lock()
	s.cacheLookup++
	s.mu.Unlock()

	data, err := s.redisClient.Get(ctx, cacheKey(text)).Bytes()
	if err != nil {
		return nil
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil || len(embedding) != EmbeddingDimensions {
		s.redisClient.Del(ctx, cacheKey(text))
		return nil
	}

	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
	return embedding
}

func (s *TransformerService) cachePut(ctx context.Context, text string, embedding []float32) {
	if s.redisClient == nil {
		return
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	ttl := s.config.CacheTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	if err := s.redisClient.Set(ctx, cacheKey(text), data, ttl).Err(); err != nil {
		s.logger.Debug("Embedding cache write failed", zap.Error(err))
	}
}

// GetStats returns a copy of the service statistics.
func (s *TransformerService) GetStats() *ModelStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := *s.stats
	if s.cacheLookup > 0 {
		stats.CacheHitRatio = float64(s.cacheHits) / float64(s.cacheLookup)
	}
	return &stats
}

func (s *TransformerService) updateStats(inferences int64, tokens int, duration time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalInferences += inferences
	s.stats.TotalTokens += int64(tokens)

	if success {
		s.stats.SuccessfulRuns += inferences
	} else {
		s.stats.FailedRuns += inferences
	}

	total := s.stats.SuccessfulRuns + s.stats.FailedRuns
	if total > 0 {
		s.stats.ErrorRate = float64(s.stats.FailedRuns) / float64(total)
	}

	if s.stats.SuccessfulRuns > 0 {
		totalDuration := time.Duration(s.stats.SuccessfulRuns) * s.stats.AvgInferenceTime
		s.stats.AvgInferenceTime = (totalDuration + duration) / time.Duration(s.stats.SuccessfulRuns)
	} else {
		s.stats.AvgInferenceTime = duration
	}
}

// Close releases backend resources.
func (s *TransformerService) Close() error {
	return s.backend.Close()
}

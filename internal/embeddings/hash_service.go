package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

// HashService produces deterministic embeddings from text hashes plus
// surface-level text features. It is not semantically meaningful, but it is
// fast, dependency-free, and stable, which makes it the default for tests
// and for deployments without a model file.
type HashService struct {
	config    ModelConfig
	logger    *logger.Logger
	stats     *ModelStats
	mu        sync.RWMutex
	startTime time.Time
}

// NewHashService creates a hash-based embedding service.
func NewHashService(config ModelConfig, log *logger.Logger) *HashService {
	start := time.Now()
	service := &HashService{
		config:    config,
		logger:    log,
		startTime: start,
		stats: &ModelStats{
			ServiceType:   "hash",
			StartTime:     start,
			ModelLoadTime: time.Since(start),
		},
	}

	log.Info("Hash embedding service initialized",
		zap.Int("embedding_dimensions", EmbeddingDimensions))

	return service
}

// GenerateEmbedding generates a deterministic embedding for text.
func (s *HashService) GenerateEmbedding(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: context cancelled", ErrTimeoutError)
	default:
	}

	start := time.Now()
	embedding := s.deterministicEmbedding(text)
	duration := time.Since(start)
	tokenCount := len(strings.Fields(text))

	s.updateStats(1, tokenCount, duration, true)

	return &Result{
		Embedding:   embedding,
		Duration:    duration,
		TokenCount:  tokenCount,
		ServiceType: "hash",
	}, nil
}

// GenerateBatchEmbeddings generates embeddings for multiple texts. Empty
// texts get a nil embedding and a recorded error rather than failing the
// whole batch.
func (s *HashService) GenerateBatchEmbeddings(ctx context.Context, texts []string) (*BatchResult, error) {
	if len(texts) == 0 {
		return &BatchResult{ServiceType: "hash"}, nil
	}

	start := time.Now()
	embeddings := make([][]float32, 0, len(texts))
	totalTokens := 0
	successful := 0
	failed := 0
	var errs []error

	for i, text := range texts {
		select {
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("batch cancelled at item %d", i))
			failed++
			embeddings = append(embeddings, nil)
			continue
		default:
		}

		if strings.TrimSpace(text) == "" {
			errs = append(errs, fmt.Errorf("empty text at index %d", i))
			failed++
			embeddings = append(embeddings, nil)
			continue
		}

		embeddings = append(embeddings, s.deterministicEmbedding(text))
		totalTokens += len(strings.Fields(text))
		successful++
	}

	duration := time.Since(start)
	s.updateStats(int64(successful), totalTokens, duration, successful > 0)

	return &BatchResult{
		Embeddings:  embeddings,
		Duration:    duration,
		TotalTokens: totalTokens,
		Successful:  successful,
		Failed:      failed,
		Errors:      errs,
		ServiceType: "hash",
	}, nil
}

// deterministicEmbedding builds the vector: 320 dimensions seeded from the
// text hash, 64 dimensions of surface features, then unit normalization.
func (s *HashService) deterministicEmbedding(text string) []float32 {
	hash := sha256.Sum256([]byte(strings.ToLower(text)))
	embedding := make([]float32, EmbeddingDimensions)

	s.hashBasedFeatures(hash, embedding[:320])
	s.textFeatures(text, embedding[320:])

	return NormalizeEmbedding(embedding)
}

func (s *HashService) hashBasedFeatures(hash [32]byte, target []float32) {
	seeds := []int64{
		int64(binary.BigEndian.Uint64(hash[0:8])),
		int64(binary.BigEndian.Uint64(hash[8:16])),
		int64(binary.BigEndian.Uint64(hash[16:24])),
		int64(binary.BigEndian.Uint64(hash[24:32])),
	}

	segmentSize := len(target) / len(seeds)
	for i, seed := range seeds {
		rng := rand.New(rand.NewSource(seed))
		start := i * segmentSize
		end := start + segmentSize
		if i == len(seeds)-1 {
			end = len(target)
		}
		for j := start; j < end; j++ {
			target[j] = float32(rng.NormFloat64())
		}
	}
}

func (s *HashService) textFeatures(text string, target []float32) {
	words := strings.Fields(text)
	wordCount := len(words)

	var digits, punct, upper int
	for _, r := range text {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsPunct(r):
			punct++
		case unicode.IsUpper(r):
			upper++
		}
	}

	unique := make(map[string]bool, wordCount)
	var totalWordLen int
	for _, w := range words {
		unique[strings.ToLower(w)] = true
		totalWordLen += len(w)
	}

	runeCount := len([]rune(text))
	target[0] = float32(math.Min(float64(runeCount)/1000.0, 1.0))
	target[1] = float32(math.Min(float64(wordCount)/100.0, 1.0))
	if wordCount > 0 {
		target[2] = float32(math.Min(float64(totalWordLen)/float64(wordCount)/20.0, 1.0))
		target[3] = float32(len(unique)) / float32(wordCount)
	}
	if runeCount > 0 {
		target[4] = float32(digits) / float32(runeCount)
		target[5] = float32(punct) / float32(runeCount)
		target[6] = float32(upper) / float32(runeCount)
	}
	target[7] = float32(math.Min(float64(strings.Count(text, "?"))/5.0, 1.0))
	target[8] = float32(math.Min(float64(strings.Count(text, "."))/20.0, 1.0))

	// Derived dimensions keep the feature block dense.
	for i := 9; i < len(target); i++ {
		combined := (target[i%9] + target[(i+1)%9]) / 2.0
		target[i] = float32(math.Sin(float64(combined) * math.Pi))
	}
}

// GetStats returns a copy of the service statistics.
func (s *HashService) GetStats() *ModelStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := *s.stats
	return &stats
}

func (s *HashService) updateStats(inferences int64, tokens int, duration time.Duration, success bool) {
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

// Close releases resources. The hash service holds none.
func (s *HashService) Close() error {
	return nil
}

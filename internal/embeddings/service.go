package embeddings

import (
	"context"
	"math"
)

// EmbeddingDimensions defines the standard embedding size. All services and
// the pgvector schema agree on this value.
const EmbeddingDimensions = 384

// Service generates dense vector representations of text.
type Service interface {
	GenerateEmbedding(ctx context.Context, text string) (*Result, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) (*BatchResult, error)
	GetStats() *ModelStats
	Close() error
}

// NormalizeEmbedding scales a vector to unit length. A zero vector is
// returned unchanged.
func NormalizeEmbedding(embedding []float32) []float32 {
	var sum float64
	for _, v := range embedding {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return embedding
	}
	norm := float32(math.Sqrt(sum))
	for i := range embedding {
		embedding[i] /= norm
	}
	return embedding
}

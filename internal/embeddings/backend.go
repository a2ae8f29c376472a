package embeddings

import (
	"context"
)

// TokenizedInput is tokenized text ready for model inference.
type TokenizedInput struct {
	InputIDs      []int32
	AttentionMask []int32
	TokenTypeIDs  []int32
	Length        int
	Truncated     bool
}

// TransformerBackend is a pluggable engine for transformer inference.
// Implementations live in build-tagged files; the default build has none
// and the transformer service refuses to start without one.
type TransformerBackend interface {
	// EmbedBatch runs one inference for a batch of tokenized inputs and
	// returns one embedding per input with length == EmbeddingDimensions.
	EmbedBatch(ctx context.Context, tokensBatch []*TokenizedInput) ([][]float32, error)
	IsReady() bool
	Close() error
}

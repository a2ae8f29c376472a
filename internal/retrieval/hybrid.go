package retrieval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

// HybridRetriever fuses dense and sparse results. Each sub-retriever runs
// with its own deadline and asks for 2*topK candidates so the fused list
// has enough depth; a sub-retriever that fails or times out contributes an
// empty list instead of failing the whole query.
type HybridRetriever struct {
	dense      Retriever
	sparse     Retriever
	subTimeout time.Duration
	rrfK       int
	logger     *logger.Logger
}

// NewHybridRetriever creates a hybrid retriever over the two sub-retrievers.
func NewHybridRetriever(dense, sparse Retriever, subTimeout time.Duration, rrfK int, log *logger.Logger) *HybridRetriever {
	if subTimeout <= 0 {
		subTimeout = 2 * time.Second
	}
	return &HybridRetriever{
		dense:      dense,
		sparse:     sparse,
		subTimeout: subTimeout,
		rrfK:       rrfK,
		logger:     log,
	}
}

// Retrieve runs both sub-retrievers concurrently, merges with RRF, and
// truncates to topK.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error) {
	if topK <= 0 {
		return []Chunk{}, nil
	}

	type subResult struct {
		chunks []Chunk
		err    error
		name   string
	}

	run := func(ret Retriever, out chan<- subResult) {
		subCtx, cancel := context.WithTimeout(ctx, r.subTimeout)
		defer cancel()
		chunks, err := ret.Retrieve(subCtx, query, 2*topK)
		out <- subResult{chunks: chunks, err: err, name: ret.Name()}
	}

	denseCh := make(chan subResult, 1)
	sparseCh := make(chan subResult, 1)
	go run(r.dense, denseCh)
	go run(r.sparse, sparseCh)

	collect := func(res subResult) []Chunk {
		if res.err != nil {
			r.logger.Warn("Sub-retriever failed, continuing with partial results",
				zap.String("retriever", res.name),
				zap.Error(res.err))
			return nil
		}
		return res.chunks
	}

	denseChunks := collect(<-denseCh)
	sparseChunks := collect(<-sparseCh)

	merged := ReciprocalRankFusion([][]Chunk{denseChunks, sparseChunks}, r.rrfK)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// Name identifies the retriever in logs and fusion diagnostics.
func (r *HybridRetriever) Name() string {
	return "hybrid"
}

package retrieval

import (
	"context"
	"fmt"

	"github.com/caresight/docguard/internal/embeddings"
)

// DenseRetriever performs semantic search: it embeds the query and runs a
// pgvector cosine search, optionally restricted to a set of collections.
type DenseRetriever struct {
	store       *VectorStore
	embedder    embeddings.Service
	collections []string
}

// NewDenseRetriever creates a dense retriever over the vector store.
func NewDenseRetriever(store *VectorStore, embedder embeddings.Service, collections []string) *DenseRetriever {
	return &DenseRetriever{
		store:       store,
		embedder:    embedder,
		collections: collections,
	}
}

// Retrieve embeds the query and returns the topK nearest chunks.
func (r *DenseRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error) {
	if topK <= 0 {
		return []Chunk{}, nil
	}

	result, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return r.store.Search(ctx, result.Embedding, topK, r.collections)
}

// Name identifies the retriever in logs and fusion diagnostics.
func (r *DenseRetriever) Name() string {
	return "dense"
}

package retrieval

import (
	"context"
)

// Chunk is one retrievable document fragment with its retrieval score.
// Embedding is populated only when the producing retriever had it at hand;
// MMR re-ranking fills in the rest on demand.
type Chunk struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	RecordID   string    `json:"record_id,omitempty"`
	Collection string    `json:"collection,omitempty"`
	Score      float32   `json:"score"`
	Embedding  []float32 `json:"-"`
}

// Retriever produces ranked chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error)
	Name() string
}

// chunkKey identifies a chunk across ranked lists. Chunks from different
// retrievers carry the same ID when they refer to the same stored row;
// text is the fallback identity for retrievers without stable IDs.
func chunkKey(c Chunk) string {
	if c.ID != "" {
		return c.ID
	}
	return c.Text
}

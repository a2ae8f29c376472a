package retrieval

import (
	"context"
	"fmt"
)

// EmbedFunc resolves a text to its embedding vector.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// MMRRerank applies greedy Maximal Marginal Relevance: each round picks the
// candidate maximizing lambda*relevance - (1-lambda)*max_similarity_to_selected.
// Ties keep the candidate with the better original rank. Returns at most
// topK chunks; empty candidates yield empty output.
func MMRRerank(ctx context.Context, candidates []Chunk, queryEmbedding []float32, embedFn EmbedFunc, lambda float64, topK int) ([]Chunk, error) {
	if len(candidates) == 0 || topK <= 0 {
		return []Chunk{}, nil
	}

	// Resolve embeddings up front so the greedy loop is pure.
	embeddings := make([][]float32, len(candidates))
	for i, c := range candidates {
		if len(c.Embedding) > 0 {
			embeddings[i] = c.Embedding
			continue
		}
		emb, err := embedFn(ctx, c.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed candidate %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	relevance := make([]float64, len(candidates))
	for i := range candidates {
		relevance[i] = float64(CosineSimilarity(queryEmbedding, embeddings[i]))
	}

	selected := make([]Chunk, 0, topK)
	selectedEmb := make([][]float32, 0, topK)
	remaining := make([]int, len(candidates))
	for i := range remaining {
		remaining[i] = i
	}

	for len(selected) < topK && len(remaining) > 0 {
		bestPos := 0
		bestScore := mmrScore(relevance[remaining[0]], embeddings[remaining[0]], selectedEmb, lambda)
		for pos := 1; pos < len(remaining); pos++ {
			idx := remaining[pos]
			score := mmrScore(relevance[idx], embeddings[idx], selectedEmb, lambda)
			// Strict greater-than keeps the earlier original rank on ties.
			if score > bestScore {
				bestScore = score
				bestPos = pos
			}
		}

		idx := remaining[bestPos]
		selected = append(selected, candidates[idx])
		selectedEmb = append(selectedEmb, embeddings[idx])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	return selected, nil
}

func mmrScore(relevance float64, embedding []float32, selected [][]float32, lambda float64) float64 {
	var maxSim float64
	for _, s := range selected {
		if sim := float64(CosineSimilarity(embedding, s)); sim > maxSim {
			maxSim = sim
		}
	}
	return lambda*relevance - (1-lambda)*maxSim
}

package retrieval

import (
	"sort"
)

// DefaultRRFConstant is the standard smoothing constant for reciprocal rank
// fusion.
const DefaultRRFConstant = 60

// ReciprocalRankFusion merges ranked lists: each document scores
// Σ 1/(rank+k) over the lists it appears in, so documents present in
// multiple lists accumulate higher fused scores. Ties break by first
// occurrence across the lists in order, which makes the merge
// deterministic. Empty input yields empty output.
func ReciprocalRankFusion(lists [][]Chunk, k int) []Chunk {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	type fused struct {
		chunk Chunk
		score float64
		seen  int
	}

	order := 0
	byKey := make(map[string]*fused)
	var keys []string

	for _, list := range lists {
		for rank, chunk := range list {
			key := chunkKey(chunk)
			entry, ok := byKey[key]
			if !ok {
				entry = &fused{chunk: chunk, seen: order}
				order++
				byKey[key] = entry
				keys = append(keys, key)
			}
			// rank is 0-based here; the formula uses 1-based ranks.
			entry.score += 1.0 / float64(rank+1+k)
		}
	}

	sort.SliceStable(keys, func(i, j int) bool {
		a, b := byKey[keys[i]], byKey[keys[j]]
		if a.score != b.score {
			return a.score > b.score
		}
		return a.seen < b.seen
	})

	merged := make([]Chunk, 0, len(keys))
	for _, key := range keys {
		entry := byKey[key]
		entry.chunk.Score = float32(entry.score)
		merged = append(merged, entry.chunk)
	}
	return merged
}

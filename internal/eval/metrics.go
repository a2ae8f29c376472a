package eval

import (
	"strings"
)

// minMatchLength is the minimum normalized length for containment matching.
// Shorter strings match too much text to be meaningful evidence.
const minMatchLength = 20

// normalize lowercases and collapses runs of whitespace to single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// matches reports whether two texts refer to the same content: after
// normalization the shorter must be at least minMatchLength characters and a
// substring of the longer.
func matches(a, b string) bool {
	na, nb := normalize(a), normalize(b)
	shorter, longer := na, nb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < minMatchLength {
		return false
	}
	return strings.Contains(longer, shorter)
}

// PrecisionAtK returns the fraction of the top-k retrieved chunks that match
// any ground-truth context. k <= 0 or no retrieved chunks yields 0.
func PrecisionAtK(retrieved, groundTruth []string, k int) float64 {
	if k <= 0 || len(retrieved) == 0 {
		return 0
	}
	if k > len(retrieved) {
		k = len(retrieved)
	}

	hits := 0
	for _, chunk := range retrieved[:k] {
		for _, gt := range groundTruth {
			if matches(chunk, gt) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(k)
}

// RecallAtK returns the fraction of ground-truth contexts covered by the
// top-k retrieved chunks. Empty ground truth is vacuously 1.0. A
// ground-truth context shorter than minMatchLength after normalization
// counts as covered; downstream consumers depend on this behavior, so it is
// kept even though it overstates recall for short contexts.
func RecallAtK(retrieved, groundTruth []string, k int) float64 {
	if len(groundTruth) == 0 {
		return 1.0
	}
	if k > len(retrieved) {
		k = len(retrieved)
	}
	if k < 0 {
		k = 0
	}

	covered := 0
	for _, gt := range groundTruth {
		if len(normalize(gt)) < minMatchLength {
			covered++
			continue
		}
		for _, chunk := range retrieved[:k] {
			if matches(chunk, gt) {
				covered++
				break
			}
		}
	}
	return float64(covered) / float64(len(groundTruth))
}

// MRR returns the reciprocal of the smallest 1-based rank at which any
// ground-truth context is matched, or 0 when nothing matches.
func MRR(retrieved, groundTruth []string) float64 {
	for rank, chunk := range retrieved {
		for _, gt := range groundTruth {
			if matches(chunk, gt) {
				return 1.0 / float64(rank+1)
			}
		}
	}
	return 0
}

// HitRateAtK returns 1 when any of the top-k retrieved chunks matches a
// ground-truth context, else 0. k <= 0 yields 0.
func HitRateAtK(retrieved, groundTruth []string, k int) float64 {
	if k <= 0 {
		return 0
	}
	if k > len(retrieved) {
		k = len(retrieved)
	}
	for _, chunk := range retrieved[:k] {
		for _, gt := range groundTruth {
			if matches(chunk, gt) {
				return 1
			}
		}
	}
	return 0
}

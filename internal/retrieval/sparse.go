package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// SparseRetriever is an in-memory inverted-index keyword scorer. Scoring is
// TF-IDF-weighted term overlap, deterministic for a fixed corpus. The index
// is read-only after Index returns; concurrent Retrieve calls are safe.
type SparseRetriever struct {
	mu      sync.RWMutex
	index   map[string][]posting
	docFreq map[string]int
	chunks  []Chunk
	numDocs int
}

type posting struct {
	doc  int
	freq int
}

// NewSparseRetriever creates an empty sparse retriever.
func NewSparseRetriever() *SparseRetriever {
	return &SparseRetriever{
		index:   make(map[string][]posting),
		docFreq: make(map[string]int),
	}
}

// Index replaces the corpus. Chunks keep their insertion order, which is
// the tie-break order for equal scores.
func (r *SparseRetriever) Index(chunks []Chunk) {
	index := make(map[string][]posting)
	docFreq := make(map[string]int)

	for docID, chunk := range chunks {
		counts := make(map[string]int)
		for _, term := range tokenize(chunk.Text) {
			counts[term]++
		}
		for term, freq := range counts {
			index[term] = append(index[term], posting{doc: docID, freq: freq})
			docFreq[term]++
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = index
	r.docFreq = docFreq
	r.chunks = append([]Chunk(nil), chunks...)
	r.numDocs = len(chunks)
}

// Retrieve scores every document sharing a term with the query and returns
// the topK best.
func (r *SparseRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error) {
	if topK <= 0 {
		return []Chunk{}, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.numDocs == 0 {
		return []Chunk{}, nil
	}

	scores := make(map[int]float64)
	for _, term := range tokenize(query) {
		postings, ok := r.index[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + float64(r.numDocs)/float64(r.docFreq[term]))
		for _, p := range postings {
			scores[p.doc] += float64(p.freq) * idf
		}
	}

	docs := make([]int, 0, len(scores))
	for doc := range scores {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if scores[docs[i]] != scores[docs[j]] {
			return scores[docs[i]] > scores[docs[j]]
		}
		return docs[i] < docs[j]
	})

	if len(docs) > topK {
		docs = docs[:topK]
	}

	results := make([]Chunk, 0, len(docs))
	for _, doc := range docs {
		chunk := r.chunks[doc]
		chunk.Score = float32(scores[doc])
		results = append(results, chunk)
	}
	return results, nil
}

// Name identifies the retriever in logs and fusion diagnostics.
func (r *SparseRetriever) Name() string {
	return "sparse"
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

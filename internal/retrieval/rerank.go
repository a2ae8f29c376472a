package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

// PairScorer scores a query/passage pair for relevance.
type PairScorer interface {
	ScorePair(ctx context.Context, query, passage string) (float32, error)
}

// CrossEncoderReranker re-sorts candidates by pairwise relevance to the
// query. Empty candidates short-circuit without touching the model. A
// scorer failure or timeout keeps the original order rather than failing
// the request.
type CrossEncoderReranker struct {
	scorer  PairScorer
	timeout time.Duration
	logger  *logger.Logger
}

// NewCrossEncoderReranker creates a reranker over the given scorer.
func NewCrossEncoderReranker(scorer PairScorer, timeout time.Duration, log *logger.Logger) *CrossEncoderReranker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CrossEncoderReranker{
		scorer:  scorer,
		timeout: timeout,
		logger:  log,
	}
}

// Rerank scores each candidate, sorts descending, and truncates to topK.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []Chunk, topK int) []Chunk {
	if len(candidates) == 0 || topK <= 0 {
		return []Chunk{}
	}

	scoreCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	scored := make([]Chunk, len(candidates))
	copy(scored, candidates)

	for i := range scored {
		score, err := r.scorer.ScorePair(scoreCtx, query, scored[i].Text)
		if err != nil {
			r.logger.Warn("Cross-encoder scoring failed, keeping original order",
				zap.Int("candidate", i),
				zap.Error(err))
			if len(candidates) > topK {
				return candidates[:topK]
			}
			return candidates
		}
		scored[i].Score = score
	}

	// Stable sort keeps original order on equal scores.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// ModelScorerConfig configures the HTTP relevance scorer.
type ModelScorerConfig struct {
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	Model    string        `yaml:"model" mapstructure:"model"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ModelScorer asks an Ollama-compatible model endpoint to rate relevance.
type ModelScorer struct {
	config ModelScorerConfig
	client *http.Client
	logger *logger.Logger
}

// maxScorerResponse caps how much of the model response is read.
const maxScorerResponse = 1 << 20

// NewModelScorer creates an HTTP-backed pair scorer.
func NewModelScorer(config ModelScorerConfig, log *logger.Logger) *ModelScorer {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ModelScorer{
		config: config,
		client: &http.Client{Timeout: timeout},
		logger: log,
	}
}

type scorerRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type scorerResponse struct {
	Response string `json:"response"`
}

// ScorePair asks the model for a relevance score in [0,1].
func (s *ModelScorer) ScorePair(ctx context.Context, query, passage string) (float32, error) {
	prompt := fmt.Sprintf(
		"Rate how relevant the passage is to the question on a scale from 0.0 to 1.0. "+
			"Reply with only the number.\n\nQuestion: %s\n\nPassage: %s", query, passage)

	body, err := json.Marshal(scorerRequest{
		Model:  s.config.Model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal scorer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.config.Endpoint, "/")+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build scorer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("scorer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scorer returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxScorerResponse))
	if err != nil {
		return 0, fmt.Errorf("failed to read scorer response: %w", err)
	}

	var parsed scorerResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return 0, fmt.Errorf("failed to decode scorer response: %w", err)
	}

	return parseScore(parsed.Response)
}

// parseScore extracts the first float in the model output and clamps it to
// [0,1]. Models occasionally wrap the number in prose.
func parseScore(text string) (float32, error) {
	for _, field := range strings.Fields(text) {
		field = strings.Trim(field, ".,:;")
		val, err := strconv.ParseFloat(field, 32)
		if err != nil {
			continue
		}
		if val < 0 {
			val = 0
		}
		if val > 1 {
			val = 1
		}
		return float32(val), nil
	}
	return 0, fmt.Errorf("no score found in model output %q", text)
}

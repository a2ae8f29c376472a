package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

// RetrieveFunc answers a question with ranked chunk texts. Each named
// configuration under evaluation supplies one.
type RetrieveFunc func(ctx context.Context, question string, topK int) ([]string, error)

// ConfigReport groups per-question results and their aggregates for one
// retrieval configuration.
type ConfigReport struct {
	Results    []Result   `json:"results"`
	Aggregates Aggregates `json:"aggregates"`
}

// Report maps configuration name to its evaluation outcome.
type Report map[string]ConfigReport

// Runner evaluates retrieval configurations against a dataset.
type Runner struct {
	dataset *Dataset
	topK    int
	logger  *logger.Logger
}

// NewRunner creates a runner over the dataset. topK is the retrieval depth
// requested from each configuration.
func NewRunner(dataset *Dataset, topK int, log *logger.Logger) *Runner {
	if topK <= 0 {
		topK = 5
	}
	return &Runner{dataset: dataset, topK: topK, logger: log}
}

// Run evaluates every configuration against every dataset item. A failed
// retrieval scores the question as an empty result set rather than aborting
// the run.
func (r *Runner) Run(ctx context.Context, configs map[string]RetrieveFunc) (Report, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no retrieval configurations to evaluate")
	}

	report := make(Report, len(configs))
	for name, retrieve := range configs {
		start := time.Now()
		results := make([]Result, 0, len(r.dataset.Items))

		for _, item := range r.dataset.Items {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			retrieved, err := retrieve(ctx, item.Question, r.topK)
			if err != nil {
				r.logger.Warn("Retrieval failed, scoring as empty",
					zap.String("config", name),
					zap.String("question", item.Question),
					zap.Error(err))
				retrieved = nil
			}
			results = append(results, Score(item.Question, retrieved, item.GroundTruthContexts))
		}

		agg := ComputeAggregates(results)
		report[name] = ConfigReport{Results: results, Aggregates: agg}

		r.logger.Info("Configuration evaluated",
			zap.String("config", name),
			zap.Int("queries", agg.NumQueries),
			zap.Float64("mrr", agg.MRR),
			zap.Float64("recall_at_5", agg.RecallAt5),
			zap.Duration("duration", time.Since(start)))
	}

	return report, nil
}

// JSON renders the report as indented JSON.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown renders a comparison table, one row per configuration, sorted by
// name for stable output.
func (r Report) Markdown() string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("| Strategy | MRR | Recall@5 | Hit@5 | Precision@5 |\n")
	b.WriteString("|----------|-----|----------|-------|-------------|\n")
	for _, name := range names {
		agg := r[name].Aggregates
		fmt.Fprintf(&b, "| %s | %.3f | %.3f | %.3f | %.3f |\n",
			name, agg.MRR, agg.RecallAt5, agg.HitAt5, agg.PrecisionAt5)
	}
	return b.String()
}

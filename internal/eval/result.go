package eval

// Result holds the metric scores for one evaluated question.
type Result struct {
	Question     string  `json:"question"`
	PrecisionAt5 float64 `json:"precision_at_5"`
	RecallAt5    float64 `json:"recall_at_5"`
	MRR          float64 `json:"mrr"`
	HitAt5       float64 `json:"hit_rate_at_5"`
}

// Aggregates are arithmetic means over a result set.
type Aggregates struct {
	PrecisionAt5 float64 `json:"precision_at_5"`
	RecallAt5    float64 `json:"recall_at_5"`
	MRR          float64 `json:"mrr"`
	HitAt5       float64 `json:"hit_rate_at_5"`
	NumQueries   int     `json:"num_queries"`
}

// ComputeAggregates averages each metric across results. Empty input yields
// an all-zero aggregate with zero queries.
func ComputeAggregates(results []Result) Aggregates {
	agg := Aggregates{NumQueries: len(results)}
	if len(results) == 0 {
		return agg
	}

	for _, r := range results {
		agg.PrecisionAt5 += r.PrecisionAt5
		agg.RecallAt5 += r.RecallAt5
		agg.MRR += r.MRR
		agg.HitAt5 += r.HitAt5
	}

	n := float64(len(results))
	agg.PrecisionAt5 /= n
	agg.RecallAt5 /= n
	agg.MRR /= n
	agg.HitAt5 /= n
	return agg
}

// Score evaluates one question's retrieved chunks against its ground truth
// at the standard cutoff of 5.
func Score(question string, retrieved, groundTruth []string) Result {
	return Result{
		Question:     question,
		PrecisionAt5: PrecisionAtK(retrieved, groundTruth, 5),
		RecallAt5:    RecallAtK(retrieved, groundTruth, 5),
		MRR:          MRR(retrieved, groundTruth),
		HitAt5:       HitRateAtK(retrieved, groundTruth, 5),
	}
}

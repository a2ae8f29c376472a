package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

// DatasetItem is one benchmark question with its expected supporting
// contexts.
type DatasetItem struct {
	Question            string   `json:"question"`
	GroundTruthContexts []string `json:"ground_truth_contexts"`
	ExpectedAnswer      string   `json:"expected_answer,omitempty"`
}

// SkippedItem records why a dataset entry was rejected.
type SkippedItem struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Dataset is a validated benchmark dataset.
type Dataset struct {
	Items   []DatasetItem `json:"items"`
	Skipped []SkippedItem `json:"skipped,omitempty"`
}

// LoadDataset reads a JSON array of dataset items. Invalid items are skipped
// with recorded reasons; a dataset with zero valid items is an error.
func LoadDataset(path string, log *logger.Logger) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var raw []DatasetItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	dataset := &Dataset{}
	for i, item := range raw {
		if reason := validateItem(item); reason != "" {
			dataset.Skipped = append(dataset.Skipped, SkippedItem{Index: i, Reason: reason})
			log.Warn("Skipping invalid dataset item",
				zap.Int("index", i),
				zap.String("reason", reason))
			continue
		}
		dataset.Items = append(dataset.Items, item)
	}

	if len(dataset.Items) == 0 {
		return nil, fmt.Errorf("dataset %s contains no valid items (%d skipped)", path, len(dataset.Skipped))
	}

	log.Info("Dataset loaded",
		zap.String("path", path),
		zap.Int("items", len(dataset.Items)),
		zap.Int("skipped", len(dataset.Skipped)))

	return dataset, nil
}

func validateItem(item DatasetItem) string {
	if strings.TrimSpace(item.Question) == "" {
		return "empty question"
	}
	if len(item.GroundTruthContexts) == 0 {
		return "missing ground_truth_contexts"
	}
	for i, gt := range item.GroundTruthContexts {
		if strings.TrimSpace(gt) == "" {
			return fmt.Sprintf("blank ground-truth context at %d", i)
		}
	}
	return ""
}

package pii

import (
	"context"
	"fmt"

	"github.com/caresight/docguard/internal/logger"
	"go.uber.org/zap"
)

// PatternDetector handles regex-based PII detection. It is deterministic,
// dependency-free, and serves as the always-available fallback.
type PatternDetector struct {
	rules   []DetectionRule
	enabled map[Category]bool
	logger  *logger.Logger
}

// NewPatternDetector creates a new pattern detector instance. The detectors
// argument lists enabled categories; the pseudo-category "all" enables every
// rule.
func NewPatternDetector(detectors []string, log *logger.Logger) (*PatternDetector, error) {
	detector := &PatternDetector{
		rules:   GetDefaultRules(),
		enabled: make(map[Category]bool),
		logger:  log,
	}

	if err := detector.configureDetectors(detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Info("Pattern detector initialized",
		zap.Int("total_rules", len(detector.rules)),
		zap.Int("enabled_rules", detector.countEnabledRules()),
	)

	return detector, nil
}

// configureDetectors enables/disables rules based on configuration
func (d *PatternDetector) configureDetectors(detectors []string) error {
	// Disable all rules by default
	for _, rule := range d.rules {
		d.enabled[rule.Category] = false
	}

	for _, detector := range detectors {
		if detector == "all" {
			for _, rule := range d.rules {
				d.enabled[rule.Category] = true
			}
			continue
		}

		found := false
		for _, rule := range d.rules {
			if string(rule.Category) == detector {
				d.enabled[rule.Category] = true
				found = true
				break
			}
		}

		if !found {
			return fmt.Errorf("unknown detector: %s", detector)
		}
	}

	return nil
}

// Name identifies this detector in logs and audit metadata.
func (d *PatternDetector) Name() string { return "pattern" }

// Detect applies every enabled rule to the full text and collects all
// non-overlapping matches per rule. Categories overlapping on the same
// substring are each reported independently; de-duplication across categories
// is the caller's responsibility. Empty text yields an empty result, no error.
func (d *PatternDetector) Detect(ctx context.Context, text string) ([]Detection, error) {
	detections := make([]Detection, 0)
	if text == "" {
		return detections, nil
	}

	for _, rule := range d.rules {
		if !d.enabled[rule.Category] {
			continue
		}

		matches := rule.Pattern.FindAllStringIndex(text, -1)
		for _, m := range matches {
			detections = append(detections, Detection{
				Category:   rule.Category,
				Match:      text[m[0]:m[1]],
				Start:      m[0],
				End:        m[1],
				Confidence: rule.Confidence,
			})
		}

		if len(matches) > 0 {
			d.logger.Debug("PII detected",
				zap.String("category", string(rule.Category)),
				zap.Int("count", len(matches)),
			)
		}
	}

	return detections, nil
}

// EnabledCategories returns the categories this detector scans for.
func (d *PatternDetector) EnabledCategories() []Category {
	var enabled []Category
	for category, isEnabled := range d.enabled {
		if isEnabled {
			enabled = append(enabled, category)
		}
	}
	return enabled
}

// EnableRule enables a specific detection rule
func (d *PatternDetector) EnableRule(category Category) error {
	for _, rule := range d.rules {
		if rule.Category == category {
			d.enabled[category] = true
			d.logger.Info("Detection rule enabled", zap.String("category", string(category)))
			return nil
		}
	}
	return fmt.Errorf("unknown rule: %s", category)
}

// DisableRule disables a specific detection rule
func (d *PatternDetector) DisableRule(category Category) error {
	if _, exists := d.enabled[category]; !exists {
		return fmt.Errorf("unknown rule: %s", category)
	}

	d.enabled[category] = false
	d.logger.Info("Detection rule disabled", zap.String("category", string(category)))
	return nil
}

// countEnabledRules returns the number of enabled detection rules
func (d *PatternDetector) countEnabledRules() int {
	count := 0
	for _, enabled := range d.enabled {
		if enabled {
			count++
		}
	}
	return count
}

package pii

import (
	"context"
	"errors"
	"testing"

	"github.com/caresight/docguard/internal/logger"
	"go.uber.org/zap"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func TestPatternDetector(t *testing.T) {
	ctx := context.Background()

	t.Run("NewPatternDetector", func(t *testing.T) {
		detector, err := NewPatternDetector([]string{"all"}, testLogger())
		if err != nil {
			t.Fatalf("Failed to create detector: %v", err)
		}
		if len(detector.EnabledCategories()) == 0 {
			t.Error("No categories enabled with \"all\"")
		}
	})

	t.Run("UnknownDetector", func(t *testing.T) {
		if _, err := NewPatternDetector([]string{"palmprint"}, testLogger()); err == nil {
			t.Error("Expected error for unknown detector name")
		}
	})

	t.Run("EmptyText", func(t *testing.T) {
		detector, _ := NewPatternDetector([]string{"all"}, testLogger())
		detections, err := detector.Detect(ctx, "")
		if err != nil {
			t.Fatalf("Detect failed on empty text: %v", err)
		}
		if len(detections) != 0 {
			t.Errorf("Expected no detections for empty text, got %d", len(detections))
		}
	})

	t.Run("DetectEmail", func(t *testing.T) {
		detector, _ := NewPatternDetector([]string{"all"}, testLogger())
		detections, err := detector.Detect(ctx, "Contact j.jansen@huisarts.nl for this patient")
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		if len(detections) != 1 {
			t.Fatalf("Expected 1 detection, got %d", len(detections))
		}
		if detections[0].Category != CategoryEmail {
			t.Errorf("Expected category email, got %s", detections[0].Category)
		}
		if detections[0].Match != "j.jansen@huisarts.nl" {
			t.Errorf("Unexpected match: %q", detections[0].Match)
		}
	})

	t.Run("DetectBSN", func(t *testing.T) {
		detector, _ := NewPatternDetector([]string{"all"}, testLogger())
		detections, _ := detector.Detect(ctx, "patient with BSN 123456789 was admitted")
		var found bool
		for _, d := range detections {
			if d.Category == CategoryBSN && d.Match == "123456789" {
				found = true
			}
		}
		if !found {
			t.Error("BSN not detected")
		}
	})

	t.Run("MultipleCategoriesIndependent", func(t *testing.T) {
		detector, _ := NewPatternDetector([]string{"all"}, testLogger())
		text := "mail p@q.nl, lives at 1234 AB, record MRN-0012345"
		detections, _ := detector.Detect(ctx, text)

		got := make(map[Category]int)
		for _, d := range detections {
			got[d.Category]++
		}
		for _, want := range []Category{CategoryEmail, CategoryPostalCode, CategoryMedicalRecord} {
			if got[want] == 0 {
				t.Errorf("Category %s not reported", want)
			}
		}
	})

	t.Run("SpansMatchText", func(t *testing.T) {
		detector, _ := NewPatternDetector([]string{"all"}, testLogger())
		text := "reach me at test@example.com today"
		detections, _ := detector.Detect(ctx, text)
		for _, d := range detections {
			if text[d.Start:d.End] != d.Match {
				t.Errorf("Span [%d:%d] = %q does not match %q", d.Start, d.End, text[d.Start:d.End], d.Match)
			}
		}
	})

	t.Run("SelectiveDetectors", func(t *testing.T) {
		detector, err := NewPatternDetector([]string{"email"}, testLogger())
		if err != nil {
			t.Fatalf("Failed to create detector: %v", err)
		}
		detections, _ := detector.Detect(ctx, "BSN 123456789 and p@q.nl")
		for _, d := range detections {
			if d.Category != CategoryEmail {
				t.Errorf("Disabled category %s reported", d.Category)
			}
		}
	})

	t.Run("EnableDisableRule", func(t *testing.T) {
		detector, _ := NewPatternDetector([]string{"email"}, testLogger())
		if err := detector.EnableRule(CategoryBSN); err != nil {
			t.Fatalf("EnableRule failed: %v", err)
		}
		if err := detector.DisableRule(CategoryEmail); err != nil {
			t.Fatalf("DisableRule failed: %v", err)
		}
		detections, _ := detector.Detect(ctx, "BSN 123456789 and p@q.nl")
		for _, d := range detections {
			if d.Category == CategoryEmail {
				t.Error("Disabled email rule still reported")
			}
		}
		if err := detector.EnableRule("palmprint"); err == nil {
			t.Error("Expected error enabling unknown rule")
		}
	})
}

func TestSafetyTiers(t *testing.T) {
	t.Run("EveryCategoryHasOneTier", func(t *testing.T) {
		for _, c := range AllCategories() {
			tier := SafetyFor(c)
			if tier != SafetyAlways && tier != SafetyConditional && tier != SafetyNever {
				t.Errorf("Category %s has invalid tier %q", c, tier)
			}
		}
	})

	t.Run("NeverTierCategories", func(t *testing.T) {
		if SafetyFor(CategoryBSN) != SafetyNever {
			t.Error("BSN must be never-tier")
		}
		if SafetyFor(CategoryMedicalRecord) != SafetyNever {
			t.Error("Medical record number must be never-tier")
		}
	})

	t.Run("UnknownCategoryFailsClosed", func(t *testing.T) {
		if SafetyFor("made_up") != SafetyNever {
			t.Error("Unknown category must fail closed to never-tier")
		}
	})
}

// failingDetector always errors, standing in for an unavailable classifier.
type failingDetector struct{}

func (failingDetector) Name() string { return "failing" }
func (failingDetector) Detect(ctx context.Context, text string) ([]Detection, error) {
	return nil, errors.New("classifier unavailable")
}

func TestFallbackChain(t *testing.T) {
	ctx := context.Background()
	pattern, _ := NewPatternDetector([]string{"all"}, testLogger())

	t.Run("PrimaryFailureFallsBack", func(t *testing.T) {
		chain := NewFallbackChain(failingDetector{}, pattern, testLogger())
		detections, err := chain.Detect(ctx, "mail p@q.nl")
		if err != nil {
			t.Fatalf("Chain surfaced primary failure: %v", err)
		}
		if len(detections) != 1 || detections[0].Category != CategoryEmail {
			t.Errorf("Fallback result not used: %v", detections)
		}
	})

	t.Run("NilPrimaryUsesFallback", func(t *testing.T) {
		chain := NewFallbackChain(nil, pattern, testLogger())
		detections, err := chain.Detect(ctx, "mail p@q.nl")
		if err != nil || len(detections) != 1 {
			t.Errorf("Expected fallback-only detection, got %v, %v", detections, err)
		}
	})

	t.Run("CategoriesHelper", func(t *testing.T) {
		detections := []Detection{
			{Category: CategoryEmail},
			{Category: CategoryBSN},
			{Category: CategoryEmail},
		}
		cats := Categories(detections)
		if len(cats) != 2 || cats[0] != CategoryEmail || cats[1] != CategoryBSN {
			t.Errorf("Unexpected categories: %v", cats)
		}
	})
}

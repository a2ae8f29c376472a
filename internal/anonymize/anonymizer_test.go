package anonymize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/caresight/docguard/internal/logger"
	"github.com/caresight/docguard/internal/pii"
	"go.uber.org/zap"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func TestAnonymize(t *testing.T) {
	t.Run("NoDetections", func(t *testing.T) {
		result := Anonymize("nothing sensitive here", nil)
		if result.Anonymized != "nothing sensitive here" {
			t.Errorf("Text changed without detections: %q", result.Anonymized)
		}
		if result.Replaced != 0 || len(result.Mapping) != 0 {
			t.Error("Unexpected replacements without detections")
		}
	})

	t.Run("CategoryScopedCounters", func(t *testing.T) {
		text := "mail a@b.nl or c@d.nl, bsn 123456789"
		detections := []pii.Detection{
			{Category: pii.CategoryEmail, Match: "a@b.nl", Start: 5, End: 11},
			{Category: pii.CategoryEmail, Match: "c@d.nl", Start: 15, End: 21},
			{Category: pii.CategoryBSN, Match: "123456789", Start: 27, End: 36},
		}
		result := Anonymize(text, detections)

		want := "mail [EMAIL_1] or [EMAIL_2], bsn [BSN_1]"
		if result.Anonymized != want {
			t.Errorf("Got %q, want %q", result.Anonymized, want)
		}
		if result.Mapping["[EMAIL_2]"] != "c@d.nl" {
			t.Errorf("Mapping wrong: %v", result.Mapping)
		}
	})

	t.Run("OverlappingSpansCollapsed", func(t *testing.T) {
		text := "code 1234 AB here"
		detections := []pii.Detection{
			{Category: pii.CategoryPostalCode, Match: "1234 AB", Start: 5, End: 12},
			{Category: pii.CategoryBSN, Match: "1234", Start: 5, End: 9},
		}
		result := Anonymize(text, detections)
		if result.Anonymized != "code [POSTAL_CODE_1] here" {
			t.Errorf("Overlap not collapsed: %q", result.Anonymized)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		ctx := context.Background()
		detector, _ := pii.NewPatternDetector([]string{"email", "postal_code"}, testLogger())

		text := "patient at 1234 AB can be reached via j.smit@zorg.nl"
		detections, _ := detector.Detect(ctx, text)
		if len(detections) == 0 {
			t.Fatal("Expected detections for round-trip test")
		}

		result := Anonymize(text, detections)
		if strings.Contains(result.Anonymized, "j.smit@zorg.nl") {
			t.Error("Email survived anonymization")
		}

		restored := Deanonymize(result.Anonymized, result.Mapping)
		if restored != text {
			t.Errorf("Round trip failed: %q != %q", restored, text)
		}
	})

	t.Run("IdempotentAfterVerification", func(t *testing.T) {
		ctx := context.Background()
		detector, _ := pii.NewPatternDetector([]string{"all"}, testLogger())

		text := "contact p.devries@praktijk.nl about the referral"
		detections, _ := detector.Detect(ctx, text)
		result := Anonymize(text, detections)

		if err := Verify(ctx, detector, result.Anonymized); err != nil {
			t.Fatalf("Verification failed on clean output: %v", err)
		}

		again, _ := detector.Detect(ctx, result.Anonymized)
		if len(again) != 0 {
			t.Errorf("Detections remain on anonymized text: %v", again)
		}
	})
}

// partialDetector misses every second email, simulating incomplete detection.
type partialDetector struct {
	inner pii.Detector
}

func (p partialDetector) Name() string { return "partial" }
func (p partialDetector) Detect(ctx context.Context, text string) ([]pii.Detection, error) {
	detections, err := p.inner.Detect(ctx, text)
	if err != nil || len(detections) < 2 {
		return detections, err
	}
	return detections[:1], nil
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	detector, _ := pii.NewPatternDetector([]string{"all"}, testLogger())

	t.Run("ResidualPIIFailsClosed", func(t *testing.T) {
		text := "mail a@b.nl or c@d.nl"
		partial := partialDetector{inner: detector}
		detections, _ := partial.Detect(ctx, text)

		result := Anonymize(text, detections)
		err := Verify(ctx, detector, result.Anonymized)
		if err == nil {
			t.Fatal("Expected verification failure for partially anonymized text")
		}
		var verr *VerificationError
		if !errors.As(err, &verr) {
			t.Fatalf("Expected VerificationError, got %T", err)
		}
		if len(verr.Residual) == 0 {
			t.Error("VerificationError carries no residual categories")
		}
	})

	t.Run("DetectorErrorFailsClosed", func(t *testing.T) {
		failing := failingDetector{}
		if err := Verify(ctx, failing, "[EMAIL_1]"); err == nil {
			t.Error("Verification must fail when the scan cannot run")
		}
	})
}

type failingDetector struct{}

func (failingDetector) Name() string { return "failing" }
func (failingDetector) Detect(ctx context.Context, text string) ([]pii.Detection, error) {
	return nil, errors.New("scan unavailable")
}

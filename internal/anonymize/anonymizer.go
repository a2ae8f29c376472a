// Package anonymize replaces detected PII spans with stable placeholder
// tokens and restores them for the originating session. Placeholder counters
// are scoped to a single request so tokens carry no cross-request signal; the
// token-to-original mapping lives in memory only and must never reach the
// audit store or any log line.
package anonymize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/caresight/docguard/internal/pii"
)

// Mapping is the request-scoped placeholder-to-original table. Discard it as
// soon as the response has been emitted.
type Mapping map[string]string

// Result pairs the anonymized output with its reversible mapping. The
// original text is retained for same-process use only and never serialized.
type Result struct {
	Anonymized string         `json:"anonymized"`
	Original   string         `json:"-"` // never serialize original text
	Mapping    Mapping        `json:"-"` // never serialize the mapping
	Replaced   int            `json:"replaced"`
	Categories []pii.Category `json:"categories"`
}

// VerificationError reports PII remaining after an anonymization attempt.
// Cloud routing must be blocked when this is returned.
type VerificationError struct {
	Residual []pii.Category
}

func (e *VerificationError) Error() string {
	names := make([]string, len(e.Residual))
	for i, c := range e.Residual {
		names[i] = string(c)
	}
	return fmt.Sprintf("anonymized text still contains PII: %s", strings.Join(names, ", "))
}

// Anonymize replaces every detected span with a category-scoped counter token
// such as [EMAIL_1]. Overlapping detections are collapsed to the earliest,
// longest span so the output never contains partial replacements.
func Anonymize(text string, detections []pii.Detection) *Result {
	result := &Result{
		Anonymized: text,
		Original:   text,
		Mapping:    make(Mapping),
		Categories: pii.Categories(detections),
	}
	if len(detections) == 0 {
		return result
	}

	spans := make([]pii.Detection, len(detections))
	copy(spans, detections)
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End > spans[j].End
	})

	counters := make(map[pii.Category]int)
	var b strings.Builder
	cursor := 0

	for _, d := range spans {
		if d.Start < cursor {
			continue // overlapped by a previous replacement
		}
		if d.End > len(text) || d.Start > d.End {
			continue
		}

		counters[d.Category]++
		token := fmt.Sprintf("[%s_%d]", strings.ToUpper(string(d.Category)), counters[d.Category])

		b.WriteString(text[cursor:d.Start])
		b.WriteString(token)
		result.Mapping[token] = text[d.Start:d.End]
		result.Replaced++
		cursor = d.End
	}
	b.WriteString(text[cursor:])

	result.Anonymized = b.String()
	return result
}

// Deanonymize restores original content from placeholder tokens. It is used
// only when returning a response to the trusted session that originated the
// query, never for externally propagated text.
func Deanonymize(text string, mapping Mapping) string {
	for token, original := range mapping {
		text = strings.ReplaceAll(text, token, original)
	}
	return text
}

// Verify re-runs detection on anonymized output. Any remaining detection for
// a category that was supposed to be scrubbed means the attempt failed and
// the text must not leave the trust boundary ("fail closed").
func Verify(ctx context.Context, detector pii.Detector, anonymized string) error {
	residual, err := detector.Detect(ctx, anonymized)
	if err != nil {
		// A verification we cannot perform counts as a failed verification.
		return fmt.Errorf("verification scan failed: %w", err)
	}
	if len(residual) > 0 {
		return &VerificationError{Residual: pii.Categories(residual)}
	}
	return nil
}

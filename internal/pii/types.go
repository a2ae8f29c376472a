package pii

import (
	"context"
	"regexp"
)

// CloudSafety classifies how a PII category may be handled when a query is
// routed to an external model provider.
type CloudSafety string

const (
	// SafetyAlways marks categories that never block cloud routing.
	SafetyAlways CloudSafety = "always"

	// SafetyConditional marks categories that may be cloud-routed only after
	// successful anonymization and verification.
	SafetyConditional CloudSafety = "conditional"

	// SafetyNever marks categories that block cloud routing unconditionally.
	SafetyNever CloudSafety = "never"
)

// Category identifies a PII category in the taxonomy.
type Category string

// Registered PII categories.
const (
	CategoryEmail         Category = "email"
	CategoryPhone         Category = "phone"
	CategoryBSN           Category = "bsn"
	CategoryPostalCode    Category = "postal_code"
	CategoryDateOfBirth   Category = "date_of_birth"
	CategoryMedicalRecord Category = "medical_record_number"
	CategoryIBAN          Category = "iban"
	CategoryName          Category = "name"
	CategoryAddress       Category = "address"
)

// Detection is the result of scanning one text span. Immutable once created.
type Detection struct {
	Category   Category `json:"category"`
	Match      string   `json:"-"` // never serialized: raw matched content
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Confidence float32  `json:"confidence"`
}

// Detector scans text for PII spans. Implementations must be safe for
// concurrent use and must return an empty slice (not an error) for empty text.
type Detector interface {
	Detect(ctx context.Context, text string) ([]Detection, error)
	Name() string
}

// DetectionRule pairs a category with its detection pattern
type DetectionRule struct {
	Category   Category
	Pattern    *regexp.Regexp
	Confidence float32
}

// Categories returns every category present in the given detections, each
// category reported once, in first-seen order.
func Categories(detections []Detection) []Category {
	seen := make(map[Category]bool, len(detections))
	var out []Category
	for _, d := range detections {
		if !seen[d.Category] {
			seen[d.Category] = true
			out = append(out, d.Category)
		}
	}
	return out
}

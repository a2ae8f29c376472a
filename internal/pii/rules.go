package pii

import "regexp"

// safetyTiers maps every registered category to exactly one cloud-safety tier.
// BSN and medical record numbers identify a patient directly and are never
// eligible for cloud routing, anonymized or not.
var safetyTiers = map[Category]CloudSafety{
	CategoryEmail:         SafetyConditional,
	CategoryPhone:         SafetyConditional,
	CategoryBSN:           SafetyNever,
	CategoryPostalCode:    SafetyConditional,
	CategoryDateOfBirth:   SafetyConditional,
	CategoryMedicalRecord: SafetyNever,
	CategoryIBAN:          SafetyConditional,
	CategoryName:          SafetyConditional,
	CategoryAddress:       SafetyConditional,
}

// SafetyFor returns the cloud-safety tier for a category. Unregistered
// categories fail closed to SafetyNever.
func SafetyFor(category Category) CloudSafety {
	if tier, ok := safetyTiers[category]; ok {
		return tier
	}
	return SafetyNever
}

// AllCategories returns every category in the taxonomy.
func AllCategories() []Category {
	out := make([]Category, 0, len(safetyTiers))
	for c := range safetyTiers {
		out = append(out, c)
	}
	return out
}

// GetDefaultRules returns the built-in pattern detection rules.
// Name and address detection need context a regex cannot carry and are left to
// the model detector.
func GetDefaultRules() []DetectionRule {
	return []DetectionRule{
		{
			Category:   CategoryEmail,
			Pattern:    regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
			Confidence: 0.95,
		},
		{
			Category:   CategoryPhone,
			Pattern:    regexp.MustCompile(`(\+31|0031|0)[\s\-]?[1-9][0-9][\s\-]?[0-9]{7}\b|\b06[\s\-]?[0-9]{8}\b`),
			Confidence: 0.85,
		},
		{
			// Dutch BSN: nine digits, optionally dot-grouped.
			Category:   CategoryBSN,
			Pattern:    regexp.MustCompile(`\b[0-9]{9}\b|\b[0-9]{3}\.[0-9]{3}\.[0-9]{3}\b`),
			Confidence: 0.80,
		},
		{
			// Dutch postal code: four digits, optional space, two letters.
			Category:   CategoryPostalCode,
			Pattern:    regexp.MustCompile(`\b[1-9][0-9]{3}\s?[A-Za-z]{2}\b`),
			Confidence: 0.85,
		},
		{
			Category:   CategoryDateOfBirth,
			Pattern:    regexp.MustCompile(`\b[0-3]?[0-9][\-/][0-1]?[0-9][\-/](19|20)[0-9]{2}\b`),
			Confidence: 0.70,
		},
		{
			Category:   CategoryMedicalRecord,
			Pattern:    regexp.MustCompile(`(?i)\bMRN[\-:]?\s?[0-9]{6,10}\b`),
			Confidence: 0.95,
		},
		{
			Category:   CategoryIBAN,
			Pattern:    regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}[A-Z]{4}[0-9]{10}\b`),
			Confidence: 0.95,
		},
	}
}

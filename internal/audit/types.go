package audit

import (
	"time"

	"github.com/caresight/docguard/internal/access"
	"github.com/caresight/docguard/internal/pii"
)

// ActorRef is a privacy-safe handle to the caller: one-way hashes of the user
// and session identifiers plus the resolved role. Same identifier and salt
// always hash the same, so entries correlate across requests without storing
// who the actor was.
type ActorRef struct {
	ActorHash   string      `json:"actor_hash" db:"actor_hash"`
	Role        access.Role `json:"role" db:"role"`
	SessionHash string      `json:"session_hash" db:"session_hash"`
}

// ResourceRef is the analogous handle for patient-record resources. The scope
// hash covers the sorted, colon-joined resource IDs, so it is independent of
// request ordering.
type ResourceRef struct {
	ResourceHash string `json:"resource_hash" db:"resource_hash"`
	ResourceType string `json:"resource_type" db:"resource_type"`
	Collection   string `json:"collection" db:"collection"`
	ScopeHash    string `json:"scope_hash" db:"scope_hash"`
}

// Metadata is the operational record for one routing decision. It carries
// zero raw content: the query appears only as a hash, PII only as category
// names.
type Metadata struct {
	QueryHash       string         `json:"query_hash" db:"query_hash"`
	IntentCategory  string         `json:"intent_category" db:"intent_category"`
	PIIDetected     bool           `json:"pii_detected" db:"pii_detected"`
	PIICategories   []pii.Category `json:"pii_categories" db:"-"`
	CloudRouted     bool           `json:"cloud_routed" db:"cloud_routed"`
	LatencyMS       int64          `json:"latency_ms" db:"latency_ms"`
	ConfidenceScore float32        `json:"confidence_score" db:"confidence_score"`
}

// NewMetadata constructs routing metadata. PIIDetected is derived from the
// category list, never settable independently.
func NewMetadata(queryHash, intent string, categories []pii.Category, cloudRouted bool, latencyMS int64, confidence float32) Metadata {
	return Metadata{
		QueryHash:       queryHash,
		IntentCategory:  intent,
		PIIDetected:     len(categories) > 0,
		PIICategories:   categories,
		CloudRouted:     cloudRouted,
		LatencyMS:       latencyMS,
		ConfidenceScore: confidence,
	}
}

// Entry is one immutable audit record. Entries are appended, never mutated
// or deleted outside retention policy.
type Entry struct {
	ID        int64       `json:"id,omitempty" db:"id"`
	Timestamp time.Time   `json:"timestamp" db:"created_at"`
	Actor     ActorRef    `json:"actor"`
	Resource  ResourceRef `json:"resource"`
	Metadata  Metadata    `json:"metadata"`
}

// Filter narrows audit queries for compliance inspection. Zero-value fields
// are ignored.
type Filter struct {
	ActorHash   string
	Role        access.Role
	CloudRouted *bool
	Since       time.Time
	Until       time.Time
	Limit       int
}

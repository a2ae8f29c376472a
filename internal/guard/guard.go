// Package guard decides whether a screened query may be routed to an
// external model provider. Decide is pure: audit logging and anonymization
// are separate steps taken by the caller around the decision.
package guard

import (
	"github.com/caresight/docguard/internal/access"
	"github.com/caresight/docguard/internal/pii"
)

// Decision is the outcome of a cloud-eligibility check.
type Decision struct {
	Allowed               bool   `json:"allowed"`
	RequiresAnonymization bool   `json:"requires_anonymization"`
	Reason                string `json:"reason"`
}

// Reasons reported in decisions. Categorical only: a reason never embeds
// matched text.
const (
	ReasonClean           = "no PII detected"
	ReasonAlwaysSafe      = "only always-safe categories detected"
	ReasonNeverTier       = "never-tier PII category detected"
	ReasonConditional     = "conditional categories require anonymization"
	ReasonNoCloudGrant    = "role has no cloud routing permission"
	ReasonEmptyScope      = "resolved data scope is empty"
)

// Decide determines cloud eligibility from the detections, the caller's role
// permissions, and the resolved scope. Deterministic and side-effect free:
//
//   - any never-tier detection denies, with no override;
//   - all always-tier (or no detections) allows outright;
//   - any conditional-tier detection allows only after anonymization plus
//     verification, which the caller must perform before routing.
func Decide(detections []pii.Detection, table *access.Table, role access.Role, scope access.DataScope) Decision {
	if !table.CheckPermission(role, access.PermCloudRouting) {
		return Decision{Allowed: false, Reason: ReasonNoCloudGrant}
	}
	if scope.Empty() {
		return Decision{Allowed: false, Reason: ReasonEmptyScope}
	}

	conditional := false
	for _, d := range detections {
		switch pii.SafetyFor(d.Category) {
		case pii.SafetyNever:
			return Decision{Allowed: false, Reason: ReasonNeverTier}
		case pii.SafetyConditional:
			conditional = true
		}
	}

	if conditional {
		return Decision{
			Allowed:               true,
			RequiresAnonymization: true,
			Reason:                ReasonConditional,
		}
	}

	if len(detections) == 0 {
		return Decision{Allowed: true, Reason: ReasonClean}
	}
	return Decision{Allowed: true, Reason: ReasonAlwaysSafe}
}

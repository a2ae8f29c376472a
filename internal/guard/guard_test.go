package guard

import (
	"testing"

	"github.com/caresight/docguard/internal/access"
	"github.com/caresight/docguard/internal/pii"
)

func TestDecide(t *testing.T) {
	table := access.NewTable()
	scope := access.DataScope{Collections: []string{"guidelines"}}

	t.Run("NeverTierAlwaysBlocks", func(t *testing.T) {
		// Never-tier presence denies regardless of what else was detected.
		variants := [][]pii.Detection{
			{{Category: pii.CategoryBSN}},
			{{Category: pii.CategoryEmail}, {Category: pii.CategoryBSN}},
			{{Category: pii.CategoryMedicalRecord}, {Category: pii.CategoryPostalCode}},
		}
		for _, detections := range variants {
			decision := Decide(detections, table, access.RoleGP, scope)
			if decision.Allowed {
				t.Errorf("Never-tier detections %v allowed cloud routing", detections)
			}
			if decision.Reason != ReasonNeverTier {
				t.Errorf("Unexpected reason: %s", decision.Reason)
			}
		}
	})

	t.Run("CleanQueryAllowed", func(t *testing.T) {
		decision := Decide(nil, table, access.RoleGP, scope)
		if !decision.Allowed || decision.RequiresAnonymization {
			t.Errorf("Clean query not allowed outright: %+v", decision)
		}
	})

	t.Run("ConditionalRequiresAnonymization", func(t *testing.T) {
		detections := []pii.Detection{{Category: pii.CategoryEmail}}
		decision := Decide(detections, table, access.RoleGP, scope)
		if !decision.Allowed {
			t.Errorf("Conditional detections denied: %+v", decision)
		}
		if !decision.RequiresAnonymization {
			t.Error("Conditional detections must require anonymization")
		}
	})

	t.Run("RoleWithoutCloudGrantDenied", func(t *testing.T) {
		decision := Decide(nil, table, access.RolePatient, scope)
		if decision.Allowed {
			t.Error("Patient role routed to cloud without grant")
		}
		if decision.Reason != ReasonNoCloudGrant {
			t.Errorf("Unexpected reason: %s", decision.Reason)
		}
	})

	t.Run("EmptyScopeDenied", func(t *testing.T) {
		decision := Decide(nil, table, access.RoleGP, access.DataScope{})
		if decision.Allowed {
			t.Error("Empty scope routed to cloud")
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		detections := []pii.Detection{{Category: pii.CategoryPhone}, {Category: pii.CategoryIBAN}}
		first := Decide(detections, table, access.RoleAdmin, scope)
		for i := 0; i < 5; i++ {
			if Decide(detections, table, access.RoleAdmin, scope) != first {
				t.Fatal("Decision not deterministic")
			}
		}
	})
}

package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/access"
	"github.com/caresight/docguard/internal/logger"
	"github.com/caresight/docguard/internal/pii"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func TestHashIdentifier(t *testing.T) {
	salt := []byte("test-salt")

	t.Run("Deterministic", func(t *testing.T) {
		a := HashIdentifier("user-123", salt)
		b := HashIdentifier("user-123", salt)
		if a != b {
			t.Errorf("same input hashed differently: %q vs %q", a, b)
		}
	})

	t.Run("DistinctIdentifiers", func(t *testing.T) {
		a := HashIdentifier("user-123", salt)
		b := HashIdentifier("user-456", salt)
		if a == b {
			t.Errorf("distinct identifiers collided: %q", a)
		}
	})

	t.Run("DistinctSalts", func(t *testing.T) {
		a := HashIdentifier("user-123", salt)
		b := HashIdentifier("user-123", []byte("other-salt"))
		if a == b {
			t.Error("same identifier correlates across salts")
		}
	})

	t.Run("TruncatedLength", func(t *testing.T) {
		h := HashIdentifier("user-123", salt)
		if len(h) != hashLen {
			t.Errorf("expected %d hex chars, got %d (%q)", hashLen, len(h), h)
		}
		for _, c := range h {
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
				t.Errorf("non-hex character %q in hash %q", c, h)
			}
		}
	})
}

func TestNewResourceRef(t *testing.T) {
	salt := []byte("test-salt")

	t.Run("ScopeHashOrderIndependent", func(t *testing.T) {
		a := NewResourceRef("patient_record", "patient_records", []string{"r1", "r2", "r3"}, salt)
		b := NewResourceRef("patient_record", "patient_records", []string{"r3", "r1", "r2"}, salt)
		if a.ScopeHash != b.ScopeHash {
			t.Errorf("scope hash depends on ID order: %q vs %q", a.ScopeHash, b.ScopeHash)
		}
	})

	t.Run("DifferentIDsDifferentScope", func(t *testing.T) {
		a := NewResourceRef("patient_record", "patient_records", []string{"r1"}, salt)
		b := NewResourceRef("patient_record", "patient_records", []string{"r2"}, salt)
		if a.ScopeHash == b.ScopeHash {
			t.Error("distinct resource sets produced the same scope hash")
		}
	})
}

func TestNewMetadata(t *testing.T) {
	t.Run("PIIDetectedDerivedFromCategories", func(t *testing.T) {
		with := NewMetadata("qh", "clinical_question", []pii.Category{pii.CategoryBSN}, false, 12, 0.9)
		if !with.PIIDetected {
			t.Error("expected PIIDetected=true when categories present")
		}

		without := NewMetadata("qh", "clinical_question", nil, true, 12, 0.9)
		if without.PIIDetected {
			t.Error("expected PIIDetected=false with no categories")
		}
	})
}

func testEntry(actorHash string, role access.Role, cloudRouted bool, ts time.Time) Entry {
	return Entry{
		Timestamp: ts,
		Actor: ActorRef{
			ActorHash:   actorHash,
			Role:        role,
			SessionHash: "sess0000aaaa1111",
		},
		Resource: ResourceRef{
			ResourceHash: "res0000bbbb2222c",
			ResourceType: "document",
			Collection:   "guidelines",
			ScopeHash:    "scope000cccc3333",
		},
		Metadata: NewMetadata("query000dddd4444", "clinical_question",
			[]pii.Category{pii.CategoryEmail}, cloudRouted, 42, 0.87),
	}
}

func TestFileStore(t *testing.T) {
	t.Run("AppendAndQuery", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit.jsonl")
		store, err := NewFileStore(path, testLogger())
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		defer store.Close()

		ctx := context.Background()
		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

		if err := store.Append(ctx, testEntry("actor-a", access.RoleGP, true, base)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := store.Append(ctx, testEntry("actor-b", access.RolePatient, false, base.Add(time.Minute))); err != nil {
			t.Fatalf("Append: %v", err)
		}

		all, err := store.Query(ctx, Filter{})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(all))
		}
		if all[0].Actor.ActorHash != "actor-a" {
			t.Errorf("expected oldest-first order, got %q first", all[0].Actor.ActorHash)
		}
		if !all[0].Metadata.PIIDetected {
			t.Error("PIIDetected lost on round trip")
		}
	})

	t.Run("FilterByActorAndRouting", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit.jsonl")
		store, err := NewFileStore(path, testLogger())
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		defer store.Close()

		ctx := context.Background()
		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		store.Append(ctx, testEntry("actor-a", access.RoleGP, true, base))
		store.Append(ctx, testEntry("actor-a", access.RoleGP, false, base.Add(time.Minute)))
		store.Append(ctx, testEntry("actor-b", access.RolePatient, false, base.Add(2*time.Minute)))

		byActor, err := store.Query(ctx, Filter{ActorHash: "actor-a"})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(byActor) != 2 {
			t.Errorf("expected 2 entries for actor-a, got %d", len(byActor))
		}

		routed := true
		byRouting, err := store.Query(ctx, Filter{CloudRouted: &routed})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(byRouting) != 1 {
			t.Errorf("expected 1 cloud-routed entry, got %d", len(byRouting))
		}
	})

	t.Run("MalformedLineSkipped", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit.jsonl")
		store, err := NewFileStore(path, testLogger())
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}

		ctx := context.Background()
		store.Append(ctx, testEntry("actor-a", access.RoleGP, true, time.Now().UTC()))
		store.Close()

		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		f.WriteString("{not json\n")
		f.Close()

		store, err = NewFileStore(path, testLogger())
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		defer store.Close()

		store.Append(ctx, testEntry("actor-b", access.RolePatient, false, time.Now().UTC()))

		entries, err := store.Query(ctx, Filter{})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(entries) != 2 {
			t.Errorf("expected malformed line skipped, got %d entries", len(entries))
		}
	})

	t.Run("QueryBeforeAnyAppend", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit.jsonl")
		store, err := NewFileStore(path, testLogger())
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		defer store.Close()

		entries, err := store.Query(context.Background(), Filter{})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected empty log, got %d entries", len(entries))
		}
	})
}

func TestCategorySerialization(t *testing.T) {
	cats := []pii.Category{pii.CategoryEmail, pii.CategoryBSN}
	joined := joinCategories(cats)
	back := splitCategories(joined)
	if len(back) != 2 || back[0] != pii.CategoryEmail || back[1] != pii.CategoryBSN {
		t.Errorf("categories did not survive round trip: %v", back)
	}
	if splitCategories("") != nil {
		t.Error("expected nil for empty category string")
	}
}

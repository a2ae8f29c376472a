package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/access"
	"github.com/caresight/docguard/internal/audit"
	"github.com/caresight/docguard/internal/config"
	"github.com/caresight/docguard/internal/logger"
	"github.com/caresight/docguard/internal/pii"
	"github.com/caresight/docguard/internal/retrieval"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

// scriptedDetector reports a fixed detection whenever the trigger substring
// is present, so anonymized text verifies clean.
type scriptedDetector struct {
	trigger  string
	category pii.Category
}

func (d scriptedDetector) Name() string { return "scripted" }

func (d scriptedDetector) Detect(ctx context.Context, text string) ([]pii.Detection, error) {
	idx := strings.Index(text, d.trigger)
	if idx < 0 {
		return []pii.Detection{}, nil
	}
	return []pii.Detection{{
		Category:   d.category,
		Match:      d.trigger,
		Start:      idx,
		End:        idx + len(d.trigger),
		Confidence: 0.99,
	}}, nil
}

type cleanDetector struct{}

func (cleanDetector) Name() string { return "clean" }
func (cleanDetector) Detect(ctx context.Context, text string) ([]pii.Detection, error) {
	return []pii.Detection{}, nil
}

type stubRetriever struct {
	chunks []retrieval.Chunk
}

func (s stubRetriever) Name() string { return "stub" }
func (s stubRetriever) Retrieve(ctx context.Context, query string, topK int) ([]retrieval.Chunk, error) {
	return s.chunks, nil
}

func newTestServer(t *testing.T, detector pii.Detector, chunks []retrieval.Chunk) *Server {
	t.Helper()

	store, err := audit.NewFileStore(filepath.Join(t.TempDir(), "audit.jsonl"), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.GetDefaults()
	cfg.Audit.Salt = "test-salt"

	srv, err := New(cfg, testLogger(), Dependencies{
		Table:    access.NewTable(),
		Detector: detector,
		Auditor:  store,
		Retriever: func(scope access.DataScope) retrieval.Retriever {
			return stubRetriever{chunks: chunks}
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func TestNewRequiresSalt(t *testing.T) {
	store, err := audit.NewFileStore(filepath.Join(t.TempDir(), "audit.jsonl"), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.GetDefaults()
	cfg.Audit.Salt = ""

	_, err = New(cfg, testLogger(), Dependencies{
		Table:    access.NewTable(),
		Detector: cleanDetector{},
		Auditor:  store,
		Retriever: func(scope access.DataScope) retrieval.Retriever {
			return stubRetriever{}
		},
	})
	if err == nil {
		t.Error("expected error for empty audit salt")
	}
}

func postQuery(t *testing.T, srv *Server, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString(body))
	req.Header.Set(headerRole, role)
	req.Header.Set(headerUser, "user-1")
	req.Header.Set(headerSession, "session-1")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleQuery(t *testing.T) {
	guidelineChunks := []retrieval.Chunk{
		{ID: "c1", Text: "NHG-richtlijn diabetes", Collection: "guidelines", Score: 0.9},
		{ID: "c2", Text: "interne notitie", Collection: "internal_notes", Score: 0.8},
	}

	t.Run("clean query routed with scope filtering", func(t *testing.T) {
		srv := newTestServer(t, cleanDetector{}, guidelineChunks)

		rec := postQuery(t, srv, "gp", `{"query":"wat zegt de richtlijn over diabetes"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}

		var resp queryResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if !resp.CloudRouted {
			t.Error("clean query should be cloud routed")
		}
		if resp.Anonymized {
			t.Error("clean query should not be anonymized")
		}
		if len(resp.Results) != 1 || resp.Results[0].Collection != "guidelines" {
			t.Errorf("results = %+v, want only the guidelines chunk", resp.Results)
		}
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		srv := newTestServer(t, cleanDetector{}, nil)
		rec := postQuery(t, srv, "superuser", `{"query":"test"}`)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("auditor may not query documents", func(t *testing.T) {
		srv := newTestServer(t, cleanDetector{}, nil)
		rec := postQuery(t, srv, "auditor", `{"query":"test"}`)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("never-tier category blocks cloud routing but answers locally", func(t *testing.T) {
		srv := newTestServer(t, scriptedDetector{trigger: "123456782", category: pii.CategoryBSN}, guidelineChunks)
		rec := postQuery(t, srv, "gp", `{"query":"dossier van BSN 123456782"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}

		var resp queryResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if resp.CloudRouted {
			t.Error("never-tier detection must block cloud routing")
		}
		if strings.Contains(resp.Reason, "123456782") {
			t.Error("reason must never contain the matched text")
		}
		if len(resp.Results) == 0 {
			t.Error("local retrieval should still answer a cloud-blocked query")
		}
	})

	t.Run("patient has no cloud grant but keeps local results", func(t *testing.T) {
		srv := newTestServer(t, cleanDetector{}, guidelineChunks)
		rec := postQuery(t, srv, "patient", `{"query":"wat betekent deze uitslag"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}

		var resp queryResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if resp.CloudRouted {
			t.Error("patient role must never be cloud routed")
		}
		if len(resp.Results) != 1 || resp.Results[0].Collection != "guidelines" {
			t.Errorf("results = %+v, want only the guidelines chunk", resp.Results)
		}
	})

	t.Run("conditional category anonymized before routing", func(t *testing.T) {
		srv := newTestServer(t, scriptedDetector{trigger: "jan@example.com", category: pii.CategoryEmail}, guidelineChunks)
		rec := postQuery(t, srv, "gp", `{"query":"stuur de verwijzing naar jan@example.com"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}

		var resp queryResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if !resp.Anonymized {
			t.Error("conditional category should force anonymization")
		}
		if !resp.CloudRouted {
			t.Error("anonymized query should still be cloud routed")
		}
	})

	t.Run("empty query rejected", func(t *testing.T) {
		srv := newTestServer(t, cleanDetector{}, nil)
		rec := postQuery(t, srv, "gp", `{"query":"   "}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("requested collection outside grant yields empty scope", func(t *testing.T) {
		srv := newTestServer(t, cleanDetector{}, guidelineChunks)
		rec := postQuery(t, srv, "admin", `{"query":"test","collections":["patient_records"]}`)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}

func TestHandleAudit(t *testing.T) {
	srv := newTestServer(t, cleanDetector{}, nil)

	// Seed the trail with one decision.
	rec := postQuery(t, srv, "gp", `{"query":"richtlijn hypertensie"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed query status = %d: %s", rec.Code, rec.Body.String())
	}

	t.Run("auditor can read the trail", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
		req.Header.Set(headerRole, "auditor")
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Entries []audit.Entry `json:"entries"`
			Count   int           `json:"count"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if resp.Count != 1 {
			t.Fatalf("count = %d, want 1", resp.Count)
		}
		entry := resp.Entries[0]
		if entry.Metadata.QueryHash == "" || len(entry.Metadata.QueryHash) != 16 {
			t.Errorf("query hash = %q, want 16 hex chars", entry.Metadata.QueryHash)
		}
		if strings.Contains(rec.Body.String(), "richtlijn hypertensie") {
			t.Error("audit trail must not contain raw query text")
		}
	})

	t.Run("until bound excludes newer entries", func(t *testing.T) {
		until := time.Now().Add(-time.Hour).Format(time.RFC3339)
		req := httptest.NewRequest(http.MethodGet, "/v1/audit?until="+url.QueryEscape(until), nil)
		req.Header.Set(headerRole, "auditor")
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if resp.Count != 0 {
			t.Errorf("count = %d, want 0 for an hour-old until bound", resp.Count)
		}
	})

	t.Run("gp may not read the trail", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
		req.Header.Set(headerRole, "gp")
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("blocks after burst", func(t *testing.T) {
		rl := newRateLimiter(2)
		if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
			t.Fatal("burst requests should be allowed")
		}
		if rl.Allow("10.0.0.1") {
			t.Error("request beyond burst should be limited")
		}
	})

	t.Run("clients are independent", func(t *testing.T) {
		rl := newRateLimiter(1)
		if !rl.Allow("10.0.0.1") {
			t.Fatal("first request should be allowed")
		}
		if !rl.Allow("10.0.0.2") {
			t.Error("other client should not be affected")
		}
	})

	t.Run("disabled when non-positive", func(t *testing.T) {
		rl := newRateLimiter(0)
		for i := 0; i < 100; i++ {
			if !rl.Allow("10.0.0.1") {
				t.Fatal("disabled limiter should always allow")
			}
		}
	})

	t.Run("cleanup evicts idle buckets", func(t *testing.T) {
		rl := newRateLimiter(10)
		rl.Allow("10.0.0.1")
		rl.cleanup(0)
		rl.mu.Lock()
		n := len(rl.clients)
		rl.mu.Unlock()
		if n != 0 {
			t.Errorf("buckets after cleanup = %d, want 0", n)
		}
	})
}

func TestHealthAndInfo(t *testing.T) {
	srv := newTestServer(t, cleanDetector{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/info", nil)
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("info status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "docguard") {
		t.Error("info should report the service name")
	}
}

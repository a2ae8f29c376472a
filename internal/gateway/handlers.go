package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/access"
	"github.com/caresight/docguard/internal/anonymize"
	"github.com/caresight/docguard/internal/audit"
	"github.com/caresight/docguard/internal/guard"
	"github.com/caresight/docguard/internal/pii"
	"github.com/caresight/docguard/internal/retrieval"
	"github.com/caresight/docguard/internal/websocket"
)

// Caller identity headers. The gateway trusts the upstream auth layer to have
// validated them; the role still fails closed against the role table.
const (
	headerRole    = "X-Docguard-Role"
	headerUser    = "X-Docguard-User"
	headerSession = "X-Docguard-Session"
)

type queryRequest struct {
	Query       string   `json:"query"`
	Collections []string `json:"collections,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
}

type chunkResult struct {
	Text       string  `json:"text"`
	RecordID   string  `json:"record_id,omitempty"`
	Collection string  `json:"collection"`
	Score      float32 `json:"score"`
}

type queryResponse struct {
	RequestID   string        `json:"request_id"`
	CloudRouted bool          `json:"cloud_routed"`
	Anonymized  bool          `json:"anonymized"`
	Reason      string        `json:"reason"`
	Results     []chunkResult `json:"results"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// handleQuery runs the full privacy pipeline for one document query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	requestID := getRequestID(ctx)
	log := s.logger.WithRequestID(requestID)

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	role, err := s.table.ParseRole(r.Header.Get(headerRole))
	if err != nil {
		log.Warn("Query with unknown role rejected",
			zap.String("client_ip", getClientIP(r)))
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "access denied", Reason: "unknown role"})
		return
	}

	if !s.table.CheckPermission(role, access.PermQueryDocuments) {
		log.Warn("Query without document permission rejected",
			zap.String("role", string(role)))
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "access denied", Reason: "role may not query documents"})
		return
	}

	scope, err := s.table.ResolveScope(role, req.Collections)
	if err != nil || scope.Empty() {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "access denied", Reason: "no accessible collections in scope"})
		return
	}

	detections, err := s.detector.Detect(ctx, req.Query)
	if err != nil {
		// Detection failure fails closed: nothing leaves without screening.
		log.Error("PII detection failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "screening unavailable"})
		return
	}
	categories := pii.Categories(detections)

	s.broadcastDetection(requestID, req.Query, role, categories, len(detections), start)

	decision := guard.Decide(detections, s.table, role, scope)

	anonymized := false
	if decision.Allowed && decision.RequiresAnonymization {
		result := anonymize.Anonymize(req.Query, detections)
		if err := anonymize.Verify(ctx, s.detector, result.Anonymized); err != nil {
			var verr *anonymize.VerificationError
			if errors.As(err, &verr) {
				log.Warn("Anonymization verification found residual PII",
					zap.Int("residual_categories", len(verr.Residual)))
			} else {
				log.Error("Anonymization verification failed", zap.Error(err))
			}
			decision = guard.Decision{Allowed: false, Reason: "anonymization could not be verified"}
		} else {
			anonymized = true
		}
	}

	latency := time.Since(start).Milliseconds()
	if err := s.appendAudit(r, role, scope, req.Query, categories, decision.Allowed, latency); err != nil {
		// An unrecorded routing decision must not proceed.
		log.Error("Audit append failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "audit unavailable"})
		return
	}

	s.broadcastRouting(requestID, req.Query, role, decision, anonymized)

	// Document search runs against the local store with the raw query; only
	// the (anonymized) cloud route ever leaves the trust boundary. A cloud
	// block therefore still answers from local retrieval.
	chunks := s.retrieveChunks(r, req.Query, scope, req.TopK)

	writeJSON(w, http.StatusOK, queryResponse{
		RequestID:   requestID,
		CloudRouted: decision.Allowed,
		Anonymized:  anonymized,
		Reason:      decision.Reason,
		Results:     chunks,
	})
}

// retrieveChunks runs the scoped retriever, consulting the result cache and
// the reranker when configured. Retrieval failure degrades to no results.
func (s *Server) retrieveChunks(r *http.Request, query string, scope access.DataScope, topK int) []chunkResult {
	ctx := r.Context()
	log := s.logger.WithRequestID(getRequestID(ctx))

	if topK <= 0 {
		topK = s.config.Retrieval.TopK
	}

	retriever := s.retrieve(scope)
	// Scope participates in the cache key so results never cross scopes.
	cacheName := retriever.Name() + ":" + strings.Join(scope.Collections, ",")

	var chunks []retrieval.Chunk
	cached := false
	if s.cache != nil {
		chunks, cached = s.cache.Get(ctx, query, cacheName, topK)
	}

	if !cached {
		var err error
		chunks, err = retriever.Retrieve(ctx, query, topK)
		if err != nil {
			log.Error("Retrieval failed", zap.Error(err))
			return []chunkResult{}
		}
		if s.cache != nil {
			s.cache.Set(ctx, query, cacheName, topK, chunks)
		}
	}

	if s.reranker != nil {
		chunks = s.reranker.Rerank(ctx, query, chunks, topK)
	}

	allowed := make(map[string]bool, len(scope.Collections))
	for _, c := range scope.Collections {
		allowed[c] = true
	}

	results := make([]chunkResult, 0, len(chunks))
	for _, c := range chunks {
		if c.Collection != "" && !allowed[c.Collection] {
			continue
		}
		results = append(results, chunkResult{
			Text:       c.Text,
			RecordID:   c.RecordID,
			Collection: c.Collection,
			Score:      c.Score,
		})
	}
	return results
}

func (s *Server) appendAudit(r *http.Request, role access.Role, scope access.DataScope, query string, categories []pii.Category, cloudRouted bool, latencyMS int64) error {
	actor := audit.NewActorRef(
		r.Header.Get(headerUser),
		r.Header.Get(headerSession),
		role,
		s.salt,
	)
	resource := audit.NewResourceRef(
		"document_chunks",
		strings.Join(scope.Collections, ","),
		scope.Collections,
		s.salt,
	)
	entry := audit.Entry{
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Resource:  resource,
		Metadata: audit.NewMetadata(
			audit.HashIdentifier(query, s.salt),
			"document_query",
			categories,
			cloudRouted,
			latencyMS,
			0,
		),
	}
	return s.auditor.Append(r.Context(), entry)
}

// handleAudit serves the audit trail to auditors.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	role, err := s.table.ParseRole(r.Header.Get(headerRole))
	if err != nil || !s.table.CheckPermission(role, access.PermViewAudit) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "access denied", Reason: "audit access requires the auditor role"})
		return
	}

	filter := audit.Filter{
		ActorHash: r.URL.Query().Get("actor_hash"),
		Role:      access.Role(r.URL.Query().Get("role")),
	}
	if v := r.URL.Query().Get("cloud_routed"); v != "" {
		routed := v == "true"
		filter.CloudRouted = &routed
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if v := r.URL.Query().Get("since"); v != "" {
		if since, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Since = since
		}
	}
	if v := r.URL.Query().Get("until"); v != "" {
		if until, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Until = until
		}
	}

	entries, err := s.auditor.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("Audit query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "audit query failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":            "docguard",
		"version":         "0.1.0",
		"privacy_enabled": s.config.Privacy.Enabled,
		"audit_backend":   s.config.Audit.Backend,
		"roles":           s.table.Roles(),
	})
}

func (s *Server) broadcastDetection(requestID, query string, role access.Role, categories []pii.Category, findings int, start time.Time) {
	if s.hub == nil || findings == 0 {
		return
	}
	s.hub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeDetection,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: websocket.DetectionEvent{
			RequestID:     requestID,
			QueryHash:     audit.HashIdentifier(query, s.salt),
			Role:          string(role),
			Categories:    categories,
			TotalFindings: findings,
			ProcessingMS:  float64(time.Since(start).Nanoseconds()) / 1e6,
		},
	})
}

func (s *Server) broadcastRouting(requestID, query string, role access.Role, decision guard.Decision, anonymized bool) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeRouting,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: websocket.RoutingEvent{
			RequestID:   requestID,
			QueryHash:   audit.HashIdentifier(query, s.salt),
			Role:        string(role),
			Allowed:     decision.Allowed,
			Anonymized:  anonymized,
			Reason:      decision.Reason,
			CloudRouted: decision.Allowed,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/access"
	"github.com/caresight/docguard/internal/logger"
	"github.com/caresight/docguard/internal/pii"
)

// PostgresStore persists audit entries in PostgreSQL for multi-instance
// deployments. The table has no UPDATE or DELETE paths in this codebase;
// retention is handled by database policy, not application code.
type PostgresStore struct {
	db     *sqlx.DB
	logger *logger.Logger
}

const auditSchema = `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id BIGSERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		actor_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		session_hash TEXT NOT NULL,
		resource_hash TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		collection TEXT NOT NULL,
		scope_hash TEXT NOT NULL,
		query_hash TEXT NOT NULL,
		intent_category TEXT NOT NULL,
		pii_detected BOOLEAN NOT NULL,
		pii_categories TEXT NOT NULL,
		cloud_routed BOOLEAN NOT NULL,
		latency_ms BIGINT NOT NULL,
		confidence_score REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_entries (actor_hash, created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_entries (created_at)`

// NewPostgresStore connects to the database and ensures the audit table
// exists.
func NewPostgresStore(databaseURL string, log *logger.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	store := &PostgresStore{db: db, logger: log}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("audit database ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}

	log.Info("Audit postgres store initialized")
	return store, nil
}

// Append inserts one audit entry.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_entries (
			created_at, actor_hash, role, session_hash,
			resource_hash, resource_type, collection, scope_hash,
			query_hash, intent_category, pii_detected, pii_categories,
			cloud_routed, latency_ms, confidence_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		entry.Timestamp,
		entry.Actor.ActorHash,
		string(entry.Actor.Role),
		entry.Actor.SessionHash,
		entry.Resource.ResourceHash,
		entry.Resource.ResourceType,
		entry.Resource.Collection,
		entry.Resource.ScopeHash,
		entry.Metadata.QueryHash,
		entry.Metadata.IntentCategory,
		entry.Metadata.PIIDetected,
		joinCategories(entry.Metadata.PIICategories),
		entry.Metadata.CloudRouted,
		entry.Metadata.LatencyMS,
		entry.Metadata.ConfidenceScore,
	).Scan(&entry.ID)

	if err != nil {
		s.logger.Error("Failed to append audit entry",
			zap.Error(err),
			zap.String("actor_hash", entry.Actor.ActorHash))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// Query returns entries matching the filter, oldest first.
func (s *PostgresStore) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	query := "SELECT * FROM audit_entries WHERE 1=1"
	var args []interface{}

	if filter.ActorHash != "" {
		args = append(args, filter.ActorHash)
		query += fmt.Sprintf(" AND actor_hash = $%d", len(args))
	}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		query += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if filter.CloudRouted != nil {
		args = append(args, *filter.CloudRouted)
		query += fmt.Sprintf(" AND cloud_routed = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var row auditRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, row.toEntry())
	}
	return entries, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// auditRow maps the flat table layout onto the nested Entry shape.
type auditRow struct {
	ID              int64     `db:"id"`
	CreatedAt       time.Time `db:"created_at"`
	ActorHash       string    `db:"actor_hash"`
	Role            string    `db:"role"`
	SessionHash     string    `db:"session_hash"`
	ResourceHash    string    `db:"resource_hash"`
	ResourceType    string    `db:"resource_type"`
	Collection      string    `db:"collection"`
	ScopeHash       string    `db:"scope_hash"`
	QueryHash       string    `db:"query_hash"`
	IntentCategory  string    `db:"intent_category"`
	PIIDetected     bool      `db:"pii_detected"`
	PIICategories   string    `db:"pii_categories"`
	CloudRouted     bool      `db:"cloud_routed"`
	LatencyMS       int64     `db:"latency_ms"`
	ConfidenceScore float32   `db:"confidence_score"`
}

func (r auditRow) toEntry() Entry {
	return Entry{
		ID:        r.ID,
		Timestamp: r.CreatedAt,
		Actor: ActorRef{
			ActorHash:   r.ActorHash,
			Role:        access.Role(r.Role),
			SessionHash: r.SessionHash,
		},
		Resource: ResourceRef{
			ResourceHash: r.ResourceHash,
			ResourceType: r.ResourceType,
			Collection:   r.Collection,
			ScopeHash:    r.ScopeHash,
		},
		Metadata: Metadata{
			QueryHash:       r.QueryHash,
			IntentCategory:  r.IntentCategory,
			PIIDetected:     r.PIIDetected,
			PIICategories:   splitCategories(r.PIICategories),
			CloudRouted:     r.CloudRouted,
			LatencyMS:       r.LatencyMS,
			ConfidenceScore: r.ConfidenceScore,
		},
	}
}

func joinCategories(categories []pii.Category) string {
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func splitCategories(s string) []pii.Category {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	categories := make([]pii.Category, len(parts))
	for i, p := range parts {
		categories[i] = pii.Category(p)
	}
	return categories
}

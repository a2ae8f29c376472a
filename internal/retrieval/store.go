package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

// VectorStore handles document chunk storage in PostgreSQL + pgvector.
type VectorStore struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// StoreConfig contains database configuration.
type StoreConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// StoredChunk is one row in the document_chunks table.
type StoredChunk struct {
	ID         int64     `db:"id"`
	ChunkID    string    `db:"chunk_id"`
	Text       string    `db:"text"`
	TextHash   string    `db:"text_hash"`
	RecordID   string    `db:"record_id"`
	Collection string    `db:"collection"`
	Embedding  []float32 `db:"-"`
	CreatedAt  time.Time `db:"created_at"`
}

// BatchInsertResult summarizes a bulk insert.
type BatchInsertResult struct {
	Inserted int64
	Failed   int64
	Duration time.Duration
	Errors   []error
}

const chunkSchema = `
	CREATE TABLE IF NOT EXISTS document_chunks (
		id BIGSERIAL PRIMARY KEY,
		chunk_id TEXT NOT NULL,
		text TEXT NOT NULL,
		text_hash TEXT NOT NULL UNIQUE,
		record_id TEXT NOT NULL DEFAULT '',
		collection TEXT NOT NULL,
		embedding vector(384) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_collection ON document_chunks (collection)`

// NewVectorStore connects to the database, verifies pgvector, and ensures
// the chunk table exists.
func NewVectorStore(config *StoreConfig, log *logger.Logger) (*VectorStore, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &VectorStore{db: db, logger: log}
	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	log.Info("Vector store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return store, nil
}

func (s *VectorStore) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var extensionExists bool
	query := "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')"
	if err := s.db.GetContext(ctx, &extensionExists, query); err != nil {
		return fmt.Errorf("failed to check pgvector extension: %w", err)
	}
	if !extensionExists {
		return fmt.Errorf("pgvector extension is not installed")
	}

	if _, err := s.db.ExecContext(ctx, chunkSchema); err != nil {
		return fmt.Errorf("failed to create chunk schema: %w", err)
	}
	return nil
}

// BatchInsert stores chunks with their embeddings. Rows whose text hash
// already exists are skipped, which makes re-ingestion idempotent.
func (s *VectorStore) BatchInsert(ctx context.Context, chunks []*StoredChunk) (*BatchInsertResult, error) {
	if len(chunks) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	result := &BatchInsertResult{}

	valueStrings := make([]string, 0, len(chunks))
	valueArgs := make([]interface{}, 0, len(chunks)*6)
	for i, chunk := range chunks {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			i*6+1, i*6+2, i*6+3, i*6+4, i*6+5, i*6+6))
		valueArgs = append(valueArgs,
			chunk.ChunkID,
			chunk.Text,
			chunk.TextHash,
			chunk.RecordID,
			chunk.Collection,
			formatEmbedding(chunk.Embedding),
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO document_chunks (chunk_id, text, text_hash, record_id, collection, embedding)
		VALUES %s
		ON CONFLICT (text_hash) DO NOTHING`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		result.Failed = int64(len(chunks))
		result.Errors = []error{err}
		s.logger.Error("Batch insert failed", zap.Error(err))
		return result, fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(chunks))
	}

	result.Inserted = inserted
	result.Duration = time.Since(start)

	s.logger.Info("Batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("duplicates_skipped", int64(len(chunks))-inserted),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Search returns the chunks nearest to the embedding by cosine distance,
// optionally restricted to the given collections.
func (s *VectorStore) Search(ctx context.Context, embedding []float32, limit int, collections []string) ([]Chunk, error) {
	embeddingStr := formatEmbedding(embedding)

	whereClause := ""
	args := []interface{}{embeddingStr}
	if len(collections) > 0 {
		whereClause = "WHERE collection = ANY($2)"
		args = append(args, pq.Array(collections))
	}

	query := fmt.Sprintf(`
		SELECT
			chunk_id, text, record_id, collection, embedding,
			(1 - (embedding <=> $1)) as similarity
		FROM document_chunks
		%s
		ORDER BY embedding <=> $1
		LIMIT %d`, whereClause, limit)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("Similarity search failed", zap.Error(err))
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var results []Chunk
	for rows.Next() {
		var chunk Chunk
		var embeddingStr string
		if err := rows.Scan(
			&chunk.ID,
			&chunk.Text,
			&chunk.RecordID,
			&chunk.Collection,
			&embeddingStr,
			&chunk.Score,
		); err != nil {
			s.logger.Error("Failed to scan search result", zap.Error(err))
			continue
		}

		chunk.Embedding, err = parseEmbedding(embeddingStr)
		if err != nil {
			s.logger.Error("Failed to parse embedding", zap.Error(err))
			continue
		}
		results = append(results, chunk)
	}

	s.logger.Debug("Similarity search completed",
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)))

	return results, rows.Err()
}

// AllChunks streams every stored chunk, used to build the sparse index at
// startup.
func (s *VectorStore) AllChunks(ctx context.Context, collections []string) ([]Chunk, error) {
	query := "SELECT chunk_id, text, record_id, collection FROM document_chunks"
	var args []interface{}
	if len(collections) > 0 {
		query += " WHERE collection = ANY($1)"
		args = append(args, pq.Array(collections))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		if err := rows.Scan(&chunk.ID, &chunk.Text, &chunk.RecordID, &chunk.Collection); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// Count returns the number of stored chunks.
func (s *VectorStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM document_chunks"); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// CreateIndex creates the approximate-nearest-neighbor index once the table
// is large enough to benefit.
func (s *VectorStore) CreateIndex(ctx context.Context) error {
	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if count < 1000 {
		s.logger.Info("Skipping index creation, not enough chunks", zap.Int64("count", count))
		return nil
	}

	query := `
		CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_document_chunks_embedding
		ON document_chunks USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	s.logger.Info("Vector similarity index created", zap.Int64("chunk_count", count))
	return nil
}

// Close closes the database connection.
func (s *VectorStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// formatEmbedding converts a float32 slice to PostgreSQL vector format.
func formatEmbedding(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseEmbedding converts PostgreSQL vector format back to a float32 slice.
func parseEmbedding(embeddingStr string) ([]float32, error) {
	embeddingStr = strings.Trim(embeddingStr, "[]")
	if embeddingStr == "" {
		return []float32{}, nil
	}

	parts := strings.Split(embeddingStr, ",")
	embedding := make([]float32, len(parts))
	for i, part := range parts {
		var val float32
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%g", &val); err != nil {
			return nil, fmt.Errorf("failed to parse embedding value: %w", err)
		}
		embedding[i] = val
	}

	return embedding, nil
}

// maskDatabaseURL masks the password in a database URL for logging.
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}

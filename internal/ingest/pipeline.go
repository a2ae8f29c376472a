package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/embeddings"
	"github.com/caresight/docguard/internal/logger"
	"github.com/caresight/docguard/internal/retrieval"
)

// Pipeline ingests document chunks: read, validate, batch-embed, and bulk
// insert into the vector store. Re-running the same file is safe; rows are
// deduplicated by text hash.
type Pipeline struct {
	store    *retrieval.VectorStore
	embedder embeddings.Service
	config   *Config
	logger   *logger.Logger
}

// NewPipeline creates an ingest pipeline.
func NewPipeline(store *retrieval.VectorStore, embedder embeddings.Service, config *Config, log *logger.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		embedder: embedder,
		config:   config,
		logger:   log,
	}
}

// ProcessFile ingests one chunk file (CSV, Parquet, or JSON lines).
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	format := DetectFileFormat(filePath)
	p.logger.Info("Starting ingest",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize))

	start := time.Now()
	result := &Result{}

	var err error
	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, filePath, result)
	case FormatParquet:
		err = p.processParquet(ctx, filePath, result)
	case FormatJSON:
		err = p.processJSON(ctx, filePath, result)
	default:
		return result, fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	result.Duration = time.Since(start)

	if p.config.CreateIndex && result.ProcessedOK > 1000 {
		if err := p.store.CreateIndex(ctx); err != nil {
			p.logger.Warn("Failed to create vector index", zap.Error(err))
		}
	}

	p.logger.Info("Ingest completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Duration("duration", result.Duration),
		zap.Duration("embedding_time", result.EmbeddingTime),
		zap.Duration("database_time", result.DatabaseTime))

	return result, nil
}

// processCSV reads `text,record_id,collection` rows.
func (p *Pipeline) processCSV(ctx context.Context, filePath string, result *Result) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 3

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	p.logger.Debug("CSV header detected", zap.Strings("columns", header))

	return p.processBatches(ctx, func() ([]*ChunkRecord, error) {
		var batch []*ChunkRecord
		for len(batch) < p.config.BatchSize {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read CSV record", zap.Error(err))
				continue
			}
			if len(row) != 3 {
				p.logger.Warn("Invalid CSV record length", zap.Int("length", len(row)))
				continue
			}

			record := &ChunkRecord{
				Text:       strings.TrimSpace(row[0]),
				RecordID:   strings.TrimSpace(row[1]),
				Collection: strings.TrimSpace(row[2]),
			}
			if p.validateRecord(record) {
				batch = append(batch, record)
			}
		}
		return batch, nil
	}, result)
}

func (p *Pipeline) processParquet(ctx context.Context, filePath string, result *Result) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return p.processBatches(ctx, func() ([]*ChunkRecord, error) {
		var batch []*ChunkRecord
		for len(batch) < p.config.BatchSize {
			var record ChunkRecord
			err := reader.Read(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read Parquet record", zap.Error(err))
				continue
			}
			if p.validateRecord(&record) {
				batch = append(batch, &record)
			}
		}
		return batch, nil
	}, result)
}

// processJSON reads one JSON object per line.
func (p *Pipeline) processJSON(ctx context.Context, filePath string, result *Result) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return p.processBatches(ctx, func() ([]*ChunkRecord, error) {
		var batch []*ChunkRecord
		for len(batch) < p.config.BatchSize {
			var record ChunkRecord
			err := decoder.Decode(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read JSON record", zap.Error(err))
				continue
			}
			if p.validateRecord(&record) {
				batch = append(batch, &record)
			}
		}
		return batch, nil
	}, result)
}

func (p *Pipeline) processBatches(ctx context.Context, readBatch func() ([]*ChunkRecord, error), result *Result) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		skipped, err := p.processBatch(ctx, batch, result)
		result.TotalRecords += int64(len(batch))
		if err != nil {
			p.logger.Error("Batch processing failed", zap.Error(err))
			result.ProcessedFailed += int64(len(batch))
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		result.ProcessedFailed += skipped
		result.ProcessedOK += int64(len(batch)) - skipped

		if p.config.ProgressReport > 0 && result.TotalRecords%int64(p.config.ProgressReport) == 0 {
			p.reportProgress(result)
		}
	}
	return nil
}

// processBatch embeds and inserts one batch. It returns the number of records
// dropped for missing embeddings so the caller can balance its counters.
func (p *Pipeline) processBatch(ctx context.Context, batch []*ChunkRecord, result *Result) (int64, error) {
	texts := make([]string, len(batch))
	for i, record := range batch {
		texts[i] = record.Text
	}

	embeddingStart := time.Now()
	embeddingResult, err := p.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("batch embedding generation failed: %w", err)
	}
	result.EmbeddingTime += time.Since(embeddingStart)

	if len(embeddingResult.Embeddings) != len(batch) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, expected %d",
			len(embeddingResult.Embeddings), len(batch))
	}

	var skipped int64
	chunks := make([]*retrieval.StoredChunk, 0, len(batch))
	for i, record := range batch {
		if embeddingResult.Embeddings[i] == nil {
			skipped++
			continue
		}
		hash := computeTextHash(record.Text)
		chunks = append(chunks, &retrieval.StoredChunk{
			ChunkID:    hash[:16],
			Text:       record.Text,
			TextHash:   hash,
			RecordID:   record.RecordID,
			Collection: record.Collection,
			Embedding:  embeddingResult.Embeddings[i],
		})
	}

	dbStart := time.Now()
	insertResult, err := p.store.BatchInsert(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("database batch insert failed: %w", err)
	}
	result.DatabaseTime += time.Since(dbStart)

	p.logger.Debug("Batch processed",
		zap.Int("batch_size", len(batch)),
		zap.Int64("skipped", skipped),
		zap.Int64("inserted", insertResult.Inserted))

	return skipped, nil
}

func (p *Pipeline) validateRecord(record *ChunkRecord) bool {
	if !p.config.ValidateData {
		return true
	}

	if strings.TrimSpace(record.Text) == "" {
		p.logger.Debug("Invalid record: empty text")
		return false
	}
	if strings.TrimSpace(record.Collection) == "" {
		p.logger.Debug("Invalid record: empty collection")
		return false
	}

	maxLen := p.config.MaxTextLength
	if maxLen <= 0 {
		maxLen = 10000
	}
	if len(record.Text) > maxLen {
		p.logger.Debug("Invalid record: text too long", zap.Int("length", len(record.Text)))
		return false
	}

	return true
}

func (p *Pipeline) reportProgress(result *Result) {
	p.logger.Info("Ingest progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed))
}

// computeTextHash is the dedup key for stored chunks.
func computeTextHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

package ingest

import (
	"path/filepath"
	"time"
)

// ChunkRecord is one document chunk read from an input file.
type ChunkRecord struct {
	Text       string `csv:"text" parquet:"text" json:"text"`
	RecordID   string `csv:"record_id" parquet:"record_id" json:"record_id"`
	Collection string `csv:"collection" parquet:"collection" json:"collection"`
}

// Result summarizes one ingest run.
type Result struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	Duration        time.Duration `json:"duration"`
	EmbeddingTime   time.Duration `json:"embedding_time"`
	DatabaseTime    time.Duration `json:"database_time"`
	Errors          []string      `json:"errors,omitempty"`
}

// Config contains ingest pipeline configuration.
type Config struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`
	ValidateData   bool `yaml:"validate_data" mapstructure:"validate_data"`
	CreateIndex    bool `yaml:"create_index" mapstructure:"create_index"`
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"`
	MaxTextLength  int  `yaml:"max_text_length" mapstructure:"max_text_length"`
}

// FileFormat identifies a supported input format.
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat maps a filename extension to its format. Unknown
// extensions default to CSV.
func DetectFileFormat(filename string) FileFormat {
	switch filepath.Ext(filename) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl":
		return FormatJSON
	default:
		return FormatCSV
	}
}

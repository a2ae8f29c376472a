package embeddings

import (
	"time"
)

// ModelConfig contains embedding model configuration.
type ModelConfig struct {
	ModelName    string        `yaml:"model_name" mapstructure:"model_name"`
	ModelPath    string        `yaml:"model_path" mapstructure:"model_path"`
	MaxLength    int           `yaml:"max_length" mapstructure:"max_length"`
	BatchSize    int           `yaml:"batch_size" mapstructure:"batch_size"`
	ModelTimeout time.Duration `yaml:"model_timeout" mapstructure:"model_timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// Result is the outcome of embedding a single text.
type Result struct {
	Embedding   []float32     `json:"embedding"`
	Duration    time.Duration `json:"duration"`
	TokenCount  int           `json:"token_count"`
	ServiceType string        `json:"service_type"`
	CacheHit    bool          `json:"cache_hit"`
}

// BatchResult is the outcome of embedding multiple texts. Embeddings holds
// one entry per input text; a failed input has a nil entry and a
// corresponding error.
type BatchResult struct {
	Embeddings  [][]float32   `json:"embeddings"`
	Duration    time.Duration `json:"duration"`
	TotalTokens int           `json:"total_tokens"`
	Successful  int           `json:"successful"`
	Failed      int           `json:"failed"`
	Errors      []error       `json:"errors,omitempty"`
	ServiceType string        `json:"service_type"`
	CacheHits   int           `json:"cache_hits"`
}

// ModelStats tracks service performance.
type ModelStats struct {
	TotalInferences  int64         `json:"total_inferences"`
	TotalTokens      int64         `json:"total_tokens"`
	SuccessfulRuns   int64         `json:"successful_runs"`
	FailedRuns       int64         `json:"failed_runs"`
	AvgInferenceTime time.Duration `json:"avg_inference_time"`
	ModelLoadTime    time.Duration `json:"model_load_time"`
	CacheHitRatio    float64       `json:"cache_hit_ratio"`
	ErrorRate        float64       `json:"error_rate"`
	ServiceType      string        `json:"service_type"`
	StartTime        time.Time     `json:"start_time"`
}

// EmbeddingError is a typed embedding failure.
type EmbeddingError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *EmbeddingError) Error() string {
	return e.Message
}

var (
	ErrInvalidInput    = &EmbeddingError{Type: "invalid_input", Message: "invalid input text"}
	ErrModelNotLoaded  = &EmbeddingError{Type: "model_not_loaded", Message: "model not loaded"}
	ErrInferenceFailed = &EmbeddingError{Type: "inference_failed", Message: "inference failed"}
	ErrTimeoutError    = &EmbeddingError{Type: "timeout_error", Message: "operation timed out"}
)

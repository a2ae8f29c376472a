package config

import (
	"time"

	"github.com/caresight/docguard/internal/audit"
	"github.com/caresight/docguard/internal/embeddings"
	"github.com/caresight/docguard/internal/ingest"
	"github.com/caresight/docguard/internal/pii"
	"github.com/caresight/docguard/internal/retrieval"
	"github.com/caresight/docguard/internal/websocket"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig    `yaml:"server" mapstructure:"server"`
	Logging    LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Privacy    PrivacyConfig   `yaml:"privacy" mapstructure:"privacy"`
	Audit      audit.Config    `yaml:"audit" mapstructure:"audit"`
	Embeddings EmbeddingConfig `yaml:"embeddings" mapstructure:"embeddings"`
	Retrieval  RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Ingest     ingest.Config   `yaml:"ingest" mapstructure:"ingest"`
	Eval       EvalConfig      `yaml:"eval" mapstructure:"eval"`
	WebSocket  WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port           int           `yaml:"port" mapstructure:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	RequestsPerMin int           `yaml:"requests_per_min" mapstructure:"requests_per_min"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
		Path     string `yaml:"path" mapstructure:"path"`
		MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
		Compress bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// PrivacyConfig contains PII screening and anonymization configuration.
type PrivacyConfig struct {
	Enabled       bool            `yaml:"enabled" mapstructure:"enabled"`
	Detectors     []string        `yaml:"detectors" mapstructure:"detectors"`
	ModelFallback bool            `yaml:"model_fallback" mapstructure:"model_fallback"`
	Model         pii.ModelConfig `yaml:"model" mapstructure:"model"`
}

// EmbeddingConfig wraps the embedding service selection.
type EmbeddingConfig struct {
	Service embeddings.ServiceConfig `yaml:"service" mapstructure:"service"`
}

// RetrievalConfig contains vector store and retrieval pipeline configuration.
type RetrievalConfig struct {
	Store      retrieval.StoreConfig       `yaml:"store" mapstructure:"store"`
	Cache      retrieval.CacheConfig       `yaml:"cache" mapstructure:"cache"`
	SubTimeout time.Duration               `yaml:"sub_timeout" mapstructure:"sub_timeout"`
	RRFK       int                         `yaml:"rrf_k" mapstructure:"rrf_k"`
	TopK       int                         `yaml:"top_k" mapstructure:"top_k"`
	Rerank     RerankConfig                `yaml:"rerank" mapstructure:"rerank"`
	Scorer     retrieval.ModelScorerConfig `yaml:"scorer" mapstructure:"scorer"`
}

// RerankConfig controls cross-encoder reranking.
type RerankConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EvalConfig contains retrieval evaluation configuration.
type EvalConfig struct {
	DatasetPath string `yaml:"dataset_path" mapstructure:"dataset_path"`
	TopK        int    `yaml:"top_k" mapstructure:"top_k"`
	OutputPath  string `yaml:"output_path" mapstructure:"output_path"`
	Format      string `yaml:"format" mapstructure:"format"` // json or markdown
}

// WebSocketConfig contains the monitoring hub configuration.
type WebSocketConfig struct {
	Hub  websocket.HubConfig `yaml:"hub" mapstructure:"hub"`
	Path string              `yaml:"path" mapstructure:"path"`
}

// GetDefaults returns a configuration with sensible defaults.
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestsPerMin: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Privacy: PrivacyConfig{
			Enabled:   true,
			Detectors: []string{"all"},
			Model: pii.ModelConfig{
				Endpoint:      "http://localhost:11434",
				Model:         "pii-screen",
				ConfidenceMin: 0.5,
				Timeout:       10 * time.Second,
			},
		},
		Audit: audit.Config{
			Backend:  "file",
			FilePath: "data/audit.jsonl",
		},
		Embeddings: EmbeddingConfig{
			Service: embeddings.ServiceConfig{
				Type: embeddings.HashEmbedding,
				ModelConfig: embeddings.ModelConfig{
					ModelName:    "all-MiniLM-L6-v2",
					MaxLength:    256,
					BatchSize:    32,
					ModelTimeout: 30 * time.Second,
					CacheTTL:     time.Hour,
				},
			},
		},
		Retrieval: RetrievalConfig{
			Store: retrieval.StoreConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    10,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 2 * time.Minute,
			},
			Cache: retrieval.CacheConfig{
				Enabled:        false,
				MaxConnections: 10,
				MinIdleConns:   2,
				DefaultTTL:     5 * time.Minute,
			},
			SubTimeout: 2 * time.Second,
			RRFK:       retrieval.DefaultRRFConstant,
			TopK:       5,
			Rerank: RerankConfig{
				Enabled: false,
				Timeout: 5 * time.Second,
			},
			Scorer: retrieval.ModelScorerConfig{
				Endpoint: "http://localhost:11434",
				Model:    "relevance-scorer",
				Timeout:  5 * time.Second,
			},
		},
		Ingest: ingest.Config{
			BatchSize:      64,
			ValidateData:   true,
			CreateIndex:    true,
			ProgressReport: 1000,
			MaxTextLength:  10000,
		},
		Eval: EvalConfig{
			TopK:   5,
			Format: "markdown",
		},
		WebSocket: WebSocketConfig{
			Hub: websocket.HubConfig{
				Enabled:             true,
				BroadcastDetections: true,
				BroadcastRouting:    true,
				BroadcastSystem:     true,
				BroadcastConnection: true,
			},
			Path: "/ws",
		},
	}

	cfg.Logging.File.Path = "logs/docguard.log"
	cfg.Logging.File.MaxSize = 100 // MB
	cfg.Logging.File.MaxAge = 30   // days
	cfg.Logging.File.Compress = true

	return cfg
}

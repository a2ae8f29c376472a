package embeddings

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

// ServiceType selects the embedding implementation.
type ServiceType string

const (
	// HashEmbedding uses deterministic hash-based embeddings. No model
	// assets required.
	HashEmbedding ServiceType = "hash"

	// TransformerEmbedding uses a transformer model via a build-tagged
	// backend, with optional Redis caching.
	TransformerEmbedding ServiceType = "transformer"
)

// ServiceConfig configures embedding service selection.
type ServiceConfig struct {
	Type         ServiceType `yaml:"type" mapstructure:"type"`
	ModelConfig  ModelConfig `yaml:"model" mapstructure:"model"`
	RedisEnabled bool        `yaml:"redis_enabled" mapstructure:"redis_enabled"`
	RedisURL     string      `yaml:"redis_url" mapstructure:"redis_url"`
}

// Factory creates embedding services from configuration.
type Factory struct {
	logger *logger.Logger
}

// NewFactory creates an embedding service factory.
func NewFactory(log *logger.Logger) *Factory {
	return &Factory{logger: log}
}

// CreateService builds the configured service. When the transformer backend
// is unavailable the factory falls back to the hash service rather than
// failing startup; document search degrades, the privacy pipeline does not.
func (f *Factory) CreateService(config ServiceConfig) (Service, error) {
	if err := ValidateServiceConfig(config); err != nil {
		return nil, err
	}

	switch config.Type {
	case HashEmbedding, "":
		return NewHashService(config.ModelConfig, f.logger), nil
	case TransformerEmbedding:
		var redisClient *redis.Client
		if config.RedisEnabled {
			redisClient = redis.NewClient(&redis.Options{Addr: config.RedisURL})
			if err := redisClient.Ping(context.Background()).Err(); err != nil {
				f.logger.Warn("Redis connection failed, disabling embedding cache", zap.Error(err))
				redisClient = nil
			}
		}
		service, err := NewTransformerService(config.ModelConfig, f.logger, redisClient)
		if err != nil {
			f.logger.Warn("Transformer service unavailable, falling back to hash embeddings",
				zap.Error(err))
			return NewHashService(config.ModelConfig, f.logger), nil
		}
		return service, nil
	default:
		return nil, fmt.Errorf("unknown embedding service type: %s", config.Type)
	}
}

// ValidateServiceConfig validates embedding configuration.
func ValidateServiceConfig(config ServiceConfig) error {
	switch config.Type {
	case HashEmbedding, TransformerEmbedding, "":
	default:
		return fmt.Errorf("invalid service type: %s (must be one of: hash, transformer)", config.Type)
	}

	if config.Type == TransformerEmbedding {
		if config.ModelConfig.ModelPath == "" {
			return fmt.Errorf("model_path is required for transformer embeddings")
		}
		if config.RedisEnabled && config.RedisURL == "" {
			return fmt.Errorf("redis_url is required when redis_enabled is true")
		}
	}

	if config.ModelConfig.MaxLength < 0 {
		return fmt.Errorf("max_length must not be negative")
	}
	if config.ModelConfig.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative")
	}

	return nil
}

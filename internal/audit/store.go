package audit

import (
	"context"
	"fmt"

	"github.com/caresight/docguard/internal/logger"
)

// Store persists audit entries. Implementations are append-only: entries are
// never updated or removed through this interface.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Query(ctx context.Context, filter Filter) ([]Entry, error)
	Close() error
}

// Config selects and configures the audit backend.
type Config struct {
	Backend     string `yaml:"backend" mapstructure:"backend"`
	FilePath    string `yaml:"file_path" mapstructure:"file_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Salt        string `yaml:"salt" mapstructure:"salt"`
}

// NewStore creates the configured audit backend.
func NewStore(cfg Config, log *logger.Logger) (Store, error) {
	switch cfg.Backend {
	case "file", "":
		return NewFileStore(cfg.FilePath, log)
	case "postgres":
		return NewPostgresStore(cfg.DatabaseURL, log)
	default:
		return nil, fmt.Errorf("unknown audit backend: %s", cfg.Backend)
	}
}

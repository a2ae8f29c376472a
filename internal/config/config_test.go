package config

import "testing"

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default logging = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
	if !cfg.Privacy.Enabled {
		t.Error("privacy screening should be enabled by default")
	}
	if cfg.Audit.Backend != "file" {
		t.Errorf("default audit backend = %s, want file", cfg.Audit.Backend)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("default top_k = %d, want 5", cfg.Retrieval.TopK)
	}
	if err := validateConfig(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad audit backend", func(c *Config) { c.Audit.Backend = "sqlite" }},
		{"non-positive top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"bad eval format", func(c *Config) { c.Eval.Format = "csv" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

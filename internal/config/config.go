// Package config provides configuration loading for cancelflow.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the cancelflow service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Store     StoreConfig     `koanf:"store"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Inference InferenceConfig `koanf:"inference"`
	Delivery  DeliveryConfig  `koanf:"delivery"`
	Queue     QueueConfig     `koanf:"queue"`
	Cleanup   CleanupConfig   `koanf:"cleanup"`
}

// ServerConfig holds the inbound HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// StoreConfig holds the SQLite record store settings.
type StoreConfig struct {
	Path        string   `koanf:"path"`
	BusyTimeout Duration `koanf:"busy_timeout"`
}

// RetrievalConfig holds the embedded vector store settings used for
// context-snippet retrieval.
type RetrievalConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	TopK       int    `koanf:"top_k"`
	// Embedding selects the embedding function: "openai" or "local".
	// "local" is a deterministic hash embedder for development and tests.
	Embedding string `koanf:"embedding"`
	APIKey    Secret `koanf:"api_key"`
}

// InferenceConfig holds settings for the LLM-based extraction path.
type InferenceConfig struct {
	Enabled    bool     `koanf:"enabled"`
	BaseURL    string   `koanf:"base_url"`
	APIKey     Secret   `koanf:"api_key"`
	Model      string   `koanf:"model"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
}

// DeliveryConfig holds settings for the review-channel webhook.
type DeliveryConfig struct {
	WebhookURL Secret   `koanf:"webhook_url"`
	Channel    string   `koanf:"channel"`
	Timeout    Duration `koanf:"timeout"`
}

// QueueConfig holds settings for the delivery retry worker.
type QueueConfig struct {
	PollInterval Duration `koanf:"poll_interval"`
	BatchSize    int      `koanf:"batch_size"`
	// BatchTimeout bounds one whole batch of delivery attempts. It
	// must cover batch_size sequential webhook timeouts, or slow
	// transient failures late in the batch would be cut off by the
	// scheduler instead of their own delivery timeout.
	BatchTimeout Duration `koanf:"batch_timeout"`
	BaseDelay    Duration `koanf:"base_delay"`
	MaxRetries   int      `koanf:"max_retries"`
}

// CleanupConfig holds retention settings for terminal queue rows.
type CleanupConfig struct {
	RetentionDays int `koanf:"retention_days"`
}

// applyDefaults fills in defaults for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./cancelflow.db"
	}
	if cfg.Store.BusyTimeout == 0 {
		cfg.Store.BusyTimeout = Duration(5 * time.Second)
	}
	if cfg.Retrieval.Path == "" {
		cfg.Retrieval.Path = "./cancelflow-context"
	}
	if cfg.Retrieval.Collection == "" {
		cfg.Retrieval.Collection = "cancellation_tickets"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.Embedding == "" {
		cfg.Retrieval.Embedding = "local"
	}
	if cfg.Inference.BaseURL == "" {
		cfg.Inference.BaseURL = "https://api.openai.com"
	}
	if cfg.Inference.Model == "" {
		cfg.Inference.Model = "gpt-4o-mini"
	}
	if cfg.Inference.Timeout == 0 {
		cfg.Inference.Timeout = Duration(20 * time.Second)
	}
	if cfg.Inference.MaxRetries == 0 {
		cfg.Inference.MaxRetries = 3
	}
	if cfg.Delivery.Channel == "" {
		cfg.Delivery.Channel = "#cancellation-review"
	}
	if cfg.Delivery.Timeout == 0 {
		cfg.Delivery.Timeout = Duration(5 * time.Second)
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = Duration(15 * time.Second)
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 10
	}
	if cfg.Queue.BatchTimeout == 0 {
		cfg.Queue.BatchTimeout = Duration(time.Duration(cfg.Queue.BatchSize)*cfg.Delivery.Timeout.Duration() + 10*time.Second)
	}
	if cfg.Queue.BaseDelay == 0 {
		cfg.Queue.BaseDelay = Duration(250 * time.Millisecond)
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 3
	}
	if cfg.Cleanup.RetentionDays == 0 {
		cfg.Cleanup.RetentionDays = 90
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port must be 1-65535, got %d", c.Server.Port)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging: format must be json or console, got %q", c.Logging.Format)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store: path is required")
	}
	if c.Inference.Enabled && !c.Inference.APIKey.IsSet() {
		return fmt.Errorf("inference: api_key is required when inference is enabled")
	}
	if c.Retrieval.Enabled && c.Retrieval.Embedding == "openai" && !c.Retrieval.APIKey.IsSet() {
		return fmt.Errorf("retrieval: api_key is required for the openai embedder")
	}
	if c.Queue.BatchSize < 1 {
		return fmt.Errorf("queue: batch_size must be positive")
	}
	if c.Queue.MaxRetries < 1 {
		return fmt.Errorf("queue: max_retries must be positive")
	}
	return nil
}

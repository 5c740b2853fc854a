package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// envPrefix namespaces cancelflow environment variables.
const envPrefix = "CANCELFLOW_"

// Load loads configuration from an optional YAML file, then overrides
// with environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (CANCELFLOW_SERVER_PORT, CANCELFLOW_QUEUE_MAX_RETRIES, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// Environment variables map to config keys by stripping the prefix,
// lowercasing, and splitting on the first underscore:
//
//	CANCELFLOW_SERVER_PORT          -> server.port
//	CANCELFLOW_INFERENCE_API_KEY    -> inference.api_key
//	CANCELFLOW_QUEUE_POLL_INTERVAL  -> queue.poll_interval
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open config file: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}

			// Use rawbytes provider to avoid re-opening the file
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// CANCELFLOW_SERVER_PORT -> server.port
		// First underscore separates section from field; remaining
		// underscores stay inside the field name (api_key, poll_interval).
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

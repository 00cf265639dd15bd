package config

import (
	"fmt"
	"strings"
)

var (
	MinBlockIntervalMs = uint64(100)
)

// ValidateConfig checks the node settings and resolves the protocol section
// against the default controller parameters.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("DataDir must be provided")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be provided")
	}
	if cfg.BlockIntervalMs < MinBlockIntervalMs {
		return fmt.Errorf("BlockIntervalMs must be at least %d", MinBlockIntervalMs)
	}
	if cfg.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit: RequestsPerSecond must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit: Burst must be positive when a rate is set")
	}
	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		if strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
			return fmt.Errorf("telemetry: Endpoint must be provided when exporters are enabled")
		}
	}
	if _, err := cfg.Protocol.Resolve(); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	return nil
}

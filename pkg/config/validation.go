package config

import (
	"fmt"
	"strings"

	"github.com/dbehnke/lasertag-ir/pkg/protocol"
)

// validate validates the configuration
func validate(cfg *Config) error {
	if err := validateByte("device.seed", cfg.Device.Seed); err != nil {
		return err
	}
	if err := validateByte("device.team", cfg.Device.Team); err != nil {
		return err
	}
	if err := validateByte("device.weapon", cfg.Device.Weapon); err != nil {
		return err
	}

	if _, err := protocol.ParseProtocolID(cfg.Codec.Protocol); err != nil {
		return fmt.Errorf("codec.protocol: %w", err)
	}
	if cfg.Codec.TolerancePercent <= 0 || cfg.Codec.TolerancePercent >= protocol.MaxTolerancePercent {
		return fmt.Errorf("codec.tolerance_percent must be between 1 and %d", protocol.MaxTolerancePercent-1)
	}

	if cfg.Receiver.Enabled && cfg.Receiver.CaptureTimeoutMS <= 0 {
		return fmt.Errorf("receiver.capture_timeout_ms must be positive")
	}

	if cfg.Loopback.JitterUS < 0 {
		return fmt.Errorf("loopback.jitter_us must not be negative")
	}
	// The shortest slot has the narrowest window; jitter must stay inside it
	if limit := int(protocol.Dynasty20ZeroDuration.Microseconds()) * cfg.Codec.TolerancePercent / 100; cfg.Loopback.JitterUS >= limit {
		return fmt.Errorf("loopback.jitter_us must be below %d at %d%% tolerance", limit, cfg.Codec.TolerancePercent)
	}
	if cfg.Loopback.Queue <= 0 {
		return fmt.Errorf("loopback.queue must be positive")
	}

	if cfg.Database.Enabled {
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return fmt.Errorf("database.path is required when database is enabled")
		}
		if cfg.Database.RetentionDays < 0 {
			return fmt.Errorf("database.retention_days must not be negative")
		}
		if cfg.Database.DedupeMS < 0 {
			return fmt.Errorf("database.dedupe_ms must not be negative")
		}
	}

	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		if cfg.Metrics.Prometheus.Port <= 0 || cfg.Metrics.Prometheus.Port > 65535 {
			return fmt.Errorf("metrics.prometheus.port must be between 1 and 65535")
		}
		if !strings.HasPrefix(cfg.Metrics.Prometheus.Path, "/") {
			return fmt.Errorf("metrics.prometheus.path must start with /")
		}
	}

	format := strings.ToLower(cfg.Logging.Format)
	if format != "" && format != "text" && format != "json" {
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}

// validateByte checks a code that is sent as one 8-bit field
func validateByte(key string, v int) error {
	if v < 0 || v > 0xFF {
		return fmt.Errorf("%s must be between 0 and 255", key)
	}
	return nil
}

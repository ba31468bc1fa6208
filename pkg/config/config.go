package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Codec    CodecConfig    `mapstructure:"codec"`
	Receiver ReceiverConfig `mapstructure:"receiver"`
	Loopback LoopbackConfig `mapstructure:"loopback"`
	Database DatabaseConfig `mapstructure:"database"`
	Web      WebConfig      `mapstructure:"web"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DeviceConfig describes the gun this instance transmits as
type DeviceConfig struct {
	Name   string `mapstructure:"name"`
	Seed   int    `mapstructure:"seed"`   // Byte picked at power-on, sent before the payload
	Team   int    `mapstructure:"team"`   // Default team code for /api/fire
	Weapon int    `mapstructure:"weapon"` // Default weapon code for /api/fire
}

// CodecConfig selects the IR protocol and its decode tolerance
type CodecConfig struct {
	Protocol         string `mapstructure:"protocol"`
	TolerancePercent int    `mapstructure:"tolerance_percent"`
}

// ReceiverConfig controls the capture/decode loop
type ReceiverConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	DropInvalid      bool `mapstructure:"drop_invalid"`       // Discard frames failing checksum
	CaptureTimeoutMS int  `mapstructure:"capture_timeout_ms"` // Per-capture wait
}

// LoopbackConfig configures the in-memory emitter/capturer used on hosts
// without IR hardware
type LoopbackConfig struct {
	JitterUS int `mapstructure:"jitter_us"` // Max random deviation applied to each pulse
	Queue    int `mapstructure:"queue"`     // Frames buffered between emit and capture
}

// DatabaseConfig holds hit log storage configuration
type DatabaseConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
	DedupeMS      int    `mapstructure:"dedupe_ms"` // Identical frames within this window are stored once
}

// WebConfig holds web API configuration
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics configuration
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/lasertag-ir")
	}

	// A .env next to the binary may carry LASERTAG_* overrides; real
	// environment variables win over it
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	// LASERTAG_DEVICE_TEAM, LASERTAG_CODEC_TOLERANCE_PERCENT, ...
	viper.SetEnvPrefix("LASERTAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, use defaults
		} else if os.IsNotExist(err) {
			// File explicitly specified but doesn't exist - that's also OK
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("device.name", "lasertag-ir")
	viper.SetDefault("device.seed", 0xAE)
	viper.SetDefault("device.team", 1)
	viper.SetDefault("device.weapon", 1)

	viper.SetDefault("codec.protocol", "DYNASTY20LASERTAG")
	viper.SetDefault("codec.tolerance_percent", 25)

	viper.SetDefault("receiver.enabled", true)
	viper.SetDefault("receiver.drop_invalid", false)
	viper.SetDefault("receiver.capture_timeout_ms", 500)

	viper.SetDefault("loopback.jitter_us", 0)
	viper.SetDefault("loopback.queue", 16)

	viper.SetDefault("database.enabled", true)
	viper.SetDefault("database.path", "lasertag-ir.db")
	viper.SetDefault("database.retention_days", 30)
	viper.SetDefault("database.dedupe_ms", 0)

	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8080)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.prometheus.enabled", false)
	viper.SetDefault("metrics.prometheus.port", 9090)
	viper.SetDefault("metrics.prometheus.path", "/metrics")
}

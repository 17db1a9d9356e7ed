package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/harun/pagebroker/pkg/broker"
)

// Config represents the main pagebroker configuration
type Config struct {
	// Browser session settings
	Browser BrowserConfig `json:"browser" mapstructure:"browser"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory; all session artifacts live under it
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// BrowserConfig holds browser launch and session settings
type BrowserConfig struct {
	DebugPort        int    `json:"debug_port" mapstructure:"debug_port"`
	Headless         bool   `json:"headless" mapstructure:"headless"`
	ChromePath       string `json:"chrome_path" mapstructure:"chrome_path"`
	LaunchAttempts   int    `json:"launch_attempts" mapstructure:"launch_attempts"`
	LaunchIntervalMs int    `json:"launch_interval_ms" mapstructure:"launch_interval_ms"`
	HistorySize      int    `json:"history_size" mapstructure:"history_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			DebugPort:        broker.DefaultDebugPort,
			Headless:         false,
			LaunchAttempts:   15,
			LaunchIntervalMs: 1000,
			HistorySize:      broker.DefaultLedgerCapacity,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Browser.DebugPort < 1 || c.Browser.DebugPort > 65535 {
		return fmt.Errorf("invalid debug port %d (must be 1-65535)", c.Browser.DebugPort)
	}
	if c.Browser.LaunchAttempts < 1 {
		return fmt.Errorf("launch attempts must be at least 1, got %d", c.Browser.LaunchAttempts)
	}
	if c.Browser.LaunchIntervalMs < 1 {
		return fmt.Errorf("launch interval must be positive, got %dms", c.Browser.LaunchIntervalMs)
	}
	if c.Browser.HistorySize < 1 {
		return fmt.Errorf("history size must be at least 1, got %d", c.Browser.HistorySize)
	}

	validLevels := []string{"", "debug", "info", "warn", "error"}
	valid := false
	for _, lvl := range validLevels {
		if c.Logging.Level == lvl {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level %s (must be: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// BrokerOptions maps the configuration onto broker options, deriving every
// artifact path from the data directory.
func (c *Config) BrokerOptions() broker.Options {
	return broker.Options{
		StateFile:      filepath.Join(c.DataDir, "state.json"),
		LockFile:       filepath.Join(c.DataDir, "broker.lock"),
		ProfileDir:     filepath.Join(c.DataDir, "chrome-profile"),
		LedgerPath:     filepath.Join(c.DataDir, "ledger.db"),
		DebugPort:      c.Browser.DebugPort,
		Headless:       c.Browser.Headless,
		ChromePath:     c.Browser.ChromePath,
		LaunchAttempts: c.Browser.LaunchAttempts,
		LaunchInterval: time.Duration(c.Browser.LaunchIntervalMs) * time.Millisecond,
		LedgerCapacity: c.Browser.HistorySize,
	}
}

// Package config holds all FloraFi configuration: YAML file with defaults
// and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all FloraFi configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Plant identity used in the companion persona and transcript headers
	PlantName string `yaml:"plant_name"`
	CreatorID string `yaml:"creator_id"`

	// Companion chat configuration
	Chat ChatConfig `yaml:"chat"`

	// Decentralized storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Wallet connector configuration
	Wallet WalletConfig `yaml:"wallet"`

	// Sensor configuration
	Sensor SensorConfig `yaml:"sensor"`

	// Session persistence
	Session SessionConfig `yaml:"session"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ChatConfig configures the companion chat client.
type ChatConfig struct {
	Backend     string  `yaml:"backend"` // http, genai
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Timeout     string  `yaml:"timeout"`
	Temperature float64 `yaml:"temperature"`
	MaxRetries  int     `yaml:"max_retries"`
}

// StorageConfig configures the publisher/aggregator upload client.
type StorageConfig struct {
	Publishers []string `yaml:"publishers"` // ordered candidates, first is preferred
	Aggregator string   `yaml:"aggregator"`
	Epochs     int      `yaml:"epochs"`
	Timeout    string   `yaml:"timeout"`
}

// WalletConfig configures wallet discovery.
type WalletConfig struct {
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	PollTimeoutMs  int    `yaml:"poll_timeout_ms"`
	DebuggerURL    string `yaml:"debugger_url"` // existing Chrome devtools endpoint, optional
	Headless       bool   `yaml:"headless"`
	DappURL        string `yaml:"dapp_url"` // page the browser environment navigates to
}

// SensorConfig configures the serial sensor pipeline.
type SensorConfig struct {
	Device         string `yaml:"device"`    // serial device path; empty = auto-detect
	DeviceDir      string `yaml:"device_dir"` // directory watched for hotplug (default /dev)
	Simulate       bool   `yaml:"simulate"`  // use the simulated source instead of hardware
	BufferSize     int    `yaml:"buffer_size"`
	SyncIntervalMs int    `yaml:"sync_interval_ms"`
}

// SessionConfig configures session persistence.
type SessionConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, text
	Categories map[string]bool `yaml:"categories"`
}

// DefaultStateDir returns the florafi state directory (~/.florafi).
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".florafi"
	}
	return filepath.Join(home, ".florafi")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultStateDir(), "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:      "FloraFi",
		Version:   "0.3.0",
		PlantName: "Buddy",
		CreatorID: "anonymous-gardener",

		Chat: ChatConfig{
			Backend:     "http",
			Model:       "gemini-2.0-flash",
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
			Timeout:     "60s",
			Temperature: 0.9,
			MaxRetries:  3,
		},

		Storage: StorageConfig{
			Publishers: []string{
				"https://publisher.walrus-testnet.walrus.space",
				"https://wal-publisher-testnet.staketab.org",
				"https://walrus-testnet-publisher.nodes.guru",
			},
			Aggregator: "https://aggregator.walrus-testnet.walrus.space",
			Epochs:     5,
			Timeout:    "90s",
		},

		Wallet: WalletConfig{
			PollIntervalMs: 50,
			PollTimeoutMs:  3000,
			Headless:       false,
		},

		Sensor: SensorConfig{
			DeviceDir:      "/dev",
			Simulate:       false,
			BufferSize:     512,
			SyncIntervalMs: 30,
		},

		Session: SessionConfig{
			DatabasePath: filepath.Join(DefaultStateDir(), "florafi.db"),
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Chat.APIKey = key
	}
	if key := os.Getenv("FLORAFI_API_KEY"); key != "" {
		c.Chat.APIKey = key
	}
	if model := os.Getenv("FLORAFI_MODEL"); model != "" {
		c.Chat.Model = model
	}
	if pubs := os.Getenv("FLORAFI_PUBLISHERS"); pubs != "" {
		c.Storage.Publishers = splitList(pubs)
	}
	if agg := os.Getenv("FLORAFI_AGGREGATOR"); agg != "" {
		c.Storage.Aggregator = agg
	}
	if dev := os.Getenv("FLORAFI_DEVICE"); dev != "" {
		c.Sensor.Device = dev
	}
	if path := os.Getenv("FLORAFI_DB"); path != "" {
		c.Session.DatabasePath = path
	}
	if url := os.Getenv("FLORAFI_DEBUGGER_URL"); url != "" {
		c.Wallet.DebuggerURL = url
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetChatTimeout returns the chat timeout as a duration.
func (c *Config) GetChatTimeout() time.Duration {
	d, err := time.ParseDuration(c.Chat.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetStorageTimeout returns the per-attempt upload timeout as a duration.
func (c *Config) GetStorageTimeout() time.Duration {
	d, err := time.ParseDuration(c.Storage.Timeout)
	if err != nil {
		return 90 * time.Second
	}
	return d
}

// GetWalletPollInterval returns the injection poll interval.
func (c *Config) GetWalletPollInterval() time.Duration {
	if c.Wallet.PollIntervalMs <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(c.Wallet.PollIntervalMs) * time.Millisecond
}

// GetWalletPollTimeout returns the total injection wait budget.
func (c *Config) GetWalletPollTimeout() time.Duration {
	if c.Wallet.PollTimeoutMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.Wallet.PollTimeoutMs) * time.Millisecond
}

// GetSensorSyncInterval returns the buffer-to-UI sync period.
func (c *Config) GetSensorSyncInterval() time.Duration {
	if c.Sensor.SyncIntervalMs <= 0 {
		return 30 * time.Millisecond
	}
	return time.Duration(c.Sensor.SyncIntervalMs) * time.Millisecond
}

// GetSensorDeviceDir returns the directory watched for device hotplug.
func (c *Config) GetSensorDeviceDir() string {
	if c.Sensor.DeviceDir == "" {
		return "/dev"
	}
	return c.Sensor.DeviceDir
}

// ValidBackends lists supported chat backends.
var ValidBackends = []string{"http", "genai"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Chat.APIKey == "" {
		return fmt.Errorf("chat API key not configured (set GEMINI_API_KEY or FLORAFI_API_KEY)")
	}

	valid := false
	for _, b := range ValidBackends {
		if c.Chat.Backend == b {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid chat backend: %s (valid: %v)", c.Chat.Backend, ValidBackends)
	}

	if len(c.Storage.Publishers) == 0 {
		return fmt.Errorf("at least one storage publisher required")
	}
	if c.Storage.Epochs <= 0 {
		return fmt.Errorf("storage epochs must be positive, got %d", c.Storage.Epochs)
	}
	return nil
}

package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "FloraFi" {
		t.Errorf("expected Name=FloraFi, got %s", cfg.Name)
	}
	if cfg.Chat.Backend != "http" {
		t.Errorf("expected Backend=http, got %s", cfg.Chat.Backend)
	}
	if len(cfg.Storage.Publishers) < 2 {
		t.Errorf("expected multiple publisher candidates, got %d", len(cfg.Storage.Publishers))
	}
	if cfg.Sensor.SyncIntervalMs != 30 {
		t.Errorf("expected SyncIntervalMs=30, got %d", cfg.Sensor.SyncIntervalMs)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("FLORAFI_API_KEY", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.PlantName = "Fernando"
	cfg.Chat.APIKey = "test-key"
	cfg.Storage.Epochs = 10

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.PlantName != "Fernando" {
		t.Errorf("expected PlantName=Fernando, got %s", loaded.PlantName)
	}
	if loaded.Chat.APIKey != "test-key" {
		t.Errorf("expected APIKey=test-key, got %s", loaded.Chat.APIKey)
	}
	if loaded.Storage.Epochs != 10 {
		t.Errorf("expected Epochs=10, got %d", loaded.Storage.Epochs)
	}
}

func TestConfig_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("FLORAFI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "FloraFi" {
		t.Errorf("expected defaults, got Name=%s", cfg.Name)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("FLORAFI_PUBLISHERS", "https://a.example, https://b.example")
	t.Setenv("FLORAFI_DEVICE", "/dev/ttyUSB7")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Chat.APIKey != "env-key" {
		t.Errorf("expected APIKey=env-key, got %s", cfg.Chat.APIKey)
	}
	if len(cfg.Storage.Publishers) != 2 || cfg.Storage.Publishers[1] != "https://b.example" {
		t.Errorf("publisher override wrong: %v", cfg.Storage.Publishers)
	}
	if cfg.Sensor.Device != "/dev/ttyUSB7" {
		t.Errorf("device override wrong: %s", cfg.Sensor.Device)
	}
}

func TestConfig_DurationGetters(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.GetWalletPollInterval(); got != 50*time.Millisecond {
		t.Errorf("poll interval: got %v", got)
	}
	if got := cfg.GetWalletPollTimeout(); got != 3*time.Second {
		t.Errorf("poll timeout: got %v", got)
	}

	cfg.Chat.Timeout = "bogus"
	if got := cfg.GetChatTimeout(); got != 60*time.Second {
		t.Errorf("expected fallback chat timeout, got %v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("FLORAFI_API_KEY", "")

	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing API key")
	}

	cfg.Chat.APIKey = "k"
	cfg.Chat.Backend = "smoke-signals"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid backend")
	}

	cfg.Chat.Backend = "http"
	cfg.Storage.Publishers = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty publishers")
	}

	cfg.Storage.Publishers = []string{"https://p.example"}
	cfg.Storage.Epochs = 5
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

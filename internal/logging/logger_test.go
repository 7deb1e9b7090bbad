package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func reset() {
	CloseAll()
	logsDir = ""
	opts = Options{}
	logLevel = LevelInfo
}

func TestInitialize_ProductionModeIsNoop(t *testing.T) {
	defer reset()
	dir := t.TempDir()

	if err := Initialize(dir, Options{Debug: false}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "logs")); !os.IsNotExist(err) {
		t.Error("expected no logs directory in production mode")
	}
	if IsDebugMode() {
		t.Error("expected debug mode off")
	}
}

func TestInitialize_DebugModeWritesFiles(t *testing.T) {
	defer reset()
	dir := t.TempDir()

	if err := Initialize(dir, Options{Debug: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Wallet("provider %s detected", "slush")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var found bool
	for _, e := range entries {
		if strings.Contains(e.Name(), "wallet") {
			found = true
			data, _ := os.ReadFile(filepath.Join(dir, "logs", e.Name()))
			if !strings.Contains(string(data), "provider slush detected") {
				t.Errorf("wallet log missing message, got: %s", data)
			}
		}
	}
	if !found {
		t.Error("expected a wallet log file")
	}
}

func TestCategoryFilter(t *testing.T) {
	defer reset()
	dir := t.TempDir()

	err := Initialize(dir, Options{
		Debug:      true,
		Level:      "debug",
		Categories: map[string]bool{"sensor": false},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsCategoryEnabled(CategorySensor) {
		t.Error("sensor category should be disabled")
	}
	if !IsCategoryEnabled(CategoryWallet) {
		t.Error("wallet category should be enabled by default")
	}

	// Disabled category gets a no-op logger; must not panic.
	Sensor("ignored %d", 1)
}

func TestLevelFilter(t *testing.T) {
	defer reset()
	dir := t.TempDir()

	if err := Initialize(dir, Options{Debug: true, Level: "error"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	l := Get(CategoryChat)
	l.Info("should not appear")
	l.Error("should appear")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(dir, "logs"))
	for _, e := range entries {
		if strings.Contains(e.Name(), "chat") {
			data, _ := os.ReadFile(filepath.Join(dir, "logs", e.Name()))
			if strings.Contains(string(data), "should not appear") {
				t.Error("info line leaked through error level")
			}
			if !strings.Contains(string(data), "should appear") {
				t.Error("error line missing")
			}
		}
	}
}

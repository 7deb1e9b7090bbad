package main

import (
	"testing"

	"florafi/internal/config"
)

func TestLoggingOptionsMapsFormatAndCategories(t *testing.T) {
	c := config.DefaultConfig()
	c.Logging.Debug = true
	c.Logging.Level = "warn"
	c.Logging.Format = "json"
	c.Logging.Categories = map[string]bool{"wallet": true, "chat": false}

	opts := loggingOptions(c)
	if !opts.Debug || opts.Level != "warn" {
		t.Errorf("debug/level not carried: %+v", opts)
	}
	if !opts.JSONFormat {
		t.Error("format \"json\" should enable JSON output")
	}
	if !opts.Categories["wallet"] || opts.Categories["chat"] {
		t.Errorf("category filter not carried: %v", opts.Categories)
	}
}

func TestLoggingOptionsTextFormatDefault(t *testing.T) {
	c := config.DefaultConfig()
	c.Logging.Format = "text"

	opts := loggingOptions(c)
	if opts.JSONFormat {
		t.Error("text format should not enable JSON output")
	}
	if opts.Categories != nil {
		t.Errorf("no configured filter should leave all categories enabled, got %v", opts.Categories)
	}
}

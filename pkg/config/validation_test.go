package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_MetricsPort(t *testing.T) {
	tests := []struct {
		name      string
		port      int
		expectErr bool
	}{
		{"valid port", 9090, false},
		{"zero uses default", 0, false},
		{"port too high", 70000, true},
		{"negative port", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Metrics.Port = tt.port

			err := Validate(cfg)
			if tt.expectErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestValidate_Retry(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Retry.Attempts = 0
	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for zero attempts")
	}

	cfg = GetDefaultConfig()
	cfg.Retry.MaxDelay = -time.Second
	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for negative max delay")
	}
}

func TestValidate_UnknownCodec(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Processors.Decompress.Codecs = []string{"gzip", "rar"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown codec")
	}
}

func TestValidate_NoResolverEnabled(t *testing.T) {
	cfg := GetDefaultConfig()
	for _, nr := range cfg.Resolvers.all() {
		nr.config.Enabled = false
	}
	cfg.Shared.Enabled = false

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error with no resolver enabled")
	}
	if !strings.Contains(err.Error(), "at least one resolver") {
		t.Errorf("Expected 'at least one resolver' error, got: %v", err)
	}
}

func TestValidate_SharedRoot(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Shared.Root = "shared:/loop"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for a shared: root")
	}
	if !strings.Contains(err.Error(), "shared.root") {
		t.Errorf("Expected error to name shared.root, got: %v", err)
	}
}

func TestValidate_SharedLinks(t *testing.T) {
	tests := []struct {
		name      string
		links     map[string]string
		expectErr bool
	}{
		{"valid link", map[string]string{"/docs": "file:/srv/docs"}, false},
		{"link to root", map[string]string{"/": "file:/srv"}, true},
		{"shared target", map[string]string{"/docs": "shared:/other"}, true},
		{"unparsable target", map[string]string{"/docs": "file://%zz"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Shared.Links = tt.links

			err := Validate(cfg)
			if tt.expectErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name  string
		check func(*Config) bool
	}{
		{"default mode is api", func(c *Config) bool { return c.Mode == "api" }},
		{"default host is 0.0.0.0", func(c *Config) bool { return c.Host == "0.0.0.0" }},
		{"default port is 19680", func(c *Config) bool { return c.Port == 19680 }},
		{"default log level is info", func(c *Config) bool { return c.LogLevel == "info" }},
		{"default log format is json", func(c *Config) bool { return c.LogFormat == "json" }},
		{"default dimension is 768", func(c *Config) bool { return c.DefaultDimension == 768 }},
		{"listen addr format", func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:19680" }},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("unexpected config value for %s", tt.name)
			}
		})
	}
}

func TestValidateRejectsBadDimension(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	cfg.DefaultDimension = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for dimension 0")
	}

	cfg.DefaultDimension = 4097
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for dimension 4097")
	}

	cfg.DefaultDimension = 4096
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected dimension 4096 to be valid, got %v", err)
	}
}

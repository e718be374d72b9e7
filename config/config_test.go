package config

import (
	"bytes"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig() should validate, got: %v", err)
	}
}

// TestSaveLoadRoundTrip checks the Config round-trips through JSON,
// including ModbusIdleTimeout's custom duration-string marshaling.
func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModbusIdleTimeout = 30 * time.Second
	cfg.StatusPort = 8080

	var buf bytes.Buffer
	if err := cfg.SaveConfigToWriter(&buf); err != nil {
		t.Fatalf("SaveConfigToWriter: %v", err)
	}

	got, err := LoadConfigFromReader(&buf)
	if err != nil {
		t.Fatalf("LoadConfigFromReader: %v", err)
	}
	if got.ModbusIdleTimeout != 30*time.Second {
		t.Errorf("ModbusIdleTimeout = %v, want 30s", got.ModbusIdleTimeout)
	}
	if got.StatusPort != 8080 {
		t.Errorf("StatusPort = %d, want 8080", got.StatusPort)
	}
	if got.ModbusListenAddress != cfg.ModbusListenAddress {
		t.Errorf("ModbusListenAddress = %q, want %q", got.ModbusListenAddress, cfg.ModbusListenAddress)
	}
}

// TestLoadConfigFromReaderPartialDocumentKeepsDefaults checks a partial
// JSON document still validates, since LoadConfigFromReader starts from
// DefaultConfig.
func TestLoadConfigFromReaderPartialDocumentKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfigFromReader(bytes.NewBufferString(`{"status_port": 9090}`))
	if err != nil {
		t.Fatalf("LoadConfigFromReader: %v", err)
	}
	if cfg.StatusPort != 9090 {
		t.Errorf("StatusPort = %d, want 9090", cfg.StatusPort)
	}
	if cfg.ModbusListenAddress != DefaultConfig().ModbusListenAddress {
		t.Errorf("ModbusListenAddress should keep its default, got %q", cfg.ModbusListenAddress)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		fn   func(*Config)
	}{
		{"empty modbus listen address", func(c *Config) { c.ModbusListenAddress = "" }},
		{"negative idle timeout", func(c *Config) { c.ModbusIdleTimeout = -1 }},
		{"bad event bus network", func(c *Config) { c.EventBusNetwork = "carrier-pigeon" }},
		{"empty event bus address", func(c *Config) { c.EventBusAddress = "" }},
		{"missing db path", func(c *Config) { c.AgentDBPath = "" }},
		{"status port out of range", func(c *Config) { c.StatusPort = 70000 }},
		{"zero retain days", func(c *Config) { c.LogRetainDays = 0 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := DefaultConfig()
			c.fn(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() should reject %s", c.name)
			}
		})
	}
}

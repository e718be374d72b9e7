// Package config is the JSON configuration layer: a flat struct with json
// tags, a DefaultConfig, Load/Save against files or readers/writers, a
// Validate, and custom Marshal/UnmarshalJSON so time.Duration fields
// round-trip as human-readable strings instead of raw nanosecond integers.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Config holds every knob this personality needs at startup: where it
// listens for Modbus, where the event bus IPC socket lives, the four
// cold-start database paths, and logging settings.
type Config struct {
	// Modbus TCP server
	ModbusListenAddress string        `json:"modbus_listen_address"`
	ModbusIdleTimeout    time.Duration `json:"modbus_idle_timeout"`

	// Event bus endpoint
	EventBusNetwork string `json:"event_bus_network"` // "unix" or "tcp"
	EventBusAddress string `json:"event_bus_address"`

	// Cold-start database paths
	AgentDBPath     string `json:"agent_db_path"`
	WebconfigDBPath string `json:"webconfig_db_path"`
	VFactoryDBPath  string `json:"vfactory_db_path"`
	SystemDBPath    string `json:"system_db_path"`

	// Status/monitoring HTTP+WS endpoint, ambient to the wire protocol
	StatusPort int `json:"status_port"` // 0 disables the status server

	// Logging
	LogDirectory    string `json:"log_directory"`
	LogRetainDays   int    `json:"log_retain_days"`
	PrintkPath      string `json:"printk_path"` // /proc/sys/kernel/printk, overridable for tests
}

// DefaultConfig returns the configuration this personality boots with
// absent an on-disk override, matching the fixed on-device paths.
func DefaultConfig() *Config {
	return &Config{
		ModbusListenAddress: "127.0.0.1:502",
		ModbusIdleTimeout:   0,

		EventBusNetwork: "unix",
		EventBusAddress: "/var/lib/routing.ipc",

		AgentDBPath:     "/var/lib/vestel/agent.db",
		WebconfigDBPath: "/var/lib/vestel/webconfig.db",
		VFactoryDBPath:  "/run/media/mmcblk1p3/vfactory.db",
		SystemDBPath:    "/usr/lib/vestel/system.db",

		StatusPort: 0,

		LogDirectory:  "/var/log",
		LogRetainDays: 5,
		PrintkPath:    "/proc/sys/kernel/printk",
	}
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader, starting
// from DefaultConfig so a partial JSON document still yields valid values
// for everything it omits.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a JSON file.
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	return c.SaveConfigToWriter(file)
}

// SaveConfigToWriter saves the configuration to an io.Writer.
func (c *Config) SaveConfigToWriter(writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config JSON: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the rest of the process
// cannot safely run with.
func (c *Config) Validate() error {
	if c.ModbusListenAddress == "" {
		return fmt.Errorf("modbus_listen_address cannot be empty")
	}
	if c.ModbusIdleTimeout < 0 {
		return fmt.Errorf("modbus_idle_timeout must be non-negative, got: %s", c.ModbusIdleTimeout)
	}

	if c.EventBusNetwork != "unix" && c.EventBusNetwork != "tcp" {
		return fmt.Errorf("event_bus_network must be \"unix\" or \"tcp\", got: %s", c.EventBusNetwork)
	}
	if c.EventBusAddress == "" {
		return fmt.Errorf("event_bus_address cannot be empty")
	}

	if c.AgentDBPath == "" || c.WebconfigDBPath == "" || c.VFactoryDBPath == "" || c.SystemDBPath == "" {
		return fmt.Errorf("all four cold-start database paths must be set")
	}

	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("status_port must be between 0 and 65535, got: %d", c.StatusPort)
	}

	if c.LogDirectory == "" {
		return fmt.Errorf("log_directory cannot be empty")
	}
	if c.LogRetainDays < 1 {
		return fmt.Errorf("log_retain_days must be at least 1, got: %d", c.LogRetainDays)
	}
	if c.PrintkPath == "" {
		return fmt.Errorf("printk_path cannot be empty")
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling so ModbusIdleTimeout round
// trips as a duration string instead of a raw nanosecond count.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		ModbusIdleTimeout string `json:"modbus_idle_timeout"`
	}{
		Alias:             (*Alias)(c),
		ModbusIdleTimeout: c.ModbusIdleTimeout.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for ModbusIdleTimeout.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		ModbusIdleTimeout string `json:"modbus_idle_timeout"`
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.ModbusIdleTimeout != "" {
		d, err := time.ParseDuration(aux.ModbusIdleTimeout)
		if err != nil {
			return fmt.Errorf("invalid modbus_idle_timeout: %w", err)
		}
		c.ModbusIdleTimeout = d
	}

	return nil
}

// String returns a JSON representation of the config, for startup logging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

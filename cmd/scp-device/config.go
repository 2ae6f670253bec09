package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Config holds the device configuration. It can be loaded from a YAML file
// and is then overridden by explicitly set flags.
type Config struct {
	DeviceType     string   `yaml:"device_type"`
	ControlActions []string `yaml:"control_actions"`
	MeasureActions []string `yaml:"measure_actions"`

	// RestrictActions rejects actions outside the catalogs up front.
	RestrictActions bool `yaml:"restrict_actions"`

	Port            int           `yaml:"port"`
	PostActionDelay time.Duration `yaml:"post_action_delay"`

	Storage   string `yaml:"storage"`
	StatePath string `yaml:"state_path"`

	// MAC is the hardware address of the simulated radio.
	MAC string `yaml:"mac"`

	// Networks are the operator networks the simulated radio can reach,
	// keyed by SSID.
	Networks map[string]string `yaml:"networks"`

	MDNS        bool   `yaml:"mdns"`
	Interactive bool   `yaml:"interactive"`
	LogLevel    string `yaml:"log_level"`
	ProtocolLog string `yaml:"protocol_log"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		DeviceType:      "lamp",
		ControlActions:  []string{"on", "off"},
		MeasureActions:  []string{"temperature", "power"},
		Port:            19316,
		PostActionDelay: time.Second,
		Storage:         StorageMemory,
		MAC:             "5c:cf:7f:01:02:03",
		Networks:        map[string]string{"home": "home-psk-1234"},
		LogLevel:        "info",
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults. A
// networks table in the file replaces the default table instead of
// extending it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	defaults := cfg.Networks
	cfg.Networks = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Networks == nil {
		cfg.Networks = defaults
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DeviceType == "" {
		return fmt.Errorf("device type is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	switch c.Storage {
	case StorageMemory:
	case StorageFile, StorageSQLite:
		if c.StatePath == "" {
			return fmt.Errorf("%s storage requires a state path", c.Storage)
		}
	default:
		return fmt.Errorf("unknown storage: %s (must be memory, file, or sqlite)", c.Storage)
	}
	if _, err := net.ParseMAC(c.MAC); err != nil {
		return fmt.Errorf("invalid mac: %w", err)
	}
	return nil
}

// parseList splits a comma separated flag value.
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseNetworks parses "ssid=psk,ssid2=psk2".
func parseNetworks(s string) (map[string]string, error) {
	networks := make(map[string]string)
	for _, pair := range parseList(s) {
		ssid, psk, ok := strings.Cut(pair, "=")
		if !ok || ssid == "" {
			return nil, fmt.Errorf("invalid network %q (want ssid=psk)", pair)
		}
		networks[ssid] = psk
	}
	return networks, nil
}

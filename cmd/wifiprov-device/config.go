package main

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wifiprov/wifiprov-go/pkg/netstack"
	"github.com/wifiprov/wifiprov-go/pkg/provisioning"
)

// Config holds the device configuration. Values come from the defaults, then
// the YAML file named by -config, then flags given on the command line.
type Config struct {
	ServiceName string `yaml:"service_name"`
	Transport   string `yaml:"transport"`
	Security    uint   `yaml:"security"`
	MAC         string `yaml:"mac"`
	StateDir    string `yaml:"state_dir"`
	LogLevel    string `yaml:"log_level"`
	EventLog    string `yaml:"event_log"`

	// EventLogMaxSize rotates the event log past this many bytes. Zero
	// disables rotation.
	EventLogMaxSize int64 `yaml:"event_log_max_size"`

	// Simulated network
	ConnectFailures int    `yaml:"connect_failures"`
	IPv4            string `yaml:"ipv4"`
	IPv6            string `yaml:"ipv6"`

	// Announcement once connected
	Announce  bool   `yaml:"announce"`
	Interface string `yaml:"interface"`
	Port      uint16 `yaml:"port"`
	Firmware  string `yaml:"firmware"`

	// AutoProvision answers the provisioning session without a client.
	AutoProvision struct {
		SSID       string `yaml:"ssid"`
		Passphrase string `yaml:"passphrase"`
	} `yaml:"auto_provision"`

	StartTimeout time.Duration `yaml:"start_timeout"`
	Interactive  bool          `yaml:"interactive"`
	InvertQR     bool          `yaml:"invert_qr"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName: "PROV",
		Transport:   string(provisioning.TransportBLE),
		Security:    uint(netstack.Security1),
		MAC:         "24:6f:28:ab:cd:ef",
		StateDir:    "wifiprov-state",
		LogLevel:    "info",
		IPv4:        "192.168.4.2",
		IPv6:        "fe80::266f:28ff:feab:cdef",
		Announce:    true,
		Port:        80,
		Firmware:    "1.0.0",
	}
}

// LoadConfigFile overlays the YAML file at path onto cfg.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if !provisioning.Transport(c.Transport).Valid() {
		return fmt.Errorf("transport must be ble or softap, got %q", c.Transport)
	}
	if c.Security > uint(netstack.Security2) {
		return fmt.Errorf("security must be 0-2, got %d", c.Security)
	}
	if _, err := c.HardwareAddr(); err != nil {
		return err
	}
	if _, err := parseOptionalAddr(c.IPv4); err != nil {
		return fmt.Errorf("ipv4: %w", err)
	}
	if _, err := parseOptionalAddr(c.IPv6); err != nil {
		return fmt.Errorf("ipv6: %w", err)
	}
	if c.EventLogMaxSize < 0 {
		return fmt.Errorf("event log max size must not be negative")
	}
	if c.ConnectFailures < 0 {
		return fmt.Errorf("connect failures must not be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

// HardwareAddr parses the configured MAC.
func (c *Config) HardwareAddr() (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(c.MAC)
	if err != nil {
		return nil, fmt.Errorf("mac: %w", err)
	}
	return mac, nil
}

// Addrs returns the simulated IPv4 and IPv6 addresses. An empty or "none"
// value disables the family.
func (c *Config) Addrs() (v4, v6 netip.Addr) {
	v4, _ = parseOptionalAddr(c.IPv4)
	v6, _ = parseOptionalAddr(c.IPv6)
	return v4, v6
}

func parseOptionalAddr(s string) (netip.Addr, error) {
	if s == "" || strings.EqualFold(s, "none") {
		return netip.Addr{}, nil
	}
	return netip.ParseAddr(s)
}

// Package config loads the boot configuration: GPIO wiring, control
// channels, storage location and optional integrations. Runtime device
// settings (Wi-Fi, endpoint, credential) are not kept here; see package
// settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure loaded from YAML.
type Config struct {
	Chip           string         `yaml:"chip"`             // GPIO chip device (e.g. "gpiochip0")
	Buttons        []ButtonConfig `yaml:"buttons"`          // input channels, each bound to an API path
	StatusLED      OutputConfig   `yaml:"status_led"`       // single status output
	DebounceMS     int            `yaml:"debounce_ms"`      // minimum qualifying press
	PollIntervalMS int            `yaml:"poll_interval_ms"` // main loop cadence
	Serial         SerialConfig   `yaml:"serial"`
	Store          StoreConfig    `yaml:"store"`
	Network        NetworkConfig  `yaml:"network"`
	HTTP           HTTPConfig     `yaml:"http"`
	MQTT           MQTTConfig     `yaml:"mqtt"`
	Metrics        MetricsConfig  `yaml:"metrics"`
}

// ButtonConfig defines a GPIO input bound to an API path.
type ButtonConfig struct {
	Name     string `yaml:"name"`     // channel identifier used in logs and topics
	Pin      int    `yaml:"pin"`      // GPIO line offset
	Path     string `yaml:"path"`     // appended to the base URL on activation
	PullUp   bool   `yaml:"pullup"`   // enable internal pull-up bias
	Inverted bool   `yaml:"inverted"` // LOW = pressed
}

// OutputConfig defines a GPIO output pin.
type OutputConfig struct {
	Name     string `yaml:"name"`
	Pin      int    `yaml:"pin"`
	Inverted bool   `yaml:"inverted"` // LOW = on
}

// SerialConfig selects the control channel. An empty Port reads stdin;
// "auto" picks the first USB serial port.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// StoreConfig locates the settings database.
type StoreConfig struct {
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LinkKind names a connectivity.Link implementation.
type LinkKind string

const (
	LinkNmcli  LinkKind = "nmcli"
	LinkStatic LinkKind = "static"
)

// NetworkConfig configures the Wi-Fi link and its connection budget.
type NetworkConfig struct {
	Link       LinkKind `yaml:"link"`
	Interface  string   `yaml:"interface"`
	Attempts   int      `yaml:"attempts"`
	IntervalMS int      `yaml:"interval_ms"`
}

// HTTPConfig configures outbound requests.
type HTTPConfig struct {
	// InsecureSkipVerify disables server certificate checks on https URLs.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// MQTTConfig defines MQTT broker connection settings. An empty Broker
// disables the bridge.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. "tcp://localhost:1883"
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the reference wiring: play on GPIO17, pause on GPIO27,
// status LED on GPIO22.
func Default() Config {
	return Config{
		Chip: "gpiochip0",
		Buttons: []ButtonConfig{
			{Name: "play", Pin: 17, Path: "/play", PullUp: true, Inverted: true},
			{Name: "pause", Pin: 27, Path: "/pause", PullUp: true, Inverted: true},
		},
		StatusLED:      OutputConfig{Name: "status", Pin: 22},
		DebounceMS:     50,
		PollIntervalMS: 5,
		Serial:         SerialConfig{Baud: 115200},
		Store:          StoreConfig{Path: "settings.db", Namespace: "wallpanel"},
		Network:        NetworkConfig{Link: LinkNmcli, Interface: "wlan0", Attempts: 20, IntervalMS: 500},
		MQTT:           MQTTConfig{TopicPrefix: "wallpanel-remote", ClientID: "wallpanel-remote"},
	}
}

// Load reads path and fills unset fields from Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but returns Default when path does not
// exist. found reports whether the file was read.
func LoadOrDefault(path string) (cfg Config, found bool, err error) {
	cfg, err = Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	return cfg, err == nil, err
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Chip == "" {
		c.Chip = d.Chip
	}
	if len(c.Buttons) == 0 {
		c.Buttons = d.Buttons
	}
	if c.StatusLED == (OutputConfig{}) {
		c.StatusLED = d.StatusLED
	}
	if c.StatusLED.Name == "" {
		c.StatusLED.Name = d.StatusLED.Name
	}
	if c.DebounceMS == 0 {
		c.DebounceMS = d.DebounceMS
	}
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = d.PollIntervalMS
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = d.Serial.Baud
	}
	if c.Store.Path == "" {
		c.Store.Path = d.Store.Path
	}
	if c.Store.Namespace == "" {
		c.Store.Namespace = d.Store.Namespace
	}
	if c.Network.Link == "" {
		c.Network.Link = d.Network.Link
	}
	if c.Network.Interface == "" {
		c.Network.Interface = d.Network.Interface
	}
	if c.Network.Attempts == 0 {
		c.Network.Attempts = d.Network.Attempts
	}
	if c.Network.IntervalMS == 0 {
		c.Network.IntervalMS = d.Network.IntervalMS
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = d.MQTT.TopicPrefix
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = d.MQTT.ClientID
	}
}

// Validate reports configuration that cannot be applied.
func (c Config) Validate() error {
	var errs []error
	names := make(map[string]bool, len(c.Buttons))
	pins := map[int]string{c.StatusLED.Pin: c.StatusLED.Name}
	for i, b := range c.Buttons {
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("button %d: name is required", i))
		}
		if names[b.Name] {
			errs = append(errs, fmt.Errorf("button %s: duplicate name", b.Name))
		}
		names[b.Name] = true
		if b.Pin < 0 {
			errs = append(errs, fmt.Errorf("button %s: invalid pin %d", b.Name, b.Pin))
		}
		if owner, taken := pins[b.Pin]; taken {
			errs = append(errs, fmt.Errorf("button %s: pin %d already used by %s", b.Name, b.Pin, owner))
		}
		pins[b.Pin] = b.Name
		if b.Path == "" || b.Path[0] != '/' {
			errs = append(errs, fmt.Errorf("button %s: path must start with /", b.Name))
		}
	}
	if c.StatusLED.Pin < 0 {
		errs = append(errs, fmt.Errorf("status_led: invalid pin %d", c.StatusLED.Pin))
	}
	if c.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("debounce_ms cannot be negative"))
	}
	if c.PollIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval_ms must be >0"))
	}
	if c.Network.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("network.attempts must be >0"))
	}
	if c.Network.IntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("network.interval_ms must be >0"))
	}
	switch c.Network.Link {
	case LinkNmcli, LinkStatic:
	default:
		errs = append(errs, fmt.Errorf("network.link: unknown link %q", c.Network.Link))
	}
	return errors.Join(errs...)
}

// Debounce returns the minimum qualifying press duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// PollInterval returns the main loop cadence.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// ConnectInterval returns the spacing between link checks while connecting.
func (n NetworkConfig) ConnectInterval() time.Duration {
	return time.Duration(n.IntervalMS) * time.Millisecond
}

package config

// Configuration loading and validation for farmreg

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tturner/farmreg/internal/channel"
	"github.com/tturner/farmreg/internal/errors"
	"github.com/tturner/farmreg/internal/logging"
)

const (
	// DefaultPath is the config file used when --config is not given.
	DefaultPath = "farmreg.yaml"
	// DefaultMQTTTopic is the ThingsBoard device telemetry topic.
	DefaultMQTTTopic = "v1/devices/me/telemetry"
)

// Config is the top-level farmreg configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Collector CollectorConfig `yaml:"collector"`
	Logging   LoggingConfig   `yaml:"logging"`
	Simulator SimulatorConfig `yaml:"simulator"`
	MQTT      MQTTConfig      `yaml:"mqtt,omitempty"`
}

// DeviceConfig describes how to reach the controller.
type DeviceConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	UnitID         int    `yaml:"unit_id"`
	TimeoutMs      int    `yaml:"timeout_ms"`
	ConnectRetries int    `yaml:"connect_retries"`
	RetryDelayMs   int    `yaml:"retry_delay_ms"`
	IdleTimeoutMs  int    `yaml:"idle_timeout_ms,omitempty"`
}

// CatalogConfig selects the signal catalog. An empty path means the
// embedded greenhouse catalog.
type CatalogConfig struct {
	Path string `yaml:"path,omitempty"`
}

// CollectorConfig controls periodic sampling.
type CollectorConfig struct {
	IntervalSec int      `yaml:"interval_sec"`
	Samples     int      `yaml:"samples"`
	Signals     []string `yaml:"signals,omitempty"` // empty means the sensor set
	CSVPath     string   `yaml:"csv_path"`
	CSVDir      string   `yaml:"csv_dir,omitempty"`    // daily @YYYY-MM-DD.csv files; replaces csv_path
	BackupDir   string   `yaml:"backup_dir,omitempty"` // second copy of the daily files
	AlignSec    int      `yaml:"align_sec,omitempty"`  // cut rows on wall-clock boundaries; replaces samples
	SQLitePath  string   `yaml:"sqlite_path,omitempty"`
}

// LoggingConfig controls the logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// SimulatorConfig controls `farmreg sim`.
type SimulatorConfig struct {
	ListenIP string `yaml:"listen_ip"`
	Port     int    `yaml:"port"`
	SeedFile string `yaml:"seed_file,omitempty"`
}

// MQTTConfig publishes collector rows as telemetry. An empty broker
// disables publishing.
type MQTTConfig struct {
	Broker    string `yaml:"broker,omitempty"`
	ClientID  string `yaml:"client_id,omitempty"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
	Topic     string `yaml:"topic,omitempty"`
	QoS       int    `yaml:"qos,omitempty"`
	TimeoutMs int    `yaml:"timeout_ms,omitempty"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// CreateDefaultConfig returns a config pointing at a local simulator.
func CreateDefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Host:           "127.0.0.1",
			Port:           502,
			UnitID:         1,
			TimeoutMs:      int(channel.DefaultTimeout / time.Millisecond),
			ConnectRetries: channel.DefaultConnectRetries,
			RetryDelayMs:   int(channel.DefaultRetryDelay / time.Millisecond),
		},
		Collector: CollectorConfig{
			IntervalSec: 60,
			Samples:     3,
			CSVPath:     "farmreg.csv",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Simulator: SimulatorConfig{
			ListenIP: "0.0.0.0",
			Port:     5020,
		},
	}
}

// WriteDefaultConfig writes the default configuration to path.
func WriteDefaultConfig(path string) error {
	data, err := MarshalDefault()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// MarshalDefault renders the default configuration as YAML.
func MarshalDefault() ([]byte, error) {
	data, err := yaml.Marshal(CreateDefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}
	return data, nil
}

// LoadConfig reads, defaults and validates the config at path. With
// autoCreate a missing file is created from the defaults first.
func LoadConfig(path string, autoCreate bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if !autoCreate {
				return nil, errors.WrapConfigError(
					fmt.Errorf("config file not found: %s", path),
					path,
				)
			}
			if err := WriteDefaultConfig(path); err != nil {
				return nil, fmt.Errorf("create default config: %w", err)
			}
			data, err = os.ReadFile(path)
			if err != nil {
				return nil, errors.WrapConfigError(
					fmt.Errorf("read created config file: %w", err),
					path,
				)
			}
		} else {
			return nil, errors.WrapConfigError(
				fmt.Errorf("read config file: %w", err),
				path,
			)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// Parse decodes YAML config data, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields from CreateDefaultConfig.
func ApplyDefaults(cfg *Config) {
	def := CreateDefaultConfig()

	if cfg.Device.Port == 0 {
		cfg.Device.Port = def.Device.Port
	}
	if cfg.Device.UnitID == 0 {
		cfg.Device.UnitID = def.Device.UnitID
	}
	if cfg.Device.TimeoutMs == 0 {
		cfg.Device.TimeoutMs = def.Device.TimeoutMs
	}
	if cfg.Device.ConnectRetries == 0 {
		cfg.Device.ConnectRetries = def.Device.ConnectRetries
	}
	if cfg.Device.RetryDelayMs == 0 {
		cfg.Device.RetryDelayMs = def.Device.RetryDelayMs
	}

	if cfg.Collector.IntervalSec == 0 {
		cfg.Collector.IntervalSec = def.Collector.IntervalSec
	}
	if cfg.Collector.Samples == 0 {
		cfg.Collector.Samples = def.Collector.Samples
	}
	if cfg.Collector.CSVPath == "" {
		cfg.Collector.CSVPath = def.Collector.CSVPath
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}

	if cfg.Simulator.ListenIP == "" {
		cfg.Simulator.ListenIP = def.Simulator.ListenIP
	}
	if cfg.Simulator.Port == 0 {
		cfg.Simulator.Port = def.Simulator.Port
	}

	if cfg.MQTT.Enabled() {
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = DefaultMQTTTopic
		}
		if cfg.MQTT.TimeoutMs == 0 {
			cfg.MQTT.TimeoutMs = 10000
		}
	}
}

// Validate checks a defaulted config. Errors name the offending field.
func Validate(cfg *Config) error {
	d := cfg.Device
	if strings.TrimSpace(d.Host) == "" {
		return fmt.Errorf("device.host is required")
	}
	if err := validatePort("device.port", d.Port); err != nil {
		return err
	}
	if d.UnitID < 0 || d.UnitID > 255 {
		return fmt.Errorf("device.unit_id must be 0-255 (got %d)", d.UnitID)
	}
	if d.TimeoutMs <= 0 {
		return fmt.Errorf("device.timeout_ms must be > 0")
	}
	if d.ConnectRetries < 1 {
		return fmt.Errorf("device.connect_retries must be >= 1")
	}
	if d.RetryDelayMs < 0 {
		return fmt.Errorf("device.retry_delay_ms must be >= 0")
	}
	if d.IdleTimeoutMs < 0 {
		return fmt.Errorf("device.idle_timeout_ms must be >= 0")
	}

	c := cfg.Collector
	if c.IntervalSec < 1 {
		return fmt.Errorf("collector.interval_sec must be >= 1")
	}
	if c.Samples < 1 {
		return fmt.Errorf("collector.samples must be >= 1")
	}
	if c.AlignSec < 0 {
		return fmt.Errorf("collector.align_sec must be >= 0")
	}
	if c.AlignSec > 0 && c.AlignSec < c.IntervalSec {
		return fmt.Errorf("collector.align_sec must be >= collector.interval_sec (%d)", c.IntervalSec)
	}
	if c.BackupDir != "" && c.BackupDir == c.CSVDir {
		return fmt.Errorf("collector.backup_dir must differ from collector.csv_dir")
	}
	seen := make(map[string]bool, len(c.Signals))
	for i, name := range c.Signals {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("collector.signals[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("collector.signals[%d]: duplicate signal %q", i, name)
		}
		seen[name] = true
	}

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	if ip := cfg.Simulator.ListenIP; net.ParseIP(ip) == nil {
		return fmt.Errorf("simulator.listen_ip %q is not an IP address", ip)
	}
	if err := validatePort("simulator.port", cfg.Simulator.Port); err != nil {
		return err
	}

	if m := cfg.MQTT; m.Enabled() {
		u, err := url.Parse(m.Broker)
		if err != nil || u.Host == "" {
			return fmt.Errorf("mqtt.broker %q must be a URL such as tcp://host:1883", m.Broker)
		}
		switch u.Scheme {
		case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
		default:
			return fmt.Errorf("mqtt.broker scheme %q is not supported", u.Scheme)
		}
		if m.QoS < 0 || m.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2 (got %d)", m.QoS)
		}
		if m.TimeoutMs < 0 {
			return fmt.Errorf("mqtt.timeout_ms must be >= 0")
		}
	}

	return nil
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be 1-65535 (got %d)", field, port)
	}
	return nil
}

// ModbusConfig converts the device section into channel settings.
func (c *Config) ModbusConfig() channel.ModbusConfig {
	mc := channel.DefaultModbusConfig()
	mc.Host = c.Device.Host
	mc.Port = c.Device.Port
	mc.UnitID = byte(c.Device.UnitID)
	mc.Timeout = time.Duration(c.Device.TimeoutMs) * time.Millisecond
	mc.IdleTimeout = time.Duration(c.Device.IdleTimeoutMs) * time.Millisecond
	mc.ConnectRetries = c.Device.ConnectRetries
	mc.RetryDelay = time.Duration(c.Device.RetryDelayMs) * time.Millisecond
	mc.TraceFrames = strings.EqualFold(c.Logging.Level, "debug")
	return mc
}

// CollectInterval returns the collector interval as a duration.
func (c *Config) CollectInterval() time.Duration {
	return time.Duration(c.Collector.IntervalSec) * time.Second
}

// CollectAlign returns the row boundary as a duration; zero means rows are
// cut every collector.samples readings.
func (c *Config) CollectAlign() time.Duration {
	return time.Duration(c.Collector.AlignSec) * time.Second
}

package config

// Environment overrides, optionally read from a .env file

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DefaultEnvPath is the dotenv file read when present.
const DefaultEnvPath = ".env"

// LoadDotEnv loads variables from path into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadDotEnv(path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

// envOverride maps one variable onto a config field.
type envOverride struct {
	name  string
	apply func(cfg *Config, value string) error
}

var envOverrides = []envOverride{
	{"FARMREG_HOST", func(c *Config, v string) error { c.Device.Host = v; return nil }},
	{"FARMREG_PORT", func(c *Config, v string) error { return setInt(&c.Device.Port, v) }},
	{"FARMREG_UNIT_ID", func(c *Config, v string) error { return setInt(&c.Device.UnitID, v) }},
	{"FARMREG_TIMEOUT_MS", func(c *Config, v string) error { return setInt(&c.Device.TimeoutMs, v) }},
	{"FARMREG_CATALOG", func(c *Config, v string) error { c.Catalog.Path = v; return nil }},
	{"FARMREG_CSV_PATH", func(c *Config, v string) error { c.Collector.CSVPath = v; return nil }},
	{"FARMREG_CSV_DIR", func(c *Config, v string) error { c.Collector.CSVDir = v; return nil }},
	{"FARMREG_BACKUP_DIR", func(c *Config, v string) error { c.Collector.BackupDir = v; return nil }},
	{"FARMREG_SQLITE_PATH", func(c *Config, v string) error { c.Collector.SQLitePath = v; return nil }},
	{"FARMREG_LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"FARMREG_MQTT_BROKER", func(c *Config, v string) error { c.MQTT.Broker = v; return nil }},
	{"FARMREG_MQTT_USERNAME", func(c *Config, v string) error { c.MQTT.Username = v; return nil }},
	{"FARMREG_MQTT_PASSWORD", func(c *Config, v string) error { c.MQTT.Password = v; return nil }},
	{"FARMREG_MQTT_TOPIC", func(c *Config, v string) error { c.MQTT.Topic = v; return nil }},
}

// ApplyEnv overrides config fields from FARMREG_* variables and returns the
// names that were applied.
func ApplyEnv(cfg *Config) ([]string, error) {
	var applied []string
	for _, o := range envOverrides {
		v, ok := os.LookupEnv(o.name)
		if !ok || v == "" {
			continue
		}
		if err := o.apply(cfg, v); err != nil {
			return applied, fmt.Errorf("%s: %w", o.name, err)
		}
		applied = append(applied, o.name)
	}
	return applied, nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer %q", v)
	}
	*dst = n
	return nil
}

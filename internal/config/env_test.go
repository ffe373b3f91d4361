package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApplyEnv(t *testing.T) {
	t.Setenv("FARMREG_HOST", "greenhouse.example")
	t.Setenv("FARMREG_PORT", "9139")
	t.Setenv("FARMREG_MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("FARMREG_CSV_DIR", "sensor_data")
	t.Setenv("FARMREG_BACKUP_DIR", "sensor_backup")

	cfg := CreateDefaultConfig()
	applied, err := ApplyEnv(cfg)
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if len(applied) != 5 {
		t.Errorf("applied: got %v", applied)
	}
	if cfg.Device.Host != "greenhouse.example" || cfg.Device.Port != 9139 {
		t.Errorf("device: got %+v", cfg.Device)
	}
	if !cfg.MQTT.Enabled() {
		t.Error("mqtt should be enabled")
	}
	if cfg.Collector.CSVDir != "sensor_data" || cfg.Collector.BackupDir != "sensor_backup" {
		t.Errorf("collector dirs: got %+v", cfg.Collector)
	}

	ApplyDefaults(cfg)
	if cfg.MQTT.Topic != DefaultMQTTTopic {
		t.Errorf("mqtt topic default: got %q", cfg.MQTT.Topic)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("FARMREG_UNIT_ID", "one")
	_, err := ApplyEnv(CreateDefaultConfig())
	if err == nil || !strings.Contains(err.Error(), "FARMREG_UNIT_ID") {
		t.Fatalf("expected FARMREG_UNIT_ID error, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	loaded, err := LoadDotEnv(path)
	if err != nil || loaded {
		t.Fatalf("missing file: loaded=%v err=%v", loaded, err)
	}

	if err := os.WriteFile(path, []byte("FARMREG_TEST_DOTENV=from-file\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("FARMREG_TEST_DOTENV") })

	loaded, err = LoadDotEnv(path)
	if err != nil || !loaded {
		t.Fatalf("LoadDotEnv: loaded=%v err=%v", loaded, err)
	}
	if got := os.Getenv("FARMREG_TEST_DOTENV"); got != "from-file" {
		t.Errorf("FARMREG_TEST_DOTENV = %q", got)
	}
}

func TestValidateMQTT(t *testing.T) {
	tests := []struct {
		broker string
		qos    int
		field  string
	}{
		{"tcp://broker:1883", 1, ""},
		{"broker:1883", 0, "mqtt.broker"},
		{"http://broker", 0, "mqtt.broker"},
		{"tcp://broker:1883", 3, "mqtt.qos"},
	}
	for _, tt := range tests {
		cfg := CreateDefaultConfig()
		cfg.MQTT.Broker = tt.broker
		cfg.MQTT.QoS = tt.qos
		err := Validate(cfg)
		if tt.field == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tt.broker, err)
			}
			continue
		}
		if err == nil || !strings.HasPrefix(err.Error(), tt.field) {
			t.Errorf("%s qos %d: got %v, want %s error", tt.broker, tt.qos, err, tt.field)
		}
	}
}

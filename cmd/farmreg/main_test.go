package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "farmreg version dev") {
		t.Errorf("output: %q", out)
	}
}

func TestCatalogList(t *testing.T) {
	out, err := runCLI(t, "catalog", "list", "--category", "sensors", "--names")
	if err != nil {
		t.Fatalf("catalog list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 10 {
		t.Errorf("sensor names: got %d, want 10:\n%s", len(lines), out)
	}

	out, err = runCLI(t, "catalog", "list", "--address", "80")
	if err != nil {
		t.Fatalf("catalog list --address: %v", err)
	}
	if !strings.Contains(out, "1 signal(s)") {
		t.Errorf("address 80 listing:\n%s", out)
	}

	if _, err := runCLI(t, "catalog", "list", "--kind", "float"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestCatalogShow(t *testing.T) {
	out, err := runCLI(t, "catalog", "show", "irrigation_start_hour")
	if err != nil {
		t.Fatalf("catalog show: %v", err)
	}
	if !strings.Contains(out, "2-7") {
		t.Errorf("bits missing:\n%s", out)
	}

	_, err = runCLI(t, "catalog", "show", "indoor_current_temp")
	if err == nil || !strings.Contains(err.Error(), "Did you mean: indoor_current_temperature") {
		t.Errorf("expected suggestion, got %v", err)
	}
}

func TestCatalogValidate(t *testing.T) {
	out, err := runCLI(t, "catalog", "validate")
	if err != nil {
		t.Fatalf("catalog validate: %v", err)
	}
	if !strings.Contains(out, "225 signal(s)") {
		t.Errorf("output:\n%s", out)
	}
	if _, err := runCLI(t, "catalog", "validate", "--strict"); err == nil {
		t.Error("expected --strict to fail on lint warnings")
	}

	bad := writeFile(t, "bad.yaml", "version: 1\nname: bad\nsignals:\n  - name: x\n    kind: bit\n    access: read\n    address: 1\n")
	if _, err := runCLI(t, "catalog", "validate", bad); err == nil {
		t.Error("expected error for bit signal without bit")
	}
}

func TestReadSimulated(t *testing.T) {
	seed := writeFile(t, "seed.yaml", "registers:\n  70: 65529\n  66: 16384\n  80: 1\n  81: 2\n")

	out, err := runCLI(t, "read", "indoor_current_temperature", "--simulate", "--seed", seed)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(out, "-0.7 °C") || !strings.Contains(out, "0xFFF9") {
		t.Errorf("output:\n%s", out)
	}

	out, err = runCLI(t, "read", "rain_sensor_detecting", "time_remaining_until_next_irrigation", "--simulate", "--seed", seed)
	if err != nil {
		t.Fatalf("read many: %v", err)
	}
	if !strings.Contains(out, "65538") {
		t.Errorf("composite missing:\n%s", out)
	}

	_, err = runCLI(t, "read", "indoor_current_temperature", "no_such_signal", "--simulate")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 signal(s) failed") {
		t.Errorf("expected partial failure, got %v", err)
	}

	if _, err := runCLI(t, "read", "--simulate"); err == nil {
		t.Error("expected error without names")
	}
}

func TestWriteSimulated(t *testing.T) {
	out, err := runCLI(t, "write", "circulation_fan_on_temperature", "25.3", "--verify", "--simulate")
	if err != nil {
		t.Fatalf("write --verify: %v", err)
	}
	if !strings.Contains(out, "25.3") || !strings.Contains(out, "verified") {
		t.Errorf("output:\n%s", out)
	}

	out, err = runCLI(t, "write", "circulation_fan_temperature_control_enable", "on", "--simulate")
	if err != nil {
		t.Fatalf("write bit: %v", err)
	}
	if !strings.Contains(out, "= 1") {
		t.Errorf("output:\n%s", out)
	}

	_, err = runCLI(t, "write", "indoor_current_temperature", "20", "--simulate")
	if err == nil || !strings.Contains(err.Error(), "read-only") {
		t.Errorf("expected read-only error, got %v", err)
	}

	_, err = runCLI(t, "write", "irrigation_start_hour", "99", "--simulate")
	if err == nil || !strings.Contains(err.Error(), "cannot be encoded") {
		t.Errorf("expected range error, got %v", err)
	}

	if _, err := runCLI(t, "write", "irrigation_start_hour", "soon", "--simulate"); err == nil {
		t.Error("expected parse error")
	}
}

func TestRawSimulated(t *testing.T) {
	out, err := runCLI(t, "raw", "write", "9", "0x9800", "--simulate")
	if err != nil {
		t.Fatalf("raw write: %v", err)
	}
	if !strings.Contains(out, "0x9800") {
		t.Errorf("output:\n%s", out)
	}

	_, err = runCLI(t, "raw", "write", "60", "1", "--simulate")
	if err == nil || !strings.Contains(err.Error(), "settings area") {
		t.Errorf("expected settings-area error, got %v", err)
	}

	out, err = runCLI(t, "raw", "read", "80", "2", "--simulate")
	if err != nil {
		t.Fatalf("raw read: %v", err)
	}
	if !strings.Contains(out, "time_remaining_until_next_irrigation") {
		t.Errorf("output:\n%s", out)
	}

	if _, err := runCLI(t, "raw", "read", "0", "126", "--simulate"); err == nil {
		t.Error("expected count error")
	}
}

func TestWriteNegativeValue(t *testing.T) {
	out, err := runCLI(t, "write", "circulation_fan_on_temperature", "-5", "--verify", "--simulate")
	if err != nil {
		t.Fatalf("write -5: %v", err)
	}
	if !strings.Contains(out, "-5.0") || !strings.Contains(out, "verified") {
		t.Errorf("output:\n%s", out)
	}

	out, err = runCLI(t, "--simulate", "write", "temperature_diff_open_close_deviation", "--", "-1.5")
	if err != nil {
		t.Fatalf("write -- -1.5: %v", err)
	}
	if !strings.Contains(out, "= -1.5") {
		t.Errorf("output:\n%s", out)
	}

	_, err = runCLI(t, "write", "circulation_fan_on_temperature", "-5", "7", "--simulate")
	if err == nil || !strings.Contains(err.Error(), "unexpected argument") {
		t.Errorf("expected extra argument error, got %v", err)
	}
}

func TestCollectSimulated(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out.csv")
	dbPath := filepath.Join(dir, "out.db")
	out, err := runCLI(t, "collect", "--simulate", "--rows", "2", "--samples", "2", "--interval", "1ms", "--csv", csvPath,
		"--sqlite", dbPath, "--signals", "indoor_current_temperature,rain_sensor_detecting")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !strings.Contains(out, "row 2") {
		t.Errorf("output:\n%s", out)
	}

	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines: got %d, want 3:\n%s", len(lines), data)
	}
	if lines[0] != "timestamp,run_id,indoor_current_temperature,rain_sensor_detecting" {
		t.Errorf("header: %q", lines[0])
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("sqlite database not created: %v", err)
	}
}

func TestCollectDailyFilesWithBackup(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "sensor_data")
	backup := filepath.Join(dir, "desktop")
	_, err := runCLI(t, "collect", "--simulate", "--rows", "2", "--samples", "1", "--interval", "1ms",
		"--csv-dir", primary, "--backup-dir", backup, "--signals", "indoor_current_temperature,outdoor_wind_speed")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	for _, d := range []string{primary, backup} {
		files, err := filepath.Glob(filepath.Join(d, "@*.csv"))
		if err != nil || len(files) == 0 {
			t.Fatalf("no daily files in %s: %v", d, err)
		}
		rows := 0
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				t.Fatalf("read %s: %v", f, err)
			}
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if lines[0] != "timestamp,run_id,indoor_current_temperature,outdoor_wind_speed" {
				t.Errorf("%s header: %q", f, lines[0])
			}
			rows += len(lines) - 1
		}
		if rows != 2 {
			t.Errorf("%s: got %d rows, want 2", d, rows)
		}
	}
}

func TestCollectRejectsBadOutputs(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "collect", "--simulate", "--rows", "1", "--csv", filepath.Join(dir, "a.csv"),
		"--signals", "indoor_current_temperature,indoor_current_temperature")
	if err == nil || !strings.Contains(err.Error(), "listed twice") {
		t.Errorf("expected duplicate signal error, got %v", err)
	}

	_, err = runCLI(t, "collect", "--simulate", "--rows", "1", "--csv", filepath.Join(dir, "b.csv"),
		"--csv-dir", dir)
	if err == nil {
		t.Error("expected --csv and --csv-dir to conflict")
	}
}

func TestConfigCommands(t *testing.T) {
	out, err := runCLI(t, "config", "print-default")
	if err != nil {
		t.Fatalf("print-default: %v", err)
	}
	if !strings.Contains(out, "device:") || !strings.Contains(out, "collector:") {
		t.Errorf("output:\n%s", out)
	}

	good := writeFile(t, "farmreg.yaml", "device:\n  host: 10.1.1.1\n")
	out, err = runCLI(t, "config", "validate", "--config", good)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "port: 502") {
		t.Errorf("defaults not shown:\n%s", out)
	}

	bad := writeFile(t, "bad.yaml", "device:\n  host: 10.1.1.1\n  port: 99999\n")
	_, err = runCLI(t, "config", "validate", "--config", bad)
	if err == nil || !strings.Contains(err.Error(), "device.port") {
		t.Errorf("expected device.port error, got %v", err)
	}

	_, err = runCLI(t, "config", "validate", "--port", "70000")
	if err == nil || !strings.Contains(err.Error(), "device.port") {
		t.Errorf("expected override validation error, got %v", err)
	}
}

func TestWatchRejectsBadArgs(t *testing.T) {
	if _, err := runCLI(t, "watch", "--simulate", "--interval", "0s"); err == nil {
		t.Error("expected error for zero interval")
	}

	_, err := runCLI(t, "watch", "--simulate", "indoor_current_temperatur")
	if err == nil || !strings.Contains(err.Error(), "indoor_current_temperatur") {
		t.Errorf("unknown signal: got %v", err)
	}
}

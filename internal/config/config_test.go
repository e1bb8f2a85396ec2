package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := Default()
	if cfg.ExtractorPath != want.ExtractorPath {
		t.Errorf("ExtractorPath = %q, want %q", cfg.ExtractorPath, want.ExtractorPath)
	}
	if cfg.DBPath != want.DBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, want.DBPath)
	}
	if cfg.ListenAddr != want.ListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, want.ListenAddr)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stk.yaml")
	content := `
extractor_path: /opt/rfe/RecFileExtractor.exe
db_path: /data/results.db
output_dir: /data/out
redis_addr: localhost:6379
watch_interval: 5s
can:
  speed:
    id: 0x123
    byte: 0
    factor: 0.01
  accel:
    id: 0x124
    byte: 2
    factor: 0.001
    signed: true
  yaw_rate:
    id: 0x125
    byte: 0
    factor: 0.0001
    signed: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ExtractorPath != "/opt/rfe/RecFileExtractor.exe" {
		t.Errorf("ExtractorPath = %q", cfg.ExtractorPath)
	}
	if cfg.DBPath != "/data/results.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.WatchEvery() != 5*time.Second {
		t.Errorf("WatchEvery() = %s, want 5s", cfg.WatchEvery())
	}
	if cfg.CAN.Speed.ID != 0x123 || cfg.CAN.Speed.Factor != 0.01 {
		t.Errorf("CAN.Speed = %+v", cfg.CAN.Speed)
	}
	if !cfg.CAN.Accel.Signed || cfg.CAN.Accel.Byte != 2 {
		t.Errorf("CAN.Accel = %+v", cfg.CAN.Accel)
	}
	// defaults survive for omitted fields
	if cfg.ListenAddr != Default().ListenAddr {
		t.Errorf("ListenAddr = %q, want default", cfg.ListenAddr)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stk.yaml")
	if err := os.WriteFile(path, []byte("db_path: /from/file.db\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvDB, "/from/env.db")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBPath != "/from/env.db" {
		t.Errorf("DBPath = %q, want env override", cfg.DBPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	json := filepath.Join(dir, "stk.json")
	if err := os.WriteFile(json, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(json); err == nil {
		t.Error("Load() accepted a non-YAML extension")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte(":\n  - ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("Load() accepted malformed YAML")
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load() accepted a missing file")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.ExtractorPath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted empty extractor_path")
	}

	cfg = Default()
	cfg.CAN.Speed.ID = 0x100
	cfg.CAN.Speed.Byte = 7
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted out-of-range byte offset")
	}

	cfg = Default()
	cfg.WatchInterval = "soon"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted malformed watch_interval")
	}
}

func TestArtifactDirs(t *testing.T) {
	cfg := Config{OutputDir: "/data/out"}
	if got := cfg.PlotDir(); got != filepath.Join("/data/out", "plots") {
		t.Errorf("PlotDir() = %q", got)
	}
	if got := cfg.ReportDir(); got != filepath.Join("/data/out", "reports") {
		t.Errorf("ReportDir() = %q", got)
	}
	if got := cfg.ExtractDir(); got != filepath.Join("/data/out", "extract") {
		t.Errorf("ExtractDir() = %q", got)
	}
}

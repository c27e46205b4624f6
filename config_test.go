package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\"): %v", err)
	}
	if cfg.Server.Port != 7010 {
		t.Errorf("default Server.Port = %d, want 7010", cfg.Server.Port)
	}
	if cfg.Server.ServerName != "KREIOS-150-SIM" {
		t.Errorf("default Server.ServerName = %q", cfg.Server.ServerName)
	}
	if cfg.Simulator.TimeScale != 1.0 {
		t.Errorf("default Simulator.TimeScale = %g, want 1.0", cfg.Simulator.TimeScale)
	}
	if cfg.Health.Listen != ":8088" {
		t.Errorf("default Health.Listen = %q, want :8088", cfg.Health.Listen)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := "server:\n  host: 127.0.0.1\n  port: 9999\nsimulator:\n  time_scale: 2.5\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9999 {
		t.Errorf("Server = %+v, want host 127.0.0.1 port 9999", cfg.Server)
	}
	if cfg.Simulator.TimeScale != 2.5 {
		t.Errorf("Simulator.TimeScale = %g, want 2.5", cfg.Simulator.TimeScale)
	}
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 1111\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SIMULATOR_PORT", "2222")
	t.Setenv("SIMULATOR_HOST", "192.0.2.1")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 2222 {
		t.Errorf("Server.Port = %d, want env override 2222", cfg.Server.Port)
	}
	if cfg.Server.Host != "192.0.2.1" {
		t.Errorf("Server.Host = %q, want env override 192.0.2.1", cfg.Server.Host)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject a port outside 1-65535")
	}
}

func TestValidateRejectsNonPositiveTimeScale(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg.Simulator.TimeScale = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject a non-positive time scale")
	}
}

package unfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%q): %v", p, err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "unmta.toml", `
[smtp]
hostname = "mx.example.org"
`)

	tr, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tr.SMTP.Port != 2525 {
		t.Errorf("Port = %d, want default 2525", tr.SMTP.Port)
	}
	if tr.SMTP.Hostname != "mx.example.org" {
		t.Errorf("Hostname = %q", tr.SMTP.Hostname)
	}
	if !tr.Auth.RequireTLS {
		t.Errorf("Auth.RequireTLS default should be true")
	}
}

type pluginConfig struct {
	Greeting string `toml:"greeting"`
	Enabled  bool   `toml:"enabled"`
}

func TestPluginConfigInlineAndOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "unmta.toml", `
[plugins.greeter]
greeting = "hello"
enabled = true
`)
	writeFile(t, dir, "greeter.toml", `
greeting = "overridden"
`)

	tr, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var cfg pluginConfig
	if err := tr.PluginConfig("greeter", &cfg); err != nil {
		t.Fatalf("PluginConfig: %v", err)
	}
	if cfg.Greeting != "overridden" {
		t.Errorf("Greeting = %q, want %q", cfg.Greeting, "overridden")
	}
	if !cfg.Enabled {
		t.Errorf("Enabled should still be true from inline section")
	}
}

func TestPluginConfigMissingPluginIsZeroValue(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "unmta.toml", "")
	tr, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var cfg pluginConfig
	if err := tr.PluginConfig("nonexistent", &cfg); err != nil {
		t.Fatalf("PluginConfig: %v", err)
	}
	if cfg.Greeting != "" || cfg.Enabled {
		t.Errorf("expected zero value, got %+v", cfg)
	}
}

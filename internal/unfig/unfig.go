// Package unfig implements UnMTA's configuration tree.
//
// It mirrors the pattern chasquid uses in internal/config: a typed struct
// pre-populated with defaults, merged with whatever the configuration file
// provides. Unlike chasquid (which reads a textproto-encoded protobuf),
// UnMTA's configuration is TOML, decoded with github.com/BurntSushi/toml
// (see DESIGN.md for why this dependency, rather than a teacher one, was
// picked).
//
// Per-plugin configuration is read lazily: the [plugins] table decodes into
// opaque toml.Primitive values, keyed by plugin name, and a plugin calls
// PluginConfig to decode its own section (optionally overridden by a
// separate file).
package unfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// SMTPSection is the [smtp] table.
type SMTPSection struct {
	Port                     int    `toml:"port"`
	Listen                   string `toml:"listen"`
	Hostname                 string `toml:"hostname"`
	InactivityTimeoutSec     int    `toml:"inactivity_timeout"`
	GracefulStopTimeoutSec   int    `toml:"graceful_stop_timeout"`
	MaxConsecutiveErrors     int    `toml:"max_consecutive_errors"`
	PerIPConnectionsInterval int    `toml:"per_ip_connections_per_interval"`
	MaxMessageSizeBytes      int64  `toml:"max_message_size_bytes"`
}

// AuthSection is the [auth] table.
type AuthSection struct {
	Enable      bool `toml:"enable"`
	RequireTLS  bool `toml:"require_tls"`
}

// TLSSection is the [tls] table.
type TLSSection struct {
	EnableStartTLS bool   `toml:"enable_starttls"`
	Key            string `toml:"key"`
	Cert           string `toml:"cert"`
}

// LogSection is the [log] table.
type LogSection struct {
	Level          string `toml:"level"`
	MetricsAddress string `toml:"metrics_address"`
}

// Tree is the root of the configuration: a read-only key/value tree, once
// loaded. Plugins must not mutate it; the core never mutates it after Load.
type Tree struct {
	SMTP    SMTPSection                   `toml:"smtp"`
	Auth    AuthSection                   `toml:"auth"`
	TLS     TLSSection                    `toml:"tls"`
	Log     LogSection                    `toml:"log"`
	Plugins map[string]toml.Primitive     `toml:"plugins"`

	meta toml.MetaData
	// Dir to look for <plugin_name>.toml override files, set to the
	// directory the main config file lives in unless overridden.
	OverrideDir string
}

func defaults() *Tree {
	return &Tree{
		SMTP: SMTPSection{
			Port:                     2525,
			Listen:                   "localhost",
			InactivityTimeoutSec:     300,
			GracefulStopTimeoutSec:   300,
			MaxConsecutiveErrors:     3,
			PerIPConnectionsInterval: 0, // 0 disables the rate limit.
		},
		Auth: AuthSection{
			Enable:     false,
			RequireTLS: true,
		},
		Log: LogSection{
			Level: "info",
		},
	}
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Tree, error) {
	t := defaults()
	meta, err := toml.DecodeFile(path, t)
	if err != nil {
		return nil, fmt.Errorf("unfig: failed to load %q: %w", path, err)
	}
	t.meta = meta
	t.OverrideDir = filepath.Dir(path)

	if t.SMTP.Hostname == "" {
		t.SMTP.Hostname, err = os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("unfig: could not determine hostname: %w", err)
		}
	}
	return t, nil
}

// PluginConfig decodes the configuration for a single plugin into out,
// starting from the inline [plugins.<name>] table (if any), then applying
// <OverrideDir>/<name>.toml on top of it if that file exists. Keys present
// in the override file win on collision; keys it doesn't mention keep
// whatever the inline section (or out's prior contents) already had.
func (t *Tree) PluginConfig(name string, out interface{}) error {
	if prim, ok := t.Plugins[name]; ok {
		if err := t.meta.PrimitiveDecode(prim, out); err != nil {
			return fmt.Errorf("unfig: decoding inline section for plugin %q: %w", name, err)
		}
	}

	overridePath := filepath.Join(t.OverrideDir, name+".toml")
	if _, err := os.Stat(overridePath); err == nil {
		if _, err := toml.DecodeFile(overridePath, out); err != nil {
			return fmt.Errorf("unfig: decoding override file for plugin %q: %w", name, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("unfig: checking override file for plugin %q: %w", name, err)
	}

	return nil
}

// Package greeter is a worked example plugin: it customizes the banner
// written on accept, reading its own [plugins.greeter] config section via
// internal/unfig. It exists to exercise the plugin/config/hook wiring
// end to end, the way chasquid's own handlers (HELO, RSET, ...) return
// flavor text pulled from a fixed slice rather than a bare "OK".
package greeter

import (
	"fmt"

	"github.com/unmta/unmta/internal/smtp/response"
	"github.com/unmta/unmta/internal/smtp/session"
	"github.com/unmta/unmta/internal/unfig"
)

// Config is greeter's [plugins.greeter] section.
type Config struct {
	Greeting string `toml:"greeting"`
	Enabled  bool   `toml:"enabled"`
}

// Plugin implements plugin.ConnectHook.
type Plugin struct {
	cfg Config
}

// New loads greeter's configuration from tree and returns the plugin.
// Enabled defaults to true if the section is absent.
func New(tree *unfig.Tree) (*Plugin, error) {
	cfg := Config{Greeting: "Welcome", Enabled: true}
	if err := tree.PluginConfig("greeter", &cfg); err != nil {
		return nil, fmt.Errorf("greeter: loading config: %w", err)
	}
	return &Plugin{cfg: cfg}, nil
}

func (p *Plugin) PluginName() string { return "greeter" }

func (p *Plugin) OnConnect(h session.Handle) *response.Response {
	if !p.cfg.Enabled {
		return nil
	}
	r := response.Connect.Accept(fmt.Sprintf("%s ESMTP UnMTA", p.cfg.Greeting))
	return &r
}

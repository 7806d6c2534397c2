// Package plugin defines the Plugin type and the ordered, per-server
// Plugin Manager registry (spec §4.4).
//
// chasquid has no plugin concept; the closest precedent in the pack is
// foxcpp-maddy's module.Check/EarlyCheck optional-interface pattern
// (other_examples/7980885c_foxcpp-maddy__framework-module-check.go.go):
// a module implements only the checks it cares about, and the framework
// type-asserts for each one. Hooks here follow the same shape — Plugin
// itself only names the plugin, and each hook is a separate interface a
// plugin opts into by implementing it.
//
// Per spec §9's design note, the registry is not a process-wide
// singleton: it's owned by the Server (see internal/smtp/server), so two
// servers can run in one process with independent plugin chains and tests
// get a clean slate each time.
package plugin

import (
	"fmt"

	"github.com/unmta/unmta/internal/smtp/address"
	"github.com/unmta/unmta/internal/smtp/command"
	"github.com/unmta/unmta/internal/smtp/response"
	"github.com/unmta/unmta/internal/smtp/session"
)

// Plugin is the minimal contract every plugin satisfies. Everything else
// is opt-in via the hook interfaces below.
type Plugin interface {
	PluginName() string
}

// Hook interfaces, one per SMTP hook named in spec §4.8. A plugin
// implements whichever subset applies to it; the dispatcher in
// internal/smtp/hooks type-asserts for each in turn.

type ConnectHook interface {
	OnConnect(h session.Handle) *response.Response
}

type HeloHook interface {
	OnHelo(h session.Handle, hostname string, verb string) *response.Response
}

type AuthHook interface {
	OnAuth(h session.Handle, username, password string) *response.Response
}

type MailFromHook interface {
	OnMailFrom(h session.Handle, addr address.Address, cmd command.Command) *response.Response
}

type RcptToHook interface {
	OnRcptTo(h session.Handle, addr address.Address, cmd command.Command) *response.Response
}

type DataStartHook interface {
	OnDataStart(h session.Handle) *response.Response
}

type DataEndHook interface {
	OnDataEnd(h session.Handle) *response.Response
}

type QuitHook interface {
	OnQuit(h session.Handle) *response.Response
}

// CloseHook's return value is ignored by the dispatcher: onClose fires
// after the socket is already gone (spec §4.6).
type CloseHook interface {
	OnClose(h session.Handle)
}

type RsetHook interface {
	OnRset(h session.Handle) *response.Response
}

type HelpHook interface {
	OnHelp(h session.Handle) *response.Response
}

type NoopHook interface {
	OnNoop(h session.Handle) *response.Response
}

type VrfyHook interface {
	OnVrfy(h session.Handle, cmd command.Command) *response.Response
}

type UnknownHook interface {
	OnUnknown(h session.Handle, cmd command.Command) *response.Response
}

// ServerStartHook and ServerStopHook are invoked once per server
// lifecycle, not per session.
type ServerStartHook interface {
	OnServerStart() error
}

type ServerStopHook interface {
	OnServerStop() error
}

// Manager is the ordered, per-server plugin registry.
type Manager struct {
	plugins []Plugin
	byName  map[string]bool
}

// NewManager returns an empty registry.
func NewManager() *Manager {
	return &Manager{byName: make(map[string]bool)}
}

// Load appends plugins to the registry in the given order. Registration
// order is hook-invocation order for the lifetime of the server (spec
// §4.4). A duplicate PluginName is rejected without registering any of
// the remaining plugins in the call.
func (m *Manager) Load(plugins ...Plugin) error {
	for _, p := range plugins {
		name := p.PluginName()
		if name == "" {
			return fmt.Errorf("plugin: plugin at position %d has an empty PluginName", len(m.plugins))
		}
		if m.byName[name] {
			return fmt.Errorf("plugin: duplicate plugin name %q", name)
		}
		m.byName[name] = true
		m.plugins = append(m.plugins, p)
	}
	return nil
}

// Plugins returns the registered plugins in registration order. Callers
// must not mutate the returned slice.
func (m *Manager) Plugins() []Plugin {
	return m.plugins
}

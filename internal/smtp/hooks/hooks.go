// Package hooks implements the Hook Dispatcher (spec §4.6): it walks the
// Plugin Manager's registry in order for a given event, invokes whichever
// plugins opted into that hook, and honors first-response-wins
// short-circuiting.
//
// Grounded on chasquid's own handler dispatch in
// internal/smtpsrv/conn.go, which loops a fixed sequence of steps per
// command and bails on the first terminal outcome; generalized here to an
// open plugin chain instead of a fixed step list. Each hook is dispatched
// by its own function rather than through a single reflective dispatch
// loop, per spec §9's closed-hook-set design note: every hook has an
// exact payload tuple and an allowed Response phase, which a generic
// dispatcher can't express without losing that at compile time.
package hooks

import (
	"time"

	"github.com/unmta/unmta/internal/smtp/address"
	"github.com/unmta/unmta/internal/smtp/command"
	"github.com/unmta/unmta/internal/smtp/plugin"
	"github.com/unmta/unmta/internal/smtp/response"
	"github.com/unmta/unmta/internal/smtp/session"
	"github.com/unmta/unmta/internal/metrics"
	"github.com/unmta/unmta/internal/unlog"
)

// Dispatcher holds the dependencies every hook invocation needs: the
// plugin registry to walk and a logger for swallowed handler failures.
// It carries no session state itself, so one Dispatcher serves every
// connection on a Server.
type Dispatcher struct {
	Manager *plugin.Manager
	Log     *unlog.Logger
}

// New returns a Dispatcher over mgr, logging swallowed plugin panics to
// log.
func New(mgr *plugin.Manager, log *unlog.Logger) *Dispatcher {
	return &Dispatcher{Manager: mgr, Log: log}
}

// call invokes fn for plugin p, recovering a panic and treating it (like
// a returned error would be) as "no response, continue" per spec §4.6
// step 3. The hookName is only used for logging and metrics.
func (d *Dispatcher) call(hookName string, p plugin.Plugin, fn func() *response.Response) (resp *response.Response) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PluginHandlerErrorsTotal.WithLabelValues(p.PluginName(), hookName).Inc()
			d.Log.Errorf("plugin %q panicked in %s: %v", p.PluginName(), hookName, r)
			resp = nil
		}
	}()
	return fn()
}

func (d *Dispatcher) observe(hookName string, start time.Time) {
	metrics.HookDispatchSeconds.WithLabelValues(hookName).Observe(time.Since(start).Seconds())
}

// DispatchConnect runs onConnect for every plugin implementing
// ConnectHook, in registration order, stopping at the first returned
// Response.
func (d *Dispatcher) DispatchConnect(sess *session.Session) *response.Response {
	defer d.observe("onConnect", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.ConnectHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onConnect", p, func() *response.Response { return hp.OnConnect(h) }); resp != nil {
			return resp
		}
	}
	return nil
}

func (d *Dispatcher) DispatchHelo(sess *session.Session, hostname, verb string) *response.Response {
	defer d.observe("onHelo", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.HeloHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onHelo", p, func() *response.Response { return hp.OnHelo(h, hostname, verb) }); resp != nil {
			return resp
		}
	}
	return nil
}

func (d *Dispatcher) DispatchAuth(sess *session.Session, username, password string) *response.Response {
	defer d.observe("onAuth", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.AuthHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onAuth", p, func() *response.Response { return hp.OnAuth(h, username, password) }); resp != nil {
			return resp
		}
	}
	return nil
}

func (d *Dispatcher) DispatchMailFrom(sess *session.Session, addr address.Address, cmd command.Command) *response.Response {
	defer d.observe("onMailFrom", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.MailFromHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onMailFrom", p, func() *response.Response { return hp.OnMailFrom(h, addr, cmd) }); resp != nil {
			return resp
		}
	}
	return nil
}

func (d *Dispatcher) DispatchRcptTo(sess *session.Session, addr address.Address, cmd command.Command) *response.Response {
	defer d.observe("onRcptTo", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.RcptToHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onRcptTo", p, func() *response.Response { return hp.OnRcptTo(h, addr, cmd) }); resp != nil {
			return resp
		}
	}
	return nil
}

func (d *Dispatcher) DispatchDataStart(sess *session.Session) *response.Response {
	defer d.observe("onDataStart", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.DataStartHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onDataStart", p, func() *response.Response { return hp.OnDataStart(h) }); resp != nil {
			return resp
		}
	}
	return nil
}

func (d *Dispatcher) DispatchDataEnd(sess *session.Session) *response.Response {
	defer d.observe("onDataEnd", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.DataEndHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onDataEnd", p, func() *response.Response { return hp.OnDataEnd(h) }); resp != nil {
			return resp
		}
	}
	return nil
}

func (d *Dispatcher) DispatchQuit(sess *session.Session) *response.Response {
	defer d.observe("onQuit", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.QuitHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onQuit", p, func() *response.Response { return hp.OnQuit(h) }); resp != nil {
			return resp
		}
	}
	return nil
}

// DispatchClose runs onClose for every plugin implementing CloseHook.
// Unlike every other hook there is no short-circuiting and no Response to
// collect: the socket is already gone by the time onClose fires (spec
// §4.6), so every plugin that cares runs, in order, unconditionally.
func (d *Dispatcher) DispatchClose(sess *session.Session) {
	defer d.observe("onClose", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.CloseHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		d.call("onClose", p, func() *response.Response { hp.OnClose(h); return nil })
	}
}

func (d *Dispatcher) DispatchRset(sess *session.Session) *response.Response {
	defer d.observe("onRset", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.RsetHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onRset", p, func() *response.Response { return hp.OnRset(h) }); resp != nil {
			return resp
		}
	}
	return nil
}

func (d *Dispatcher) DispatchHelp(sess *session.Session) *response.Response {
	defer d.observe("onHelp", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.HelpHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onHelp", p, func() *response.Response { return hp.OnHelp(h) }); resp != nil {
			return resp
		}
	}
	return nil
}

func (d *Dispatcher) DispatchNoop(sess *session.Session) *response.Response {
	defer d.observe("onNoop", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.NoopHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onNoop", p, func() *response.Response { return hp.OnNoop(h) }); resp != nil {
			return resp
		}
	}
	return nil
}

func (d *Dispatcher) DispatchVrfy(sess *session.Session, cmd command.Command) *response.Response {
	defer d.observe("onVrfy", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.VrfyHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onVrfy", p, func() *response.Response { return hp.OnVrfy(h, cmd) }); resp != nil {
			return resp
		}
	}
	return nil
}

func (d *Dispatcher) DispatchUnknown(sess *session.Session, cmd command.Command) *response.Response {
	defer d.observe("onUnknown", time.Now())
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.UnknownHook)
		if !ok {
			continue
		}
		h := sess.Handle(p.PluginName())
		if resp := d.call("onUnknown", p, func() *response.Response { return hp.OnUnknown(h, cmd) }); resp != nil {
			return resp
		}
	}
	return nil
}

// DispatchServerStart runs onServerStart for every plugin implementing
// ServerStartHook, in order, and is awaited to completion before the
// server accepts connections. A plugin error aborts startup (spec §4.8,
// §7).
func (d *Dispatcher) DispatchServerStart() error {
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.ServerStartHook)
		if !ok {
			continue
		}
		if err := hp.OnServerStart(); err != nil {
			return err
		}
	}
	return nil
}

// DispatchServerStop runs onServerStop for every plugin implementing
// ServerStopHook, once, after every open connection has finished or the
// graceful-stop timeout elapsed.
func (d *Dispatcher) DispatchServerStop() {
	for _, p := range d.Manager.Plugins() {
		hp, ok := p.(plugin.ServerStopHook)
		if !ok {
			continue
		}
		if err := hp.OnServerStop(); err != nil {
			d.Log.Errorf("plugin %q returned error from onServerStop: %v", p.PluginName(), err)
		}
	}
}

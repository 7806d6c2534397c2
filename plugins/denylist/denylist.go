// Package denylist is a worked example plugin: it rejects RCPT TO for a
// fixed set of addresses with a custom, non-whitelisted reply code,
// exercising response.Any (spec §4.2's unrestricted escape hatch).
//
// The default entry reproduces the documentation's own worked example:
// rejecting mail for a recipient whose employment has, creatively
// speaking, been terminated.
package denylist

import (
	"github.com/unmta/unmta/internal/smtp/address"
	"github.com/unmta/unmta/internal/smtp/command"
	"github.com/unmta/unmta/internal/smtp/response"
	"github.com/unmta/unmta/internal/smtp/session"
)

// Plugin rejects RCPT TO for any address in Denied.
type Plugin struct {
	// Denied maps a "local@domain" address, in the form address.Address's
	// String method returns (domain lowercased, ASCII local part kept as
	// sent), to the message sent back to the client. Matching is exact.
	Denied map[string]string
}

// New returns a denylist plugin seeded with the documentation's worked
// example.
func New() *Plugin {
	return &Plugin{
		Denied: map[string]string{
			"milton.waddams@initech.com": "Yeah, we can't actually find a record of him being a current employee here",
		},
	}
}

func (p *Plugin) PluginName() string { return "denylist" }

func (p *Plugin) OnRcptTo(h session.Handle, addr address.Address, cmd command.Command) *response.Response {
	msg, denied := p.Denied[addr.String()]
	if !denied {
		return nil
	}
	r := response.Any(response.RcptTo, 421, msg)
	return &r
}

package denylist

import (
	"testing"

	"github.com/unmta/unmta/internal/smtp/address"
	"github.com/unmta/unmta/internal/smtp/command"
	"github.com/unmta/unmta/internal/smtp/session"
)

func TestRejectsDeniedRecipient(t *testing.T) {
	p := New()
	sess := session.New(1, 1, 0, "127.0.0.1", false)
	addr, err := address.Parse("<milton.waddams@initech.com>")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	resp := p.OnRcptTo(sess.Handle("denylist"), addr, command.Command{})
	if resp == nil || resp.Code != 421 {
		t.Fatalf("got %+v", resp)
	}
	if resp.IsTerminal() != true {
		t.Errorf("expected 421 to be terminal")
	}
}

func TestAllowsOtherRecipients(t *testing.T) {
	p := New()
	sess := session.New(1, 1, 0, "127.0.0.1", false)
	addr, err := address.Parse("<someone@example.org>")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if resp := p.OnRcptTo(sess.Handle("denylist"), addr, command.Command{}); resp != nil {
		t.Errorf("got %+v, want nil", resp)
	}
}

package plugin

import (
	"testing"

	"github.com/unmta/unmta/internal/smtp/response"
	"github.com/unmta/unmta/internal/smtp/session"
)

type stubPlugin struct {
	name string
}

func (s stubPlugin) PluginName() string { return s.name }

func (s stubPlugin) OnConnect(h session.Handle) *response.Response { return nil }

func TestLoadRegistersInOrder(t *testing.T) {
	m := NewManager()
	if err := m.Load(stubPlugin{"a"}, stubPlugin{"b"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := m.Plugins()
	if len(got) != 2 || got[0].PluginName() != "a" || got[1].PluginName() != "b" {
		t.Errorf("got %v", got)
	}
}

func TestLoadRejectsDuplicateName(t *testing.T) {
	m := NewManager()
	if err := m.Load(stubPlugin{"a"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Load(stubPlugin{"a"}); err == nil {
		t.Fatal("expected error for duplicate plugin name")
	}
}

func TestConnectHookOptIn(t *testing.T) {
	var p Plugin = stubPlugin{"a"}
	if _, ok := p.(ConnectHook); !ok {
		t.Errorf("stubPlugin should satisfy ConnectHook")
	}
	if _, ok := p.(RcptToHook); ok {
		t.Errorf("stubPlugin should not satisfy RcptToHook")
	}
}

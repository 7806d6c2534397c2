package greeter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/unmta/unmta/internal/smtp/session"
	"github.com/unmta/unmta/internal/unfig"
)

func writeConfig(t *testing.T, body string) *unfig.Tree {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "unmta.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	tree, err := unfig.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return tree
}

func TestOnConnectUsesConfiguredGreeting(t *testing.T) {
	tree := writeConfig(t, "[plugins.greeter]\ngreeting = \"Howdy\"\n")
	p, err := New(tree)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess := session.New(1, 1, 0, "127.0.0.1", false)
	resp := p.OnConnect(sess.Handle("greeter"))
	if resp == nil || resp.Code != 220 {
		t.Fatalf("got %+v", resp)
	}
	if resp.Message != "Howdy ESMTP UnMTA" {
		t.Errorf("Message = %q", resp.Message)
	}
}

func TestOnConnectDisabledReturnsNil(t *testing.T) {
	tree := writeConfig(t, "[plugins.greeter]\nenabled = false\n")
	p, err := New(tree)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess := session.New(1, 1, 0, "127.0.0.1", false)
	if resp := p.OnConnect(sess.Handle("greeter")); resp != nil {
		t.Errorf("got %+v, want nil", resp)
	}
}

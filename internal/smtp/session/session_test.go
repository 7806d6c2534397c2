package session

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/unmta/unmta/internal/smtp/address"
)

func TestNewDefaults(t *testing.T) {
	s := New(1, 1, 0, "127.0.0.1", false)
	if s.Phase() != PhaseConnection {
		t.Errorf("Phase() = %v, want connection", s.Phase())
	}
	if _, ok := s.Sender(); ok {
		t.Errorf("expected no sender set")
	}
	if len(s.Recipients()) != 0 {
		t.Errorf("expected no recipients")
	}
}

func TestResetTransactionPreservesAuthAndGreeting(t *testing.T) {
	s := New(1, 1, 0, "127.0.0.1", false)
	s.SetGreetingType(GreetingEHLO)
	s.SetAuthenticated(true)
	a, _ := address.Parse("<a@x.com>")
	s.SetSender(a)
	s.AddRecipient(a)

	s.ResetTransaction()

	if _, ok := s.Sender(); ok {
		t.Errorf("sender should be cleared")
	}
	if len(s.Recipients()) != 0 {
		t.Errorf("recipients should be cleared")
	}
	if s.GreetingType() != GreetingEHLO {
		t.Errorf("greetingType should survive reset")
	}
	if !s.IsAuthenticated() {
		t.Errorf("isAuthenticated should survive reset")
	}
}

func TestHandleNamespaceIsolation(t *testing.T) {
	s := New(1, 1, 0, "127.0.0.1", false)
	a := s.Handle("pluginA")
	b := s.Handle("pluginB")

	a.SetOwn("k", "v-a")
	b.SetOwn("k", "v-b")

	got, ok := a.GetOwn("k")
	if !ok || got != "v-a" {
		t.Errorf("a.GetOwn(k) = %v, %v, want v-a, true", got, ok)
	}
	got, ok = b.GetOwn("k")
	if !ok || got != "v-b" {
		t.Errorf("b.GetOwn(k) = %v, %v, want v-b, true", got, ok)
	}
}

func TestHandleCanReadOtherPluginNamespace(t *testing.T) {
	s := New(1, 1, 0, "127.0.0.1", false)
	a := s.Handle("pluginA")
	b := s.Handle("pluginB")

	a.SetOwn("shared", 42)

	got, ok := b.Get("pluginA", "shared")
	if !ok || got != 42 {
		t.Errorf("b.Get(pluginA, shared) = %v, %v, want 42, true", got, ok)
	}
}

func TestHandleMissingKey(t *testing.T) {
	s := New(1, 1, 0, "127.0.0.1", false)
	h := s.Handle("pluginA")
	if _, ok := h.GetOwn("nope"); ok {
		t.Errorf("expected missing key to report ok=false")
	}
}

func TestAddRecipientPreservesOrderAndDuplicates(t *testing.T) {
	s := New(1, 1, 0, "127.0.0.1", false)
	a, _ := address.Parse("<a@x.com>")
	b, _ := address.Parse("<b@x.com>")
	s.AddRecipient(a)
	s.AddRecipient(b)
	s.AddRecipient(a)

	var got []string
	for _, r := range s.Recipients() {
		got = append(got, r.String())
	}
	want := []string{"a@x.com", "b@x.com", "a@x.com"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
}

package smtpctx

import "testing"

func TestGetSetDelete(t *testing.T) {
	c := New()
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected missing key")
	}
	c.Set("k", 7)
	v, ok := c.Get("k")
	if !ok || v != 7 {
		t.Fatalf("Get(k) = %v, %v, want 7, true", v, ok)
	}
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected key to be gone after Delete")
	}
}

func TestIndependentInstances(t *testing.T) {
	a, b := New(), New()
	a.Set("k", "a")
	if _, ok := b.Get("k"); ok {
		t.Fatal("Context instances must not share state")
	}
}

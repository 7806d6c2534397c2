package address

import "testing"

func TestParseValid(t *testing.T) {
	a, err := Parse("<user@example.org>")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.LocalPart() != "user" || a.Domain() != "example.org" {
		t.Errorf("got local=%q domain=%q", a.LocalPart(), a.Domain())
	}
	if a.String() != "user@example.org" {
		t.Errorf("String() = %q", a.String())
	}
}

func TestParseNullSender(t *testing.T) {
	_, err := Parse("<>")
	if err != ErrNullSender {
		t.Fatalf("Parse(<>) = %v, want ErrNullSender", err)
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		"user@example.org", // missing brackets
		"<user>",           // missing @
		"<@example.org>",   // missing local part
		"<user@>",          // missing domain
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", c)
		}
	}
}

func TestParseIDNADomain(t *testing.T) {
	a, err := Parse("<user@xn--mller-kva.example>")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Domain() == "" {
		t.Errorf("expected a non-empty decoded domain")
	}
}

func TestIsZero(t *testing.T) {
	var a Address
	if !a.IsZero() {
		t.Errorf("zero value Address should report IsZero")
	}
}

package unlog

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func newTestLogger() (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := New(nopCloser{buf})
	l.LogTime = false
	return l, buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"error": LevelError,
		"WARN":  LevelWarn,
		"Info":  LevelInfo,
		"debug": LevelDebug,
		"smtp":  LevelSMTP,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseLevel("bogus"); err == nil {
		t.Error("ParseLevel(bogus) succeeded, want error")
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	l, buf := newTestLogger()
	l.Level = LevelWarn

	l.Debugf("hidden")
	if buf.Len() != 0 {
		t.Fatalf("Debugf wrote output at level Warn: %q", buf.String())
	}

	l.Warnf("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("Warnf did not write output: %q", buf.String())
	}
}

func TestSMTPf(t *testing.T) {
	l, buf := newTestLogger()
	l.Level = LevelSMTP
	l.SMTPf(42, "C", "EHLO foo\r\n")
	out := buf.String()
	if !strings.Contains(out, "[42] C: EHLO foo") {
		t.Errorf("SMTPf output = %q", out)
	}
}

func TestReopenNoPathIsNoop(t *testing.T) {
	l, _ := newTestLogger()
	if err := l.Reopen(); err != nil {
		t.Errorf("Reopen() on non-file logger: %v", err)
	}
}

var _ io.WriteCloser = nopCloser{}

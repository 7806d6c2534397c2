package command

import "testing"

func TestParseSimpleVerb(t *testing.T) {
	cmd, err := ParseLine("EHLO client.example")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if cmd.Verb != EHLO || cmd.Argument != "client.example" {
		t.Errorf("got %+v", cmd)
	}
}

func TestParseNoArgument(t *testing.T) {
	cmd, err := ParseLine("QUIT")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if cmd.Verb != QUIT || cmd.Argument != "" {
		t.Errorf("got %+v", cmd)
	}
}

func TestParseMailFrom(t *testing.T) {
	cmd, err := ParseLine("MAIL FROM:<a@x.com> BODY=8BITMIME")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if cmd.Verb != MAILFROM {
		t.Fatalf("verb = %v", cmd.Verb)
	}
	if cmd.Addr.String() != "a@x.com" {
		t.Errorf("addr = %q", cmd.Addr.String())
	}
	if cmd.Params != "BODY=8BITMIME" {
		t.Errorf("params = %q", cmd.Params)
	}
}

func TestParseMailFromNullSender(t *testing.T) {
	cmd, err := ParseLine("MAIL FROM:<>")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if !cmd.IsNullSender {
		t.Errorf("expected IsNullSender")
	}
}

func TestParseRcptToNullSenderSetsIsNullSender(t *testing.T) {
	cmd, err := ParseLine("RCPT TO:<>")
	if err != nil {
		// This parses fine at the command layer (both MAIL and RCPT share
		// colon-address parsing); it is the protocol layer's job to reject a
		// null-sender RCPT TO, per spec §4.1.
		t.Fatalf("ParseLine: %v", err)
	}
	if !cmd.IsNullSender {
		t.Errorf("expected IsNullSender to be set so the caller can reject it")
	}
}

func TestParseMalformedMailFrom(t *testing.T) {
	_, err := ParseLine("MAIL FROM:nobrackets")
	if err == nil {
		t.Fatal("expected error")
	}
	var malformed *ErrMalformedAddress
	if !asMalformed(err, &malformed) {
		t.Errorf("got %T: %v, want *ErrMalformedAddress", err, err)
	}
}

func asMalformed(err error, target **ErrMalformedAddress) bool {
	e, ok := err.(*ErrMalformedAddress)
	if !ok {
		return false
	}
	*target = e
	return true
}

func TestParseLineTooLongIsCallerResponsibility(t *testing.T) {
	// ParseLine itself doesn't enforce MaxLineOctets (the reader does, since
	// it must count CRLF before stripping it); just confirm the constant
	// matches the spec.
	if MaxLineOctets != 512 {
		t.Errorf("MaxLineOctets = %d, want 512", MaxLineOctets)
	}
}

func TestParseNonASCIIControl(t *testing.T) {
	_, err := ParseLine("EHLO foo\x01bar")
	if err != ErrNonASCIIControl {
		t.Errorf("err = %v, want ErrNonASCIIControl", err)
	}
}

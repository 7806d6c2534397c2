package response

import "testing"

func TestAcceptDefaults(t *testing.T) {
	r := Connect.Accept()
	if r.Code != 220 || r.Action != ActionAccept {
		t.Errorf("got %+v", r)
	}
	if !r.Accepted() {
		t.Errorf("Accepted() = false, want true")
	}
}

func TestAcceptOverrideMessage(t *testing.T) {
	r := Helo.Accept("Hello client.example")
	if r.Message != "Hello client.example" {
		t.Errorf("Message = %q", r.Message)
	}
}

func TestDeferRejectsOutOfWhitelistCode(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-whitelist defer code")
		}
	}()
	Connect.Defer(450)
}

func TestRejectRejectsOutOfWhitelistCode(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-whitelist reject code")
		}
	}()
	Quit.Reject(550)
}

func TestRcptToReject(t *testing.T) {
	r := RcptTo.Reject(550, "Yeah, we can't actually find a record of him being a current employee here")
	if r.Code != 550 || r.Action != ActionReject {
		t.Errorf("got %+v", r)
	}
	if r.Accepted() {
		t.Errorf("Accepted() = true, want false")
	}
}

func TestIsTerminal(t *testing.T) {
	cases := []struct {
		r    Response
		want bool
	}{
		{Connect.Accept(), false},
		{Connect.Reject(554), true},
		{Helo.Defer(421), true},
		{Helo.Defer(450), false},
		{Quit.Accept(), true},
	}
	for _, c := range cases {
		if got := c.r.IsTerminal(); got != c.want {
			t.Errorf("IsTerminal(%+v) = %v, want %v", c.r, got, c.want)
		}
	}
}

func TestAny(t *testing.T) {
	r := Any(RcptTo, 251, "User not local; will forward")
	if r.Action != ActionRaw || r.Code != 251 {
		t.Errorf("got %+v", r)
	}
	if !r.Accepted() {
		t.Errorf("Accepted() = false, want true for 2xx raw response")
	}
}

func TestAnyOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range code")
		}
	}()
	Any(Unknown, 999, "bogus")
}

func TestUnknownHasNoAcceptDisposition(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic: Unknown phase has no accept disposition")
		}
	}()
	Unknown.Accept()
}

// Package response implements UnMTA's Response Model (spec §4.2).
//
// Each protocol phase restricts which reply codes are legal for an accept,
// defer, or reject disposition. chasquid's handlers return a bare (code
// int, msg string) pair with no compile-time guardrail
// (internal/smtpsrv/conn.go, e.g. Conn.RCPT); spec §9 design notes call for
// a narrow, statically-checked constructor per (phase, disposition) plus
// one unrestricted escape hatch, mirroring "SmtpResponseAny". That's what
// this package provides: Phase.Accept/Defer/Reject validate the code
// against the whitelist and panic on misuse (a programming error caught at
// construction time, per spec), while Any bypasses validation entirely.
package response

import "fmt"

// Phase identifies which point of the SMTP conversation a Response belongs
// to, and therefore which reply codes are legal for it.
type Phase int

// The phases named in spec §4.2.
const (
	Connect Phase = iota
	Helo
	Auth
	MailFrom
	RcptTo
	DataStart
	DataEnd
	Quit
	Rset
	Noop
	Help
	Vrfy
	Unknown
)

func (p Phase) String() string {
	switch p {
	case Connect:
		return "Connect"
	case Helo:
		return "Helo"
	case Auth:
		return "Auth"
	case MailFrom:
		return "MailFrom"
	case RcptTo:
		return "RcptTo"
	case DataStart:
		return "DataStart"
	case DataEnd:
		return "DataEnd"
	case Quit:
		return "Quit"
	case Rset:
		return "Rset"
	case Noop:
		return "Noop"
	case Help:
		return "Help"
	case Vrfy:
		return "Vrfy"
	case Unknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Action is the disposition a Response carries.
type Action int

const (
	ActionAccept Action = iota
	ActionDefer
	ActionReject
	ActionRaw
)

// Response is a single SMTP reply: a code, optional enhanced status code,
// a message (possibly multi-line, '\n' separated), and a disposition.
type Response struct {
	Phase          Phase
	Code           int
	EnhancedStatus string // e.g. "5.5.1"; empty if not applicable.
	Message        string
	Action         Action
}

// Accepted reports whether the response represents a 2xx/3xx disposition,
// i.e. whether the protocol state machine should advance phase because of
// it.
func (r Response) Accepted() bool {
	if r.Action == ActionAccept {
		return true
	}
	return r.Action == ActionRaw && r.Code < 400
}

// IsTerminal reports whether the connection must be closed after this
// response is written, per spec §4.2: code 421, any 4xx/5xx from Connect,
// and the Quit reply are all terminal.
func (r Response) IsTerminal() bool {
	if r.Code == 421 {
		return true
	}
	if r.Phase == Connect && r.Code >= 400 {
		return true
	}
	if r.Phase == Quit {
		return true
	}
	return false
}

type whitelist struct {
	acceptCodes  []int
	acceptMsg    string
	deferCodes   []int
	deferMsg     string
	rejectCodes  []int
	rejectMsg    string
}

var tables = map[Phase]whitelist{
	Connect: {
		acceptCodes: []int{220}, acceptMsg: "220 UnMTA ESMTP ready",
		deferCodes: []int{421}, deferMsg: "421 Service not available, closing transmission channel",
		rejectCodes: []int{554}, rejectMsg: "554 Transaction failed",
	},
	Helo: {
		acceptCodes: []int{250}, acceptMsg: "250 Hello",
		deferCodes: []int{421, 450, 451, 452}, deferMsg: "421 Service not available",
		rejectCodes: []int{502, 504, 550, 554}, rejectMsg: "550 Requested action not taken",
	},
	Auth: {
		acceptCodes: []int{235}, acceptMsg: "235 Authentication successful",
		deferCodes: []int{421, 454}, deferMsg: "454 Temporary authentication failure",
		rejectCodes: []int{432, 454, 500, 501, 534, 535, 538}, rejectMsg: "535 Authentication credentials invalid",
	},
	MailFrom: {
		acceptCodes: []int{250}, acceptMsg: "250 Ok",
		deferCodes: []int{450, 451, 452}, deferMsg: "451 Requested action aborted: local error in processing",
		rejectCodes: []int{550, 551, 552, 553, 554}, rejectMsg: "550 Requested action not taken",
	},
	RcptTo: {
		acceptCodes: []int{250}, acceptMsg: "250 Ok",
		deferCodes: []int{450, 451, 452}, deferMsg: "451 Requested action aborted: local error in processing",
		rejectCodes: []int{550, 551, 552, 553, 554}, rejectMsg: "550 Requested action not taken",
	},
	DataStart: {
		acceptCodes: []int{354}, acceptMsg: "354 Start mail input; end with <CRLF>.<CRLF>",
		deferCodes: []int{451}, deferMsg: "451 Requested action aborted: local error in processing",
		rejectCodes: []int{503, 554}, rejectMsg: "554 Transaction failed",
	},
	DataEnd: {
		acceptCodes: []int{250}, acceptMsg: "250 Ok",
		deferCodes: []int{451, 452}, deferMsg: "451 Requested action aborted: local error in processing",
		rejectCodes: []int{550, 552, 554}, rejectMsg: "554 Transaction failed",
	},
	Quit: {
		acceptCodes: []int{221}, acceptMsg: "221 Bye",
	},
	Rset: {
		acceptCodes: []int{250}, acceptMsg: "250 Ok",
	},
	Noop: {
		acceptCodes: []int{250}, acceptMsg: "250 Ok",
	},
	Help: {
		acceptCodes: []int{214, 211}, acceptMsg: "214 See https://tools.ietf.org/html/rfc5321",
	},
	Vrfy: {
		acceptCodes: []int{252, 250, 251}, acceptMsg: "252 Cannot VRFY user, but will accept message and attempt delivery",
		rejectCodes: []int{550, 551, 553}, rejectMsg: "550 Requested action not taken",
	},
	Unknown: {
		rejectCodes: []int{500, 502}, rejectMsg: "500 Unrecognized command",
	},
}

func contains(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// Accept builds the phase's accept Response. msg overrides the default
// message if provided.
func (p Phase) Accept(msg ...string) Response {
	t := mustTable(p)
	if len(t.acceptCodes) == 0 {
		panic(fmt.Sprintf("response: phase %s has no accept disposition", p))
	}
	m := t.acceptMsg
	if len(msg) > 0 {
		m = msg[0]
	}
	return Response{Phase: p, Code: t.acceptCodes[0], Message: stripCode(m), Action: ActionAccept}
}

// Defer builds the phase's defer Response with the given code, which must
// be one of the phase's whitelisted defer codes. Passing any other code is
// a programming error and panics immediately, per spec §4.2.
func (p Phase) Defer(code int, msg ...string) Response {
	t := mustTable(p)
	if !contains(t.deferCodes, code) {
		panic(fmt.Sprintf("response: code %d is not a valid defer code for phase %s (allowed: %v)", code, p, t.deferCodes))
	}
	m := t.deferMsg
	if len(msg) > 0 {
		m = msg[0]
	}
	return Response{Phase: p, Code: code, Message: stripCode(m), Action: ActionDefer}
}

// Reject builds the phase's reject Response with the given code, which
// must be one of the phase's whitelisted reject codes.
func (p Phase) Reject(code int, msg ...string) Response {
	t := mustTable(p)
	if !contains(t.rejectCodes, code) {
		panic(fmt.Sprintf("response: code %d is not a valid reject code for phase %s (allowed: %v)", code, p, t.rejectCodes))
	}
	m := t.rejectMsg
	if len(msg) > 0 {
		m = msg[0]
	}
	return Response{Phase: p, Code: code, Message: stripCode(m), Action: ActionReject}
}

func mustTable(p Phase) whitelist {
	t, ok := tables[p]
	if !ok {
		panic(fmt.Sprintf("response: unknown phase %v", p))
	}
	return t
}

// stripCode removes a leading "NNN " that default messages above embed for
// readability; callers passing their own message don't need to include one.
func stripCode(m string) string {
	if len(m) > 4 && m[3] == ' ' && m[0] >= '0' && m[0] <= '9' {
		return m[4:]
	}
	return m
}

// Any is the unrestricted escape hatch (spec §4.2, "SmtpResponseAny"): any
// integer code in 200..599 and any message, for plugins that legitimately
// need to bypass the whitelist (e.g. relaying a backend's exact SMTP
// reply).
func Any(p Phase, code int, msg string) Response {
	if code < 200 || code > 599 {
		panic(fmt.Sprintf("response: code %d out of range 200..599", code))
	}
	return Response{Phase: p, Code: code, Message: msg, Action: ActionRaw}
}

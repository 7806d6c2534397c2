// Package protocol implements the Protocol State Machine (spec §4.7): the
// per-connection driver that reads command lines, gates them by phase,
// dispatches hooks, and writes replies.
//
// Grounded on chasquid's internal/smtpsrv.Conn.Handle, which runs the
// same read-dispatch-reply loop with a fixed, non-pluggable command
// table; here the per-command handlers delegate to the Hook Dispatcher
// instead of doing policy inline, and phase gating (absent from chasquid,
// whose commands self-check preconditions like c.mailFrom == "") is made
// explicit per spec §4.7.
package protocol

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/unmta/unmta/internal/metrics"
	"github.com/unmta/unmta/internal/smtp/command"
	"github.com/unmta/unmta/internal/smtp/hooks"
	"github.com/unmta/unmta/internal/smtp/response"
	"github.com/unmta/unmta/internal/smtp/session"
	"github.com/unmta/unmta/internal/unlog"
)

// Config is the subset of [smtp]/[auth]/[tls] configuration the state
// machine needs (spec §6).
type Config struct {
	Hostname             string
	MaxMessageSizeBytes  int64 // 0 means unbounded.
	AuthEnable           bool
	AuthRequireTLS       bool
	StartTLSEnable       bool
	MaxConsecutiveErrors int
	InactivityTimeout    time.Duration
}

// Conn drives one accepted connection through the protocol state
// machine.
type Conn struct {
	netConn   net.Conn
	reader    *bufio.Reader
	writer    *bufio.Writer
	tlsConfig *tls.Config
	cfg       Config
	sess      *session.Session
	disp      *hooks.Dispatcher
	log       *unlog.Logger
	errCount  int
	// stopping is closed by the owning Server when a graceful stop has
	// begun (spec §5: "new commands after stop initiation should receive
	// 421"). A nil channel is fine: a receive on it never fires, so Serve
	// behaves as if no stop were ever requested.
	stopping <-chan struct{}
}

// NewConn builds a Conn ready to Serve. sess must already be constructed
// for this connection (spec §4.3: one Session per TCP connection).
// stopping, if non-nil, is closed by the caller when the server begins a
// graceful stop.
func NewConn(nc net.Conn, tlsConfig *tls.Config, cfg Config, sess *session.Session, disp *hooks.Dispatcher, log *unlog.Logger, stopping <-chan struct{}) *Conn {
	return &Conn{
		netConn:   nc,
		reader:    bufio.NewReader(nc),
		writer:    bufio.NewWriter(nc),
		tlsConfig: tlsConfig,
		cfg:       cfg,
		sess:      sess,
		disp:      disp,
		log:       log,
		stopping:  stopping,
	}
}

// Serve runs the connection to completion: greeting, command loop, close.
// It always fires onClose exactly once before returning (spec P1).
func (c *Conn) Serve() {
	defer c.disp.DispatchClose(c.sess)

	greet := c.disp.DispatchConnect(c.sess)
	if greet == nil {
		d := response.Connect.Accept(fmt.Sprintf("%s ESMTP UnMTA ready", c.cfg.Hostname))
		greet = &d
	}
	if err := c.reply(greet); err != nil {
		return
	}
	if greet.IsTerminal() {
		return
	}

	for {
		c.netConn.SetReadDeadline(time.Now().Add(c.cfg.InactivityTimeout))

		line, err := c.readLine()
		if err != nil {
			if errors.Is(err, command.ErrLineTooLong) {
				r := response.Any(response.Unknown, 500, "5.5.2 Line too long")
				if c.reply(&r) != nil || c.countError(&r) {
					return
				}
				continue
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				r := response.Any(response.Unknown, 421, "4.4.2 Connection timed out")
				c.reply(&r)
			}
			return
		}

		select {
		case <-c.stopping:
			r := response.Any(response.Unknown, 421, "4.3.2 Server shutting down")
			c.reply(&r)
			return
		default:
		}

		cmd, perr := command.ParseLine(line)
		if perr != nil {
			resp := translateParseError(perr)
			if c.reply(resp) != nil || c.countError(resp) {
				return
			}
			continue
		}
		metrics.CommandsTotal.WithLabelValues(string(cmd.Verb)).Inc()

		resp, closeAfter := c.handleCommand(cmd)
		if resp != nil {
			if c.reply(resp) != nil {
				return
			}
			if c.countError(resp) {
				return
			}
			closeAfter = closeAfter || resp.IsTerminal()
		}
		if closeAfter {
			return
		}
	}
}

// countError implements the error budget (spec §9 supplement, grounded on
// chasquid's "close the connection after 3 errors" in conn.go): each 4xx
// or 5xx reply counts against the budget, a 2xx/3xx reply resets it. When
// the budget is exhausted, a final 421 is sent and the caller should
// close.
func (c *Conn) countError(r *response.Response) bool {
	if r.Code < 400 {
		c.errCount = 0
		return false
	}
	c.errCount++
	if c.errCount < c.cfg.MaxConsecutiveErrors {
		return false
	}
	final := response.Any(response.Unknown, 421, "4.5.0 Too many errors, bye")
	c.reply(&final)
	return true
}

func (c *Conn) reply(r *response.Response) error {
	if err := writeResponse(c.writer, *r, c.log, c.sess.ID()); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *Conn) readLine() (string, error) {
	raw, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(raw) > command.MaxLineOctets {
		return "", command.ErrLineTooLong
	}
	line := strings.TrimRight(raw, "\r\n")
	c.log.SMTPf(c.sess.ID(), "C", line)
	return line, nil
}

func translateParseError(err error) *response.Response {
	var malformed *command.ErrMalformedAddress
	switch {
	case errors.Is(err, command.ErrLineTooLong):
		r := response.Any(response.Unknown, 500, "5.5.2 Line too long")
		return &r
	case errors.Is(err, command.ErrNonASCIIControl):
		r := response.Any(response.Unknown, 500, "5.5.2 Invalid character in command line")
		return &r
	case errors.As(err, &malformed):
		r := response.Any(response.Unknown, 501, "5.5.4 Malformed command: "+malformed.Error())
		return &r
	default:
		r := response.Any(response.Unknown, 500, "5.5.2 Unable to parse command")
		return &r
	}
}

// handleCommand routes one parsed command to its handler. A nil response
// means the handler already wrote whatever reply was needed itself
// (STARTTLS, DATA) and the caller must not write again.
func (c *Conn) handleCommand(cmd command.Command) (*response.Response, bool) {
	switch cmd.Verb {
	case command.HELO, command.EHLO:
		return c.handleHeloEhlo(cmd)
	case command.AUTH:
		return c.handleAuth(cmd)
	case command.MAILFROM:
		return c.handleMailFrom(cmd)
	case command.RCPTTO:
		return c.handleRcptTo(cmd)
	case command.DATA:
		return c.handleData()
	case command.STARTTLS:
		return c.handleStartTLS()
	case command.RSET:
		return c.handleRset()
	case command.QUIT:
		return c.handleQuit()
	case command.NOOP:
		return dispatchOr(c.disp.DispatchNoop(c.sess), response.Noop.Accept()), false
	case command.VRFY:
		return dispatchOr(c.disp.DispatchVrfy(c.sess, cmd), response.Vrfy.Accept()), false
	case command.HELP:
		return dispatchOr(c.disp.DispatchHelp(c.sess), response.Help.Accept()), false
	default:
		return dispatchOr(c.disp.DispatchUnknown(c.sess, cmd), response.Unknown.Reject(500, "5.5.2 Unrecognized command")), false
	}
}

func dispatchOr(resp *response.Response, def response.Response) *response.Response {
	if resp != nil {
		return resp
	}
	return &def
}

func (c *Conn) handleHeloEhlo(cmd command.Command) (*response.Response, bool) {
	if c.sess.Phase() == session.PhaseData {
		r := response.Any(response.Helo, 503, "5.5.1 Bad sequence of commands")
		return &r, false
	}
	extended := cmd.Verb == command.EHLO
	resp := c.disp.DispatchHelo(c.sess, cmd.Argument, string(cmd.Verb))
	if resp == nil {
		d := response.Helo.Accept(c.ehloGreeting(extended))
		resp = &d
	}
	if resp.Accepted() {
		c.sess.ResetTransaction()
		if extended {
			c.sess.SetGreetingType(session.GreetingEHLO)
		} else {
			c.sess.SetGreetingType(session.GreetingHELO)
		}
		c.sess.SetPhase(session.PhaseHelo)
	}
	return resp, false
}

// ehloGreeting lists the extensions advertised on EHLO (spec §4.7). HELO
// gets a plain single-line greeting, matching RFC 5321's distinction
// between the two.
func (c *Conn) ehloGreeting(extended bool) string {
	if !extended {
		return c.cfg.Hostname + " Hello"
	}
	lines := []string{c.cfg.Hostname + " Hello", "PIPELINING", "8BITMIME", "SMTPUTF8"}
	if c.cfg.MaxMessageSizeBytes > 0 {
		lines = append(lines, fmt.Sprintf("SIZE %d", c.cfg.MaxMessageSizeBytes))
	}
	if c.cfg.StartTLSEnable && !c.sess.IsSecure() {
		lines = append(lines, "STARTTLS")
	}
	if c.cfg.AuthEnable && (!c.cfg.AuthRequireTLS || c.sess.IsSecure()) {
		lines = append(lines, "AUTH LOGIN PLAIN")
	}
	lines = append(lines, "HELP")
	return strings.Join(lines, "\n")
}

func (c *Conn) handleAuth(cmd command.Command) (*response.Response, bool) {
	if c.sess.Phase() != session.PhaseHelo {
		r := response.Any(response.Auth, 503, "5.5.1 Bad sequence of commands")
		return &r, false
	}
	if c.sess.IsAuthenticated() {
		r := response.Any(response.Auth, 503, "5.5.1 Already authenticated")
		return &r, false
	}
	if !c.cfg.AuthEnable {
		r := response.Auth.Reject(500, "5.5.1 AUTH not enabled")
		return &r, false
	}
	if c.cfg.AuthRequireTLS && !c.sess.IsSecure() {
		r := response.Auth.Reject(538, "5.7.10 Encryption required for requested authentication mechanism")
		return &r, false
	}

	mech, initial := splitAuthArg(cmd.Argument)
	var username, password string
	var err error
	switch strings.ToUpper(mech) {
	case "PLAIN":
		username, password, err = c.readAuthPlain(initial)
	case "LOGIN":
		username, password, err = c.readAuthLogin(initial)
	default:
		r := response.Auth.Reject(500, "5.5.4 Unrecognized authentication type")
		return &r, false
	}
	if err != nil {
		r := response.Auth.Reject(501, "5.5.2 Malformed AUTH response")
		return &r, false
	}

	// Open question in spec §9: username/password are decoded before the
	// hook fires, so plugins always see raw octets, never base64.
	resp := c.disp.DispatchAuth(c.sess, username, password)
	if resp == nil {
		d := response.Auth.Accept()
		resp = &d
	}
	if resp.Accepted() {
		c.sess.SetAuthenticated(true)
	}
	return resp, false
}

func splitAuthArg(arg string) (mech, initial string) {
	parts := strings.SplitN(strings.TrimSpace(arg), " ", 2)
	mech = parts[0]
	if len(parts) == 2 {
		initial = parts[1]
	}
	return mech, initial
}

func (c *Conn) writeContinuation(b64 string) error {
	line := fmt.Sprintf("334 %s", b64)
	c.log.SMTPf(c.sess.ID(), "S", line)
	if _, err := fmt.Fprintf(c.writer, "%s\r\n", line); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *Conn) readAuthPlain(initial string) (username, password string, err error) {
	b64 := initial
	if b64 == "" {
		if err = c.writeContinuation(""); err != nil {
			return "", "", err
		}
		if b64, err = c.readLine(); err != nil {
			return "", "", err
		}
	}
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", "", err
	}
	parts := bytes.SplitN(decoded, []byte{0}, 3)
	if len(parts) != 3 {
		return "", "", errors.New("protocol: malformed AUTH PLAIN response")
	}
	return string(parts[1]), string(parts[2]), nil
}

// "Username:" and "Password:" base64-encoded, per RFC 4954's AUTH LOGIN
// convention.
const (
	loginUsernamePrompt = "VXNlcm5hbWU6"
	loginPasswordPrompt = "UGFzc3dvcmQ6"
)

func (c *Conn) readAuthLogin(initial string) (username, password string, err error) {
	userB64 := initial
	if userB64 == "" {
		if err = c.writeContinuation(loginUsernamePrompt); err != nil {
			return "", "", err
		}
		if userB64, err = c.readLine(); err != nil {
			return "", "", err
		}
	}
	userBytes, err := base64.StdEncoding.DecodeString(userB64)
	if err != nil {
		return "", "", err
	}

	if err = c.writeContinuation(loginPasswordPrompt); err != nil {
		return "", "", err
	}
	passB64, err := c.readLine()
	if err != nil {
		return "", "", err
	}
	passBytes, err := base64.StdEncoding.DecodeString(passB64)
	if err != nil {
		return "", "", err
	}
	return string(userBytes), string(passBytes), nil
}

func (c *Conn) handleMailFrom(cmd command.Command) (*response.Response, bool) {
	phase := c.sess.Phase()
	legal := phase == session.PhaseHelo || phase == session.PhaseSender || phase == session.PhaseRecipient
	if !legal {
		r := response.Any(response.MailFrom, 503, "5.5.1 Bad sequence of commands")
		return &r, false
	}
	if c.cfg.AuthEnable && !c.sess.IsAuthenticated() {
		r := response.MailFrom.Reject(550, "5.7.1 Authentication required")
		return &r, false
	}

	// A second MAIL FROM without an intervening RSET is treated as an
	// implicit RSET + new MAIL FROM (spec §9 open question).
	if phase != session.PhaseHelo {
		c.sess.ResetTransaction()
		c.sess.SetPhase(session.PhaseHelo)
	}

	resp := c.disp.DispatchMailFrom(c.sess, cmd.Addr, cmd)
	if resp == nil {
		d := response.MailFrom.Accept()
		resp = &d
	}
	if resp.Accepted() {
		c.sess.SetSender(cmd.Addr)
		c.sess.SetPhase(session.PhaseSender)
	}
	return resp, false
}

func (c *Conn) handleRcptTo(cmd command.Command) (*response.Response, bool) {
	phase := c.sess.Phase()
	legal := phase == session.PhaseSender || phase == session.PhaseRecipient
	if !legal {
		r := response.Any(response.RcptTo, 503, "5.5.1 Bad sequence of commands")
		return &r, false
	}
	if cmd.IsNullSender {
		// RCPT TO:<> is never valid (spec §4.1); rejected before dispatch.
		r := response.Any(response.RcptTo, 501, "5.1.3 RCPT TO:<> is invalid")
		return &r, false
	}

	resp := c.disp.DispatchRcptTo(c.sess, cmd.Addr, cmd)
	if resp == nil {
		d := response.RcptTo.Accept()
		resp = &d
	}
	if resp.Accepted() {
		c.sess.AddRecipient(cmd.Addr)
		c.sess.SetPhase(session.PhaseRecipient)
	}
	return resp, false
}

func (c *Conn) handleData() (*response.Response, bool) {
	if c.sess.Phase() != session.PhaseRecipient || len(c.sess.Recipients()) == 0 {
		r := response.Any(response.DataStart, 503, "5.5.1 Bad sequence of commands")
		return &r, false
	}

	resp := c.disp.DispatchDataStart(c.sess)
	if resp == nil {
		d := response.DataStart.Accept()
		resp = &d
	}
	if c.reply(resp) != nil {
		return nil, true
	}
	if !resp.Accepted() {
		return nil, resp.IsTerminal()
	}

	c.sess.SetDataMode(true, nil)
	c.sess.SetPhase(session.PhaseData)

	body, err := readUntilDot(c.reader, c.cfg.MaxMessageSizeBytes)
	if err == ErrMessageTooLarge {
		c.sess.SetDataMode(false, nil)
		c.sess.SetPhase(session.PhaseHelo)
		r := response.DataEnd.Reject(552, "5.3.4 Message too big")
		c.reply(&r)
		return nil, false
	}
	if err != nil {
		return nil, true
	}

	c.sess.SetDataMode(false, bytes.NewReader(body))
	c.sess.SetPhase(session.PhasePostData)

	endResp := c.disp.DispatchDataEnd(c.sess)
	if endResp == nil {
		d := response.DataEnd.Accept()
		endResp = &d
	}
	c.sess.SetPhase(session.PhaseHelo)
	c.sess.ResetTransaction()
	c.reply(endResp)
	return nil, endResp.IsTerminal()
}

func (c *Conn) handleStartTLS() (*response.Response, bool) {
	if c.sess.Phase() != session.PhaseHelo {
		r := response.Any(response.Helo, 503, "5.5.1 Bad sequence of commands")
		return &r, false
	}
	if !c.cfg.StartTLSEnable {
		r := response.Helo.Reject(502, "5.5.1 STARTTLS not enabled")
		return &r, false
	}
	if c.sess.IsSecure() {
		r := response.Any(response.Helo, 503, "5.5.1 Already using TLS")
		return &r, false
	}

	ready := response.Any(response.Helo, 220, "2.0.0 Ready to start TLS")
	if c.reply(&ready) != nil {
		return nil, true
	}

	tlsConn := tls.Server(c.netConn, c.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		c.log.Errorf("TLS handshake failed: %v", err)
		return nil, true
	}

	c.netConn = tlsConn
	c.reader = bufio.NewReader(tlsConn)
	c.writer = bufio.NewWriter(tlsConn)

	c.sess.SetSecure(true)
	c.sess.SetGreetingType(session.GreetingNone)
	c.sess.ResetTransaction()
	c.sess.SetPhase(session.PhaseConnection)
	return nil, false
}

func (c *Conn) handleRset() (*response.Response, bool) {
	resp := c.disp.DispatchRset(c.sess)
	if resp == nil {
		d := response.Rset.Accept()
		resp = &d
	}
	c.sess.ResetTransaction()
	c.sess.SetPhase(session.PhaseHelo)
	return resp, false
}

func (c *Conn) handleQuit() (*response.Response, bool) {
	resp := c.disp.DispatchQuit(c.sess)
	if resp == nil {
		d := response.Quit.Accept()
		resp = &d
	}
	return resp, true
}

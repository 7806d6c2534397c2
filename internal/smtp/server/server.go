// Package server implements the Connection Manager (spec §4, "Connection
// Manager / Server"): the listener, accept loop, per-connection
// goroutine, active-connection accounting, and graceful shutdown.
//
// Grounded on HouzuoGuo/laitos' daemon/common.TCPServer
// (StartAndBlock/Stop/handleConnection), extended with the bounded
// graceful-stop drain spec §4.7 calls for ("gracefulStopTimeout") which
// tcpsrv.go's Stop doesn't have — it closes the listener and returns
// immediately, leaving existing conversations to finish on their own.
// Per-IP throttling is likewise grounded on tcpsrv.go's use of
// misc.RateLimit, reimplemented in package-local ratelimit.go since
// misc.RateLimit isn't separable from the rest of laitos' misc package.
package server

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unmta/unmta/internal/metrics"
	"github.com/unmta/unmta/internal/smtp/hooks"
	"github.com/unmta/unmta/internal/smtp/plugin"
	"github.com/unmta/unmta/internal/smtp/protocol"
	"github.com/unmta/unmta/internal/smtp/session"
	"github.com/unmta/unmta/internal/smtp/smtpctx"
	"github.com/unmta/unmta/internal/unlog"
)

// Server owns one listener and the plugin chain that serves it. Per spec
// §9's design note, this (not a package-level global) is what makes the
// Plugin Manager and Global Context dependency-injected rather than
// process-wide singletons: two Servers, each with their own Manager and
// Context, can coexist in one process.
type Server struct {
	Hostname            string
	ListenAddr          string // host:port, e.g. "localhost:2525"
	ProtocolConfig      protocol.Config
	TLSConfig           *tls.Config
	Plugins             *plugin.Manager
	Context             *smtpctx.Context
	Log                 *unlog.Logger
	GracefulStopTimeout time.Duration
	// PerIPConnectionsPerInterval caps accepted connections per remote IP
	// per second; 0 disables the limiter.
	PerIPConnectionsPerInterval int

	listener net.Listener
	disp     *hooks.Dispatcher
	limiter  *rateLimiter
	// stopping is closed by Stop to tell every in-flight Conn that a
	// graceful stop has begun, so they answer further commands with 421
	// instead of running them to completion (spec §5).
	stopping chan struct{}

	nextID int64
	active int64
	closed int32

	wg      sync.WaitGroup
	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// New constructs a Server. Plugins and Context must already be populated
// (Plugins.Load called, Context seeded) since spec §4.4 expects
// registration to complete before server start.
func New(s *Server) *Server {
	s.disp = hooks.New(s.Plugins, s.Log)
	s.conns = make(map[net.Conn]struct{})
	s.stopping = make(chan struct{})
	if s.PerIPConnectionsPerInterval > 0 {
		s.limiter = newRateLimiter(s.PerIPConnectionsPerInterval, time.Second)
	}
	if s.Context == nil {
		s.Context = smtpctx.Default
	}
	return s
}

// Listen opens the TCP listener and fires onServerStart, awaited to
// completion before returning (spec §4.8). A plugin error here aborts
// startup and the listener is closed again.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("server: listen on %s: %w", s.ListenAddr, err)
	}
	if err := s.disp.DispatchServerStart(); err != nil {
		ln.Close()
		return nil, fmt.Errorf("server: onServerStart: %w", err)
	}
	s.listener = ln
	return ln, nil
}

// Serve runs the accept loop until the listener closes. It returns nil on
// a clean shutdown (Stop called) and the accept error otherwise.
func (s *Server) Serve(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return nil
			}
			return err
		}

		host := remoteIP(nc)
		if s.limiter != nil && !s.limiter.Allow(host) {
			nc.Close()
			continue
		}

		active := atomic.AddInt64(&s.active, 1)
		metrics.ConnectionsAccepted.Inc()
		metrics.ActiveConnections.Set(float64(active))
		id := atomic.AddInt64(&s.nextID, 1)

		s.trackConn(nc)
		s.wg.Add(1)
		go s.handle(nc, id, int(active))
	}
}

func remoteIP(nc net.Conn) string {
	host, _, err := net.SplitHostPort(nc.RemoteAddr().String())
	if err != nil {
		return nc.RemoteAddr().String()
	}
	return host
}

func (s *Server) trackConn(nc net.Conn) {
	s.connsMu.Lock()
	s.conns[nc] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(nc net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, nc)
	s.connsMu.Unlock()
}

func (s *Server) handle(nc net.Conn, id int64, activeSnapshot int) {
	defer s.wg.Done()
	defer s.untrackConn(nc)
	defer nc.Close()
	defer func() {
		remaining := atomic.AddInt64(&s.active, -1)
		metrics.ActiveConnections.Set(float64(remaining))
	}()

	_, isSecure := nc.(*tls.Conn)
	sess := session.New(id, activeSnapshot, time.Now().UnixMilli(), nc.RemoteAddr().String(), isSecure)
	conn := protocol.NewConn(nc, s.TLSConfig, s.ProtocolConfig, sess, s.disp, s.Log, s.stopping)
	conn.Serve()
}

// Stop closes the listener immediately, signals every in-flight Conn to
// answer its next command with 421 instead of running it (spec §5), and
// waits up to GracefulStopTimeout for those connections to finish on
// their own before force-closing whatever remains (spec §4.7,
// "Shutdown"). onServerStop fires once all connections are done or the
// timeout elapses.
func (s *Server) Stop() {
	atomic.StoreInt32(&s.closed, 1)
	close(s.stopping)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.GracefulStopTimeout):
		s.Log.Warnf("graceful stop timeout exceeded, forcing remaining connections closed")
		s.forceCloseRemaining()
		<-done
	}

	s.disp.DispatchServerStop()
}

func (s *Server) forceCloseRemaining() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for nc := range s.conns {
		nc.Close()
	}
}

// ActiveConnections returns the current open-connection count.
func (s *Server) ActiveConnections() int64 { return atomic.LoadInt64(&s.active) }

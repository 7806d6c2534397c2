// Package session implements the per-connection Session record (spec §3,
// §4.3): protocol state, the transaction in progress, and plugin-scoped
// storage.
//
// Grounded on chasquid's internal/smtpsrv.Conn, which bundles equivalent
// state (From, To, onTLS, completedAuth, that session's "aliases" cache)
// directly on the connection struct. Here the record is split out so the
// protocol state machine (internal/smtp/protocol) and the hook dispatcher
// (internal/smtp/hooks) can share it without either owning the socket.
//
// Plugin identity binding follows spec §9's design note: rather than the
// dispatcher inspecting the call stack to learn which plugin is running, it
// hands each plugin a Handle bound to that plugin's name up front. A Handle
// is the only way to read or write pluginData, so namespace isolation (spec
// invariant I5) is structural, not enforced by inspection.
package session

import (
	"io"
	"sync"

	"github.com/unmta/unmta/internal/smtp/address"
)

// Phase is one of the coarse stages of the conversation (spec §3).
type Phase int

const (
	PhaseConnection Phase = iota
	PhaseAuth
	PhaseHelo
	PhaseSender
	PhaseRecipient
	PhaseData
	PhasePostData
)

func (p Phase) String() string {
	switch p {
	case PhaseConnection:
		return "connection"
	case PhaseAuth:
		return "auth"
	case PhaseHelo:
		return "helo"
	case PhaseSender:
		return "sender"
	case PhaseRecipient:
		return "recipient"
	case PhaseData:
		return "data"
	case PhasePostData:
		return "postdata"
	default:
		return "unknown"
	}
}

// Greeting records which verb opened the conversation.
type Greeting int

const (
	GreetingNone Greeting = iota
	GreetingHELO
	GreetingEHLO
)

func (g Greeting) String() string {
	switch g {
	case GreetingHELO:
		return "HELO"
	case GreetingEHLO:
		return "EHLO"
	default:
		return ""
	}
}

// Session is the per-connection record, constructed once on accept and
// destroyed when the socket closes (invariant I1).
type Session struct {
	id                int64
	activeConnections int
	startTimeMillis   int64
	remoteAddress     string

	mu              sync.RWMutex
	phase           Phase
	greetingType    Greeting
	isSecure        bool
	isAuthenticated bool
	isDataMode      bool
	dataStream      io.Reader
	sender          *address.Address
	recipients      []address.Address

	pluginMu   sync.RWMutex
	pluginData map[string]map[string]interface{}
}

// New constructs a Session for a freshly accepted connection. id and
// activeConnections are assigned by the server (atomic counters); phase
// starts at connection per spec §3.
func New(id int64, activeConnections int, startTimeMillis int64, remoteAddress string, isSecure bool) *Session {
	return &Session{
		id:                id,
		activeConnections: activeConnections,
		startTimeMillis:   startTimeMillis,
		remoteAddress:     remoteAddress,
		phase:             PhaseConnection,
		isSecure:          isSecure,
		pluginData:        make(map[string]map[string]interface{}),
	}
}

// Read-only accessors (invariant I6: server-owned fields are read-only to
// plugins).

func (s *Session) ID() int64                   { return s.id }
func (s *Session) ActiveConnections() int      { return s.activeConnections }
func (s *Session) StartTimeMillis() int64      { return s.startTimeMillis }
func (s *Session) RemoteAddress() string       { return s.remoteAddress }

func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Session) GreetingType() Greeting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.greetingType
}

func (s *Session) IsSecure() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSecure
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAuthenticated
}

func (s *Session) IsDataMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isDataMode
}

func (s *Session) DataStream() io.Reader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataStream
}

// Sender returns the envelope sender and whether one has been set
// (invariant I4: recipients is empty whenever sender is unset).
func (s *Session) Sender() (address.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sender == nil {
		return address.Address{}, false
	}
	return *s.sender, true
}

// Recipients returns a copy of the accumulated recipient list.
func (s *Session) Recipients() []address.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]address.Address, len(s.recipients))
	copy(out, s.recipients)
	return out
}

// The methods below mutate server-owned state and are called by
// internal/smtp/protocol as it drives the state machine. Plugins are
// handed a Handle rather than a *Session, but Handle.Session returns this
// same *Session, so these methods are reachable from a plugin as well.

func (s *Session) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

func (s *Session) SetGreetingType(g Greeting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greetingType = g
}

func (s *Session) SetSecure(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isSecure = v
}

func (s *Session) SetAuthenticated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isAuthenticated = v
}

func (s *Session) SetDataMode(v bool, stream io.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isDataMode = v
	s.dataStream = stream
}

func (s *Session) SetSender(a address.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = &a
}

func (s *Session) AddRecipient(a address.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients = append(s.recipients, a)
}

// ResetTransaction clears sender, recipients, and the data stream, the
// common tail of RSET, a repeated HELO/EHLO, and the end of a completed
// transaction (spec §4.7 R1/R2). greetingType and isAuthenticated are
// deliberately untouched.
func (s *Session) ResetTransaction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = nil
	s.recipients = nil
	s.isDataMode = false
	s.dataStream = nil
}

// Handle returns the capability a plugin named pluginName uses to read or
// write its own namespace of pluginData, and to read (but not write)
// another plugin's namespace. The dispatcher constructs one per (plugin,
// hook invocation) pair; plugins never construct their own.
func (s *Session) Handle(pluginName string) Handle {
	return Handle{session: s, name: pluginName}
}

// Handle is the capability described above. Its zero value is unusable;
// always obtain one from Session.Handle.
type Handle struct {
	session *Session
	name    string
}

// PluginName returns the name this handle is bound to.
func (h Handle) PluginName() string { return h.name }

// SetOwn writes a value into the bound plugin's own namespace (invariant
// I5).
func (h Handle) SetOwn(key string, value interface{}) {
	h.session.pluginMu.Lock()
	defer h.session.pluginMu.Unlock()
	ns, ok := h.session.pluginData[h.name]
	if !ok {
		ns = make(map[string]interface{})
		h.session.pluginData[h.name] = ns
	}
	ns[key] = value
}

// GetOwn reads a value from the bound plugin's own namespace.
func (h Handle) GetOwn(key string) (interface{}, bool) {
	return h.Get(h.name, key)
}

// Get reads a value from any plugin's namespace, including another
// plugin's (invariant I5 permits cross-plugin reads, not writes).
func (h Handle) Get(pluginName, key string) (interface{}, bool) {
	h.session.pluginMu.RLock()
	defer h.session.pluginMu.RUnlock()
	ns, ok := h.session.pluginData[pluginName]
	if !ok {
		return nil, false
	}
	v, ok := ns[key]
	return v, ok
}

// Session returns the underlying session, for reading server-owned
// fields. The returned *Session also exposes the exported setters above;
// nothing restricts a caller to its read-only accessors.
func (h Handle) Session() *Session { return h.session }

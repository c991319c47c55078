// Package session manages one client session with a group communication
// daemon: connect and disconnect, group membership, and a background worker
// that drains the daemon mailbox into a single ordered delivery channel.
package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/danmuck/groupctl/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Session is safe for use from multiple goroutines. Lifecycle and membership
// calls are serialised; state reads only take the read lock.
type Session struct {
	id     uuid.UUID
	dialer transport.Dialer
	cfg    Config
	log    zerolog.Logger
	rec    Recorder

	deliveries chan transport.Message
	faults     chan error

	// opMu serialises Connect, Disconnect, JoinGroup, LeaveGroup and Close.
	// The worker never takes it.
	opMu sync.Mutex

	mu           sync.RWMutex
	mailbox      transport.Mailbox
	worker       *Worker
	connected    bool
	hostname     string
	privateGroup string
	lastError    int32
	groups       []*Group
	closed       bool
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID           string   `json:"id"`
	Connected    bool     `json:"connected"`
	Hostname     string   `json:"hostname"`
	PrivateGroup string   `json:"private_group"`
	LastError    int32    `json:"last_error"`
	Groups       []string `json:"groups"`
	Worker       string   `json:"worker"`
}

func New(dialer transport.Dialer, opts ...Option) *Session {
	s := &Session{
		id:     uuid.New(),
		dialer: dialer,
		cfg:    DefaultConfig(),
		log:    defaultLogger(),
		rec:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("session", s.id.String()).Logger()
	s.deliveries = make(chan transport.Message, s.cfg.DeliveryBuffer)
	s.faults = make(chan error, 1)
	return s
}

// Dial creates a session and connects it. The session is returned even when
// the connect fails so callers can inspect LastError and retry.
func Dial(ctx context.Context, dialer transport.Dialer, user, host string, port int, opts ...Option) (*Session, error) {
	s := New(dialer, opts...)
	return s, s.Connect(ctx, user, host, port)
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// Connect tears down any current session, then performs the connect handshake
// with group membership notifications enabled. On success the receive worker
// is running; on failure the session is disconnected and LastError holds the
// negated status.
func (s *Session) Connect(ctx context.Context, user, host string, port int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	if err := s.disconnect(); err != nil {
		s.log.Warn().Err(err).Msg("previous session ended with a receive fault")
	}

	mb, err := s.dialer.Connect(ctx, transport.ConnectRequest{
		Target:          transport.Target(host, port),
		User:            user,
		Priority:        s.cfg.Priority,
		GroupMembership: true,
	})
	if err != nil {
		status := transport.StatusOf(err)
		s.mu.Lock()
		s.lastError = -int32(status)
		s.mu.Unlock()
		s.rec.ConnectResult(status)
		s.log.Warn().
			Str("user", user).
			Str("host", host).
			Int("port", port).
			Int32("status", int32(status)).
			Err(err).
			Msg("connect failed")
		return &ConnectionError{Code: status, Err: err}
	}

	w := newWorker(mb, s.deliveries, s.cfg.ReceiveTimeout, s.log.With().Str("component", "worker").Logger(), s.rec, s.publishFault)
	s.mu.Lock()
	s.mailbox = mb
	s.worker = w
	s.connected = true
	s.hostname = host + ":" + strconv.Itoa(port)
	s.privateGroup = mb.PrivateGroup()
	s.mu.Unlock()

	if err := w.Start(); err != nil {
		return fmt.Errorf("session: start worker: %w", err)
	}
	s.rec.ConnectResult(transport.AcceptSession)
	s.log.Info().
		Str("user", user).
		Str("hostname", s.Hostname()).
		Str("private_group", mb.PrivateGroup()).
		Msg("connected")
	return nil
}

// Disconnect stops the worker, waits for it and releases the mailbox. Local
// group membership is cleared. It is a no-op when not connected. A fault that
// ended the worker is returned only if nobody read it from Faults first.
func (s *Session) Disconnect() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.disconnect()
}

func (s *Session) disconnect() error {
	s.mu.RLock()
	connected, w, mb := s.connected, s.worker, s.mailbox
	s.mu.RUnlock()
	if !connected {
		return nil
	}

	werr := w.Stop()
	if werr != nil {
		// onFault has run by now; an empty channel means a reader took it.
		select {
		case <-s.faults:
		default:
			werr = nil
		}
	}
	if err := mb.Close(); err != nil {
		s.log.Debug().Err(err).Msg("mailbox close")
	}

	s.mu.Lock()
	s.mailbox = nil
	s.worker = nil
	s.connected = false
	s.hostname = ""
	s.privateGroup = ""
	s.groups = nil
	s.mu.Unlock()
	s.rec.JoinedGroups(0)
	s.log.Info().Msg("disconnected")
	return werr
}

// JoinGroup joins name and returns a new handle for it. Joining a name twice
// yields two distinct handles; use InGroup to join only when absent.
func (s *Session) JoinGroup(name string) (*Group, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	mb, err := s.activeMailbox()
	if err != nil {
		return nil, err
	}
	if err := mb.Join(name); err != nil {
		status := transport.StatusOf(err)
		s.setLastError(int32(status))
		s.rec.GroupOp("join", status)
		s.log.Warn().Str("group", name).Int32("status", int32(status)).Err(err).Msg("join failed")
		return nil, &MembershipError{Op: "join", Group: name, Code: status, Err: err}
	}

	g := &Group{session: s.id, name: name}
	s.mu.Lock()
	s.groups = append(s.groups, g)
	n := len(s.groups)
	s.mu.Unlock()
	s.rec.GroupOp("join", transport.OK)
	s.rec.JoinedGroups(n)
	s.log.Info().Str("group", name).Msg("joined")
	return g, nil
}

// LeaveGroup leaves the group named by g and drops every local entry with
// that name. A name with no local entry is a no-op. A transport failure is
// returned, but local state is cleared regardless.
func (s *Session) LeaveGroup(g *Group) error {
	if g == nil {
		return ErrNilGroup
	}
	if g.session != s.id {
		return ErrForeignGroup
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	mb, err := s.activeMailbox()
	if err != nil {
		return err
	}
	if !s.InGroup(g.name) {
		return nil
	}

	leaveErr := mb.Leave(g.name)

	s.mu.Lock()
	s.groups = lo.Reject(s.groups, func(item *Group, _ int) bool {
		return item.name == g.name
	})
	n := len(s.groups)
	s.mu.Unlock()
	s.rec.JoinedGroups(n)

	if leaveErr != nil {
		status := transport.StatusOf(leaveErr)
		s.setLastError(int32(status))
		s.rec.GroupOp("leave", status)
		s.log.Warn().Str("group", g.name).Int32("status", int32(status)).Err(leaveErr).Msg("leave failed")
		return &MembershipError{Op: "leave", Group: g.name, Code: status, Err: leaveErr}
	}
	s.rec.GroupOp("leave", transport.OK)
	s.log.Info().Str("group", g.name).Msg("left")
	return nil
}

// Multicast sends payload to group, which may also be a private group name.
func (s *Session) Multicast(group string, payload []byte) error {
	mb, err := s.activeMailbox()
	if err != nil {
		return err
	}
	if err := mb.Multicast(group, payload); err != nil {
		status := transport.StatusOf(err)
		s.setLastError(int32(status))
		s.rec.GroupOp("send", status)
		return &MembershipError{Op: "send", Group: group, Code: status, Err: err}
	}
	s.rec.GroupOp("send", transport.OK)
	return nil
}

func (s *Session) InGroup(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.ContainsBy(s.groups, func(g *Group) bool {
		return g.name == name
	})
}

// Groups returns a copy of the joined handles in join order.
func (s *Session) Groups() []*Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Group(nil), s.groups...)
}

func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Hostname is "host:port" while connected and empty otherwise.
func (s *Session) Hostname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hostname
}

// PrivateGroup is the daemon-assigned private group of the current session.
func (s *Session) PrivateGroup() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.privateGroup
}

// LastError is the last non-zero status of a failed operation. It is never
// cleared by a later success.
func (s *Session) LastError() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Deliveries carries every inbound message in receipt order. The channel is
// shared by all connects of the session and closed by Close.
func (s *Session) Deliveries() <-chan transport.Message {
	return s.deliveries
}

// Faults carries *ReceiveError values from worker loops that died. Faults
// that arrive while one is still unread are logged and dropped.
func (s *Session) Faults() <-chan error {
	return s.faults
}

func (s *Session) WorkerState() WorkerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.worker == nil {
		return WorkerStopped
	}
	return s.worker.State()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		ID:           s.id.String(),
		Connected:    s.connected,
		Hostname:     s.hostname,
		PrivateGroup: s.privateGroup,
		LastError:    s.lastError,
		Groups: lo.Map(s.groups, func(g *Group, _ int) string {
			return g.name
		}),
	}
	s.mu.RUnlock()
	snap.Worker = s.WorkerState().String()
	return snap
}

// Close disconnects and closes the delivery and fault channels. Later
// connects fail with ErrClosed.
func (s *Session) Close() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.isClosed() {
		return nil
	}
	err := s.disconnect()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	close(s.deliveries)
	close(s.faults)
	return err
}

// Version is the client library version as "major.minor.patch".
func Version() string {
	major, minor, patch := transport.Version()
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

func (s *Session) activeMailbox() (transport.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if !s.connected {
		return nil, ErrNotConnected
	}
	return s.mailbox, nil
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) setLastError(code int32) {
	if code == 0 {
		return
	}
	s.mu.Lock()
	s.lastError = code
	s.mu.Unlock()
}

func (s *Session) publishFault(err *ReceiveError) {
	s.setLastError(int32(err.Code))
	select {
	case s.faults <- err:
	default:
		s.log.Warn().Err(err).Msg("fault channel full, dropping fault")
	}
}

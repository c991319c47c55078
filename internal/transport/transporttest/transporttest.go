// Package transporttest provides an in-memory Dialer and Mailbox for tests
// that need a daemon without a socket.
package transporttest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/groupctl/internal/transport"
)

var (
	_ transport.Dialer  = (*Dialer)(nil)
	_ transport.Mailbox = (*Mailbox)(nil)
)

// Call is one recorded mailbox operation.
type Call struct {
	Op      string
	Group   string
	Payload []byte
}

// Dialer hands out a fresh Mailbox per accepted Connect.
type Dialer struct {
	mu        sync.Mutex
	reject    transport.Status
	requests  []transport.ConnectRequest
	mailboxes []*Mailbox
}

func NewDialer() *Dialer {
	return &Dialer{}
}

// Reject makes every following Connect fail with status. OK accepts again.
func (d *Dialer) Reject(status transport.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reject = status
}

func (d *Dialer) Connect(ctx context.Context, req transport.ConnectRequest) (transport.Mailbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, transport.Errorf("connect", transport.CouldNotConnect, err)
	}
	if _, err := transport.ParseTarget(req.Target); err != nil {
		return nil, transport.Errorf("connect", transport.IllegalSpread, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if d.reject != transport.OK && !d.reject.Success() {
		return nil, transport.Errorf("connect", d.reject, errors.New("scripted rejection"))
	}
	mb := NewMailbox("#" + req.User + "#fake")
	d.mailboxes = append(d.mailboxes, mb)
	return mb, nil
}

func (d *Dialer) Requests() []transport.ConnectRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transport.ConnectRequest(nil), d.requests...)
}

func (d *Dialer) Mailboxes() []*Mailbox {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Mailbox(nil), d.mailboxes...)
}

// Last returns the most recently accepted mailbox, or nil.
func (d *Dialer) Last() *Mailbox {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.mailboxes) == 0 {
		return nil
	}
	return d.mailboxes[len(d.mailboxes)-1]
}

type step struct {
	msg transport.Message
	err error
}

// Mailbox is a scripted session. Receive blocks until a message or fault is
// pushed, the mailbox is closed, or its context is done.
type Mailbox struct {
	private string
	script  chan step
	closed  chan struct{}

	mu       sync.Mutex
	calls    []Call
	failures map[string]transport.Status
	closes   int

	receiving atomic.Int32
	closeOnce sync.Once
}

func NewMailbox(privateGroup string) *Mailbox {
	return &Mailbox{
		private:  privateGroup,
		script:   make(chan step, 1024),
		closed:   make(chan struct{}),
		failures: make(map[string]transport.Status),
	}
}

// Push queues msg for Receive.
func (m *Mailbox) Push(msg transport.Message) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	m.script <- step{msg: msg}
}

// Fault queues err so that Receive returns it after earlier pushes drain.
func (m *Mailbox) Fault(err error) {
	m.script <- step{err: err}
}

// FailOp makes op ("join", "leave", "multicast") on group fail with status.
func (m *Mailbox) FailOp(op, group string, status transport.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+"/"+group] = status
}

func (m *Mailbox) PrivateGroup() string {
	return m.private
}

func (m *Mailbox) Join(group string) error {
	if err := transport.ValidateGroupName(group); err != nil {
		return err
	}
	return m.record(Call{Op: "join", Group: group})
}

func (m *Mailbox) Leave(group string) error {
	if err := transport.ValidateGroupName(group); err != nil {
		return err
	}
	return m.record(Call{Op: "leave", Group: group})
}

func (m *Mailbox) Multicast(group string, payload []byte) error {
	return m.record(Call{Op: "multicast", Group: group, Payload: append([]byte(nil), payload...)})
}

func (m *Mailbox) Receive(ctx context.Context) (transport.Message, error) {
	m.receiving.Add(1)
	defer m.receiving.Add(-1)
	select {
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	case <-m.closed:
		return transport.Message{}, transport.Errorf("receive", transport.ConnectionClosed, errors.New("mailbox closed"))
	case s := <-m.script:
		return s.msg, s.err
	}
}

func (m *Mailbox) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

// Receiving reports whether a goroutine is currently blocked in Receive.
func (m *Mailbox) Receiving() bool {
	return m.receiving.Load() > 0
}

func (m *Mailbox) IsClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func (m *Mailbox) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *Mailbox) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Mailbox) record(c Call) error {
	if m.IsClosed() {
		return transport.Errorf(c.Op, transport.ConnectionClosed, errors.New("mailbox closed"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	if status, ok := m.failures[c.Op+"/"+c.Group]; ok {
		return transport.Errorf(c.Op, status, errors.New("scripted failure"))
	}
	return nil
}

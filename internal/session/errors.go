package session

import (
	"fmt"

	"github.com/danmuck/groupctl/internal/transport"
)

// MisuseError is an API call made in a state that does not support it.
type MisuseError string

func (e MisuseError) Error() string {
	return "session: " + string(e)
}

const (
	ErrNotConnected  MisuseError = "not connected"
	ErrNilGroup      MisuseError = "nil group handle"
	ErrForeignGroup  MisuseError = "group handle belongs to another session"
	ErrClosed        MisuseError = "session closed"
	ErrWorkerStarted MisuseError = "worker already started"
)

// ConnectionError is a failed connect handshake.
type ConnectionError struct {
	Code transport.Status
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: connect failed: %s (%d)", e.Code, int32(e.Code))
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// MembershipError is a failed join, leave or send on a group.
type MembershipError struct {
	Op    string
	Group string
	Code  transport.Status
	Err   error
}

func (e *MembershipError) Error() string {
	return fmt.Sprintf("session: %s %q failed: %s (%d)", e.Op, e.Group, e.Code, int32(e.Code))
}

func (e *MembershipError) Unwrap() error {
	return e.Err
}

// ReceiveError ends a worker loop. A deliberate stop never produces one.
type ReceiveError struct {
	Code transport.Status
	Err  error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("session: receive failed: %s (%d)", e.Code, int32(e.Code))
}

func (e *ReceiveError) Unwrap() error {
	return e.Err
}

package transport

import (
	"errors"
	"fmt"
)

// Status is a daemon status code. OK and AcceptSession mean success; every
// negative value is a daemon-specific failure surfaced unmodified.
type Status int32

const (
	OK                Status = 0
	AcceptSession     Status = 1
	IllegalSpread     Status = -1
	CouldNotConnect   Status = -2
	RejectQuota       Status = -3
	RejectNoName      Status = -4
	RejectIllegalName Status = -5
	RejectNotUnique   Status = -6
	RejectVersion     Status = -7
	ConnectionClosed  Status = -8
	RejectAuth        Status = -9
	IllegalSession    Status = -11
	IllegalService    Status = -12
	IllegalMessage    Status = -13
	IllegalGroup      Status = -14
	BufferTooShort    Status = -15
	GroupsTooShort    Status = -16
	MessageTooLong    Status = -17
	NetErrorOnSession Status = -18
)

var statusNames = map[Status]string{
	OK:                "ok",
	AcceptSession:     "accept_session",
	IllegalSpread:     "illegal_spread",
	CouldNotConnect:   "could_not_connect",
	RejectQuota:       "reject_quota",
	RejectNoName:      "reject_no_name",
	RejectIllegalName: "reject_illegal_name",
	RejectNotUnique:   "reject_not_unique",
	RejectVersion:     "reject_version",
	ConnectionClosed:  "connection_closed",
	RejectAuth:        "reject_auth",
	IllegalSession:    "illegal_session",
	IllegalService:    "illegal_service",
	IllegalMessage:    "illegal_message",
	IllegalGroup:      "illegal_group",
	BufferTooShort:    "buffer_too_short",
	GroupsTooShort:    "groups_too_short",
	MessageTooLong:    "message_too_long",
	NetErrorOnSession: "net_error_on_session",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Success reports whether s is one of the success sentinels.
func (s Status) Success() bool {
	return s == OK || s == AcceptSession
}

// StatusError is a failed transport operation carrying the daemon status.
type StatusError struct {
	Op     string
	Status Status
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %s (%d): %v", e.Op, e.Status, int32(e.Status), e.Err)
	}
	return fmt.Sprintf("transport: %s: %s (%d)", e.Op, e.Status, int32(e.Status))
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Errorf builds a StatusError for op.
func Errorf(op string, status Status, err error) error {
	return &StatusError{Op: op, Status: status, Err: err}
}

// StatusOf extracts the daemon status from err. nil maps to OK and errors
// without a status map to IllegalSession.
func StatusOf(err error) Status {
	if err == nil {
		return OK
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return IllegalSession
}

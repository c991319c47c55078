package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/groupctl/internal/protocol"
	"github.com/danmuck/groupctl/internal/protocol/frame"
	"github.com/danmuck/groupctl/internal/protocol/schema"
	"github.com/danmuck/groupctl/internal/protocol/tlv"
	"github.com/danmuck/groupctl/internal/protocol/wire"
	"github.com/danmuck/groupctl/internal/transport"
	"github.com/rs/zerolog"
)

var _ transport.Mailbox = (*Mailbox)(nil)

var errDesynced = errors.New("tcp: stream desynchronised by an interrupted read")

// wakeDeadline is a read deadline in the past; setting it fails a blocked read at once.
var wakeDeadline = time.Unix(1, 0)

// Mailbox is one accepted daemon session. Writes are serialised by writeMu;
// reads belong to whichever goroutine calls Receive.
type Mailbox struct {
	conn         net.Conn
	reader       *bufio.Reader
	cfg          Config
	log          zerolog.Logger
	privateGroup string

	nextMessageID atomic.Uint64
	writeMu       sync.Mutex
	closed        atomic.Bool
	desynced      atomic.Bool
	closeOnce     sync.Once
	closeErr      error
}

func (m *Mailbox) PrivateGroup() string {
	return m.privateGroup
}

func (m *Mailbox) Join(group string) error {
	if err := transport.ValidateGroupName(group); err != nil {
		return err
	}
	return m.write("join", func(w io.Writer, id uint64) error {
		return wire.WriteJoin(w, id, group)
	})
}

func (m *Mailbox) Leave(group string) error {
	if err := transport.ValidateGroupName(group); err != nil {
		return err
	}
	return m.write("leave", func(w io.Writer, id uint64) error {
		return wire.WriteLeave(w, id, group)
	})
}

// Multicast sends payload to group. Private groups ("#...") are valid targets.
func (m *Mailbox) Multicast(group string, payload []byte) error {
	if group == "" || len(group) >= protocol.MaxGroupName {
		return transport.Errorf("multicast", transport.IllegalGroup, fmt.Errorf("invalid group name %q", group))
	}
	err := m.write("multicast", func(w io.Writer, id uint64) error {
		return wire.WriteMulticast(w, id, wire.Multicast{
			Group:       group,
			Payload:     payload,
			SelfDiscard: m.cfg.SelfDiscard,
		})
	})
	if errors.Is(err, frame.ErrPayloadTooLarge) {
		return transport.Errorf("multicast", transport.MessageTooLong, err)
	}
	return err
}

// Receive blocks until the daemon delivers a regular or membership message,
// the connection fails, or ctx is done. A cancel that lands while waiting for
// a frame leaves the mailbox usable. A cancel that lands mid-frame desyncs the
// stream, so every later Receive fails with ConnectionClosed.
func (m *Mailbox) Receive(ctx context.Context) (transport.Message, error) {
	for {
		if m.closed.Load() {
			return transport.Message{}, transport.Errorf("receive", transport.ConnectionClosed, net.ErrClosed)
		}
		if m.desynced.Load() {
			return transport.Message{}, transport.Errorf("receive", transport.ConnectionClosed, errDesynced)
		}
		if err := ctx.Err(); err != nil {
			return transport.Message{}, err
		}

		woke := make(chan struct{})
		stop := context.AfterFunc(ctx, func() {
			defer close(woke)
			_ = m.conn.SetReadDeadline(wakeDeadline)
		})
		f, started, err := m.readFrame()
		if !stop() {
			<-woke
			_ = m.conn.SetReadDeadline(time.Time{})
			if err != nil {
				if started {
					m.desynced.Store(true)
					m.log.Warn().Msg("receive interrupted mid-frame, mailbox unusable")
				}
				return transport.Message{}, ctx.Err()
			}
		}
		if err != nil {
			return transport.Message{}, m.readError(err)
		}

		msg, ok, err := m.decode(f)
		if err != nil {
			return transport.Message{}, err
		}
		if ok {
			msg.ReceivedAt = time.Now()
			return msg, nil
		}
	}
}

// readFrame reports started once the first byte of a frame is buffered.
func (m *Mailbox) readFrame() (frame.Frame, bool, error) {
	if _, err := m.reader.Peek(1); err != nil {
		return frame.Frame{}, false, err
	}
	f, err := frame.ReadFrame(m.reader, m.cfg.Limits)
	return f, true, err
}

// Close sends a best-effort disconnect and releases the socket. Idempotent.
func (m *Mailbox) Close() error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.writeMu.Lock()
		_ = m.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := wire.WriteDisconnect(m.conn, m.nextMessageID.Add(1)); err != nil {
			m.log.Debug().Err(err).Msg("disconnect notice not sent")
		}
		m.writeMu.Unlock()
		m.closeErr = m.conn.Close()
	})
	return m.closeErr
}

func (m *Mailbox) decode(f frame.Frame) (transport.Message, bool, error) {
	switch f.Header.MessageType {
	case schema.MsgDeliver:
		d, err := wire.DecodeDeliver(f)
		if err != nil {
			return transport.Message{}, false, transport.Errorf("receive", transport.IllegalMessage, err)
		}
		return transport.Message{
			Group:   d.Group,
			Sender:  d.Sender,
			Kind:    transport.KindRegular,
			Payload: d.Payload,
		}, true, nil
	case schema.MsgMembership:
		ms, err := wire.DecodeMembership(f)
		if err != nil {
			return transport.Message{}, false, transport.Errorf("receive", transport.IllegalMessage, err)
		}
		return transport.Message{
			Group:   ms.Group,
			Kind:    transport.KindMembership,
			Members: ms.Members,
			Reason:  ms.Reason.String(),
		}, true, nil
	case schema.MsgDisconnect:
		return transport.Message{}, false, transport.Errorf("receive", transport.ConnectionClosed, errors.New("daemon closed session"))
	default:
		m.log.Debug().Uint32("message_type", f.Header.MessageType).Msg("ignoring unexpected frame")
		return transport.Message{}, false, nil
	}
}

func (m *Mailbox) write(op string, fn func(w io.Writer, id uint64) error) error {
	if m.closed.Load() {
		return transport.Errorf(op, transport.ConnectionClosed, net.ErrClosed)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = m.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	err := fn(m.conn, m.nextMessageID.Add(1))
	if err == nil {
		return nil
	}
	var ve schema.ValidationError
	if errors.As(err, &ve) || errors.Is(err, frame.ErrPayloadTooLarge) {
		return err
	}
	return transport.Errorf(op, transport.ConnectionClosed, err)
}

func (m *Mailbox) readError(err error) error {
	switch {
	case m.closed.Load(),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET):
		return transport.Errorf("receive", transport.ConnectionClosed, err)
	case errors.Is(err, protocol.ErrInvalidMagic),
		errors.Is(err, protocol.ErrUnsupportedVersion),
		errors.Is(err, frame.ErrShortHeader),
		errors.Is(err, frame.ErrHeaderLenMismatch),
		errors.Is(err, frame.ErrPayloadTooLarge),
		errors.Is(err, tlv.ErrShortFieldHeader),
		errors.Is(err, tlv.ErrShortFieldValue):
		return transport.Errorf("receive", transport.IllegalMessage, err)
	default:
		return transport.Errorf("receive", transport.NetErrorOnSession, err)
	}
}

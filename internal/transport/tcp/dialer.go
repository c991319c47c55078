// Package tcp speaks the daemon wire protocol over a TCP socket.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/danmuck/groupctl/internal/protocol"
	"github.com/danmuck/groupctl/internal/protocol/frame"
	"github.com/danmuck/groupctl/internal/protocol/wire"
	"github.com/danmuck/groupctl/internal/transport"
	"github.com/rs/zerolog"
)

var _ transport.Dialer = (*Dialer)(nil)

// Dialer opens daemon sessions over TCP.
type Dialer struct {
	cfg Config
	log zerolog.Logger
}

func NewDialer(cfg Config, log zerolog.Logger) *Dialer {
	return &Dialer{cfg: cfg.WithDefaults(), log: log}
}

// Connect dials the daemon and runs the connect handshake. Failures are
// *transport.StatusError values carrying the daemon (or local) status.
func (d *Dialer) Connect(ctx context.Context, req transport.ConnectRequest) (transport.Mailbox, error) {
	addr, err := transport.ParseTarget(req.Target)
	if err != nil {
		return nil, transport.Errorf("connect", transport.IllegalSpread, err)
	}
	if strings.TrimSpace(req.User) == "" {
		return nil, transport.Errorf("connect", transport.RejectNoName, nil)
	}

	dialer := net.Dialer{Timeout: d.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		d.log.Warn().Str("addr", addr).Err(err).Msg("dial failed")
		return nil, transport.Errorf("connect", transport.CouldNotConnect, err)
	}

	mb, err := d.handshake(conn, req)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	d.log.Info().
		Str("addr", addr).
		Str("user", req.User).
		Str("private_group", mb.privateGroup).
		Msg("session accepted")
	return mb, nil
}

func (d *Dialer) handshake(conn net.Conn, req transport.ConnectRequest) (*Mailbox, error) {
	_ = conn.SetDeadline(time.Now().Add(d.cfg.HandshakeTimeout))
	reader := bufio.NewReader(conn)

	priority := req.Priority
	if priority < protocol.PriorityLow {
		priority = protocol.PriorityLow
	}
	err := wire.WriteConnect(conn, 1, wire.Connect{
		User:            req.User,
		Priority:        uint32(priority),
		GroupMembership: req.GroupMembership,
	})
	if err != nil {
		return nil, transport.Errorf("connect", transport.CouldNotConnect, err)
	}

	f, err := frame.ReadFrame(reader, d.cfg.Limits)
	if err != nil {
		return nil, transport.Errorf("connect", handshakeStatus(err), err)
	}
	ack, err := wire.DecodeConnectAck(f)
	if err != nil {
		return nil, transport.Errorf("connect", transport.IllegalSpread, err)
	}
	if status := transport.Status(ack.Status); status != transport.AcceptSession {
		return nil, transport.Errorf("connect", status, nil)
	}
	_ = conn.SetDeadline(time.Time{})

	mb := &Mailbox{
		conn:         conn,
		reader:       reader,
		cfg:          d.cfg,
		log:          d.log.With().Str("private_group", ack.PrivateGroup).Logger(),
		privateGroup: ack.PrivateGroup,
	}
	mb.nextMessageID.Store(1)
	return mb, nil
}

func handshakeStatus(err error) transport.Status {
	switch {
	case errors.Is(err, protocol.ErrInvalidMagic), errors.Is(err, protocol.ErrUnsupportedVersion):
		return transport.RejectVersion
	default:
		return transport.CouldNotConnect
	}
}

package tcp

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/groupctl/internal/protocol/frame"
	"github.com/danmuck/groupctl/internal/protocol/schema"
	"github.com/danmuck/groupctl/internal/protocol/wire"
	"github.com/danmuck/groupctl/internal/testutil/testlog"
	"github.com/danmuck/groupctl/internal/transport"
	"github.com/rs/zerolog"
)

// fakeDaemon accepts one session, answers the handshake with status and then
// hands the raw connection to script.
func fakeDaemon(t *testing.T, status int32, script func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		f, err := frame.ReadFrame(conn, frame.DefaultLimits())
		if err != nil {
			return
		}
		if _, err := wire.DecodeConnect(f); err != nil {
			return
		}
		ack := wire.ConnectAck{Status: status}
		if status == int32(transport.AcceptSession) {
			ack.PrivateGroup = "#alice#daemon"
		}
		if err := wire.WriteConnectAck(conn, 1, ack); err != nil {
			return
		}
		if script != nil {
			script(conn)
		}
	}()

	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split listener addr: %v", err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("listener port: %v", err)
	}
	return transport.Target("127.0.0.1", p)
}

func dial(t *testing.T, target string) (transport.Mailbox, error) {
	t.Helper()
	d := NewDialer(Config{ConnectTimeout: time.Second, HandshakeTimeout: time.Second}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return d.Connect(ctx, transport.ConnectRequest{Target: target, User: "alice", GroupMembership: true})
}

func mustDial(t *testing.T, target string) transport.Mailbox {
	t.Helper()
	mb, err := dial(t, target)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return mb
}

func drainOne(conn net.Conn) {
	_, _ = frame.ReadFrame(conn, frame.DefaultLimits())
}

func TestConnectAccepted(t *testing.T) {
	testlog.Start(t)
	mb := mustDial(t, fakeDaemon(t, int32(transport.AcceptSession), drainOne))
	if got := mb.PrivateGroup(); got != "#alice#daemon" {
		t.Fatalf("private group got=%q", got)
	}
	if err := mb.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := mb.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestConnectRejectedCarriesDaemonStatus(t *testing.T) {
	testlog.Start(t)
	_, err := dial(t, fakeDaemon(t, int32(transport.RejectNotUnique), nil))
	if got := transport.StatusOf(err); got != transport.RejectNotUnique {
		t.Fatalf("status got=%v err=%v", got, err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	_, err = dial(t, addr)
	if got := transport.StatusOf(err); got != transport.CouldNotConnect {
		t.Fatalf("status got=%v err=%v", got, err)
	}
}

func TestConnectRejectsBadTargetAndEmptyUser(t *testing.T) {
	testlog.Start(t)
	_, err := dial(t, "nope@localhost")
	if got := transport.StatusOf(err); got != transport.IllegalSpread {
		t.Fatalf("bad target status got=%v", got)
	}

	d := NewDialer(Config{}, zerolog.Nop())
	_, err = d.Connect(context.Background(), transport.ConnectRequest{Target: "4803@localhost"})
	if got := transport.StatusOf(err); got != transport.RejectNoName {
		t.Fatalf("empty user status got=%v", got)
	}
}

func TestJoinMulticastAndReceive(t *testing.T) {
	testlog.Start(t)
	seen := make(chan string, 4)
	target := fakeDaemon(t, int32(transport.AcceptSession), func(conn net.Conn) {
		for i := 0; i < 2; i++ {
			f, err := frame.ReadFrame(conn, frame.DefaultLimits())
			if err != nil {
				return
			}
			switch f.Header.MessageType {
			case schema.MsgJoin:
				group, _ := wire.DecodeGroupRequest(f)
				seen <- "join:" + group
				_ = wire.WriteMembership(conn, 2, wire.Membership{
					Group:   group,
					Reason:  wire.CausedByJoin,
					Members: []string{"#alice#daemon"},
				})
			case schema.MsgMulticast:
				m, _ := wire.DecodeMulticast(f)
				seen <- "multicast:" + m.Group
				_ = wire.WriteDeliver(conn, 3, wire.Deliver{Group: m.Group, Sender: "#alice#daemon", Payload: m.Payload})
			}
		}
		drainOne(conn)
	})
	mb := mustDial(t, target)
	defer mb.Close()

	if err := mb.Join("lobby"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := mb.Multicast("lobby", []byte("hello")); err != nil {
		t.Fatalf("multicast: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	first, err := mb.Receive(ctx)
	if err != nil {
		t.Fatalf("receive membership: %v", err)
	}
	if first.Kind != transport.KindMembership || first.Group != "lobby" || len(first.Members) != 1 || first.Members[0] != "#alice#daemon" {
		t.Fatalf("unexpected membership message: %+v", first)
	}

	second, err := mb.Receive(ctx)
	if err != nil {
		t.Fatalf("receive deliver: %v", err)
	}
	if second.Kind != transport.KindRegular || string(second.Payload) != "hello" || second.ReceivedAt.IsZero() {
		t.Fatalf("unexpected regular message: %+v", second)
	}

	if got := <-seen; got != "join:lobby" {
		t.Fatalf("daemon saw %q first", got)
	}
	if got := <-seen; got != "multicast:lobby" {
		t.Fatalf("daemon saw %q second", got)
	}
}

func TestReceiveWakesOnCancelAndStaysUsable(t *testing.T) {
	testlog.Start(t)
	release := make(chan struct{})
	target := fakeDaemon(t, int32(transport.AcceptSession), func(conn net.Conn) {
		<-release
		_ = wire.WriteDeliver(conn, 2, wire.Deliver{Group: "lobby", Sender: "#bob#daemon", Payload: []byte("late")})
		drainOne(conn)
	})
	mb := mustDial(t, target)
	defer mb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := mb.Receive(ctx)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("receive after cancel got=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not wake on cancel")
	}

	close(release)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	msg, err := mb.Receive(ctx2)
	if err != nil || string(msg.Payload) != "late" {
		t.Fatalf("receive after wake got=%+v err=%v", msg, err)
	}
}

func TestReceiveWakesMidFrameAndRetiresMailbox(t *testing.T) {
	testlog.Start(t)
	stall := make(chan struct{})
	t.Cleanup(func() { close(stall) })
	target := fakeDaemon(t, int32(transport.AcceptSession), func(conn net.Conn) {
		header := frame.EncodeHeader(frame.NewHeader(2, schema.MsgDeliver))
		_, _ = conn.Write(header[:3])
		<-stall
	})
	mb := mustDial(t, target)
	defer mb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := mb.Receive(ctx)
		done <- err
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("receive after mid-frame cancel got=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receive stuck on a partial frame after cancel")
	}

	_, err := mb.Receive(context.Background())
	if got := transport.StatusOf(err); got != transport.ConnectionClosed {
		t.Fatalf("receive on desynced mailbox status got=%v err=%v", got, err)
	}
}

func TestReceivePeerCloseIsConnectionClosed(t *testing.T) {
	testlog.Start(t)
	mb := mustDial(t, fakeDaemon(t, int32(transport.AcceptSession), func(conn net.Conn) {}))
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := mb.Receive(ctx)
	if got := transport.StatusOf(err); got != transport.ConnectionClosed {
		t.Fatalf("status got=%v err=%v", got, err)
	}
}

func TestInvalidGroupNamesNeverReachTheWire(t *testing.T) {
	testlog.Start(t)
	mb := mustDial(t, fakeDaemon(t, int32(transport.AcceptSession), drainOne))
	defer mb.Close()

	cases := []struct {
		name string
		err  error
		want transport.Status
	}{
		{"empty join", mb.Join(""), transport.IllegalGroup},
		{"long leave", mb.Leave(strings.Repeat("g", 40)), transport.IllegalGroup},
		{"empty multicast", mb.Multicast("", []byte("x")), transport.IllegalGroup},
		{"oversized payload", mb.Multicast("lobby", make([]byte, 200*1024)), transport.MessageTooLong},
	}
	for _, tc := range cases {
		if got := transport.StatusOf(tc.err); got != tc.want {
			t.Fatalf("%s: status got=%v want=%v", tc.name, got, tc.want)
		}
	}
}

func TestWritesAfterCloseFail(t *testing.T) {
	testlog.Start(t)
	mb := mustDial(t, fakeDaemon(t, int32(transport.AcceptSession), drainOne))
	if err := mb.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := transport.StatusOf(mb.Join("lobby")); got != transport.ConnectionClosed {
		t.Fatalf("join after close status got=%v", got)
	}
	_, err := mb.Receive(context.Background())
	if got := transport.StatusOf(err); got != transport.ConnectionClosed {
		t.Fatalf("receive after close status got=%v", got)
	}
}

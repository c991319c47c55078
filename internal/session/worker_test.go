package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/groupctl/internal/testutil/testlog"
	"github.com/danmuck/groupctl/internal/transport"
	"github.com/danmuck/groupctl/internal/transport/transporttest"
	"github.com/rs/zerolog"
)

func TestWorkerLifecycle(t *testing.T) {
	testlog.Start(t)
	mb := transporttest.NewMailbox("#w#fake")
	out := make(chan transport.Message, 1)
	w := newWorker(mb, out, 0, zerolog.Nop(), nil, nil)
	if got := w.State(); got != WorkerIdle {
		t.Fatalf("initial state got=%v", got)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Start(); !errors.Is(err, ErrWorkerStarted) {
		t.Fatalf("second start got=%v", err)
	}
	if got := w.State(); got != WorkerRunning {
		t.Fatalf("running state got=%v", got)
	}

	mb.Push(transport.Message{Group: "lobby", Payload: []byte("one")})
	if got := string((<-out).Payload); got != "one" {
		t.Fatalf("delivered payload got=%q", got)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := w.State(); got != WorkerStopped {
		t.Fatalf("stopped state got=%v", got)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if mb.IsClosed() {
		t.Fatal("worker closed a borrowed mailbox")
	}
}

func TestWorkerStopDoesNotBlockOnFullDelivery(t *testing.T) {
	testlog.Start(t)
	mb := transporttest.NewMailbox("#w#fake")
	out := make(chan transport.Message)
	w := newWorker(mb, out, 0, zerolog.Nop(), nil, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	mb.Push(transport.Message{Group: "lobby"})

	deadline := time.Now().Add(time.Second)
	for mb.Receiving() {
		if time.Now().After(deadline) {
			t.Fatal("worker never picked up the pushed message")
		}
		time.Sleep(time.Millisecond)
	}

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("stop blocked on unread delivery")
	}
}

func TestWorkerStopBeforeStart(t *testing.T) {
	testlog.Start(t)
	w := newWorker(transporttest.NewMailbox(""), make(chan transport.Message), 0, zerolog.Nop(), nil, nil)
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := w.State(); got != WorkerStopped {
		t.Fatalf("state got=%v", got)
	}
	if err := w.Start(); !errors.Is(err, ErrWorkerStarted) {
		t.Fatalf("start after stop got=%v", err)
	}
	<-w.Done()
}

func TestWorkerFaultEndsLoop(t *testing.T) {
	testlog.Start(t)
	mb := transporttest.NewMailbox("#w#fake")
	faults := make(chan *ReceiveError, 1)
	w := newWorker(mb, make(chan transport.Message, 1), 0, zerolog.Nop(), nil, func(err *ReceiveError) {
		faults <- err
	})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	mb.Fault(context.DeadlineExceeded)

	rerr := <-faults
	if rerr.Code != transport.IllegalSession {
		t.Fatalf("fault code got=%v", rerr.Code)
	}
	<-w.Done()
	if got := w.State(); got != WorkerStopped {
		t.Fatalf("state after fault got=%v", got)
	}
	if err := w.Stop(); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("stop after fault got=%v", err)
	}
}

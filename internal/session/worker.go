package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/danmuck/groupctl/internal/transport"
	"github.com/rs/zerolog"
)

type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerRunning
	WorkerStopping
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerRunning:
		return "running"
	case WorkerStopping:
		return "stopping"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker drains one mailbox into the delivery channel on its own goroutine.
// It borrows the mailbox; closing it is the owner's job after Stop returns.
type Worker struct {
	mailbox        transport.Mailbox
	out            chan<- transport.Message
	receiveTimeout time.Duration
	log            zerolog.Logger
	rec            Recorder
	onFault        func(*ReceiveError)

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	// err is written by the loop before done is closed.
	err *ReceiveError
}

func newWorker(mb transport.Mailbox, out chan<- transport.Message, receiveTimeout time.Duration, log zerolog.Logger, rec Recorder, onFault func(*ReceiveError)) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Worker{
		mailbox:        mb,
		out:            out,
		receiveTimeout: receiveTimeout,
		log:            log,
		rec:            rec,
		onFault:        onFault,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Start spawns the receive loop. It may be called once.
func (w *Worker) Start() error {
	if !w.state.CompareAndSwap(int32(WorkerIdle), int32(WorkerRunning)) {
		return ErrWorkerStarted
	}
	go w.run()
	return nil
}

// Stop cancels the loop and waits for it to exit. It returns the loop's
// *ReceiveError if a transport fault had already ended it, nil otherwise.
func (w *Worker) Stop() error {
	if w.state.CompareAndSwap(int32(WorkerIdle), int32(WorkerStopped)) {
		w.cancel()
		close(w.done)
		return nil
	}
	w.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerStopping))
	w.cancel()
	<-w.done
	if w.err != nil {
		return w.err
	}
	return nil
}

// Done is closed once the loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) run() {
	defer close(w.done)
	defer w.state.Store(int32(WorkerStopped))
	w.log.Debug().Msg("worker started")

	for w.State() == WorkerRunning {
		msg, err := w.receive()
		if err != nil {
			if w.ctx.Err() != nil {
				w.log.Debug().Msg("worker stopped")
				return
			}
			if w.receiveTimeout > 0 && errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.fault(err)
			return
		}

		w.rec.MessageReceived(msg.Kind)
		select {
		case w.out <- msg:
		case <-w.ctx.Done():
			w.log.Debug().Str("group", msg.Group).Msg("worker stopped with undelivered message")
			return
		}
	}
}

func (w *Worker) receive() (transport.Message, error) {
	if w.receiveTimeout <= 0 {
		return w.mailbox.Receive(w.ctx)
	}
	ctx, cancel := context.WithTimeout(w.ctx, w.receiveTimeout)
	defer cancel()
	return w.mailbox.Receive(ctx)
}

func (w *Worker) fault(err error) {
	rerr := &ReceiveError{Code: transport.StatusOf(err), Err: err}
	w.err = rerr
	w.log.Error().Err(err).Int32("status", int32(rerr.Code)).Msg("receive loop ended")
	w.rec.ReceiveFault(rerr.Code)
	if w.onFault != nil {
		w.onFault(rerr)
	}
}

package session

import (
	"time"

	"github.com/danmuck/groupctl/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the session knobs that are not connect arguments.
type Config struct {
	// DeliveryBuffer is the capacity of the Deliveries channel.
	DeliveryBuffer int
	// ReceiveTimeout bounds each mailbox receive when positive. An expired
	// bound is not a fault; the worker just checks for stop and waits again.
	ReceiveTimeout time.Duration
	Priority       int
}

func DefaultConfig() Config {
	return Config{
		DeliveryBuffer: 64,
	}
}

// Recorder receives session events for metrics. Implementations must be
// safe for concurrent use.
type Recorder interface {
	ConnectResult(status transport.Status)
	GroupOp(op string, status transport.Status)
	MessageReceived(kind transport.MessageKind)
	ReceiveFault(status transport.Status)
	JoinedGroups(n int)
}

type Option func(*Session)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Session) {
		if cfg.DeliveryBuffer < 0 {
			cfg.DeliveryBuffer = 0
		}
		s.cfg = cfg
	}
}

// WithRecorder attaches r; nil keeps the no-op recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Session) {
		if r != nil {
			s.rec = r
		}
	}
}

func defaultLogger() zerolog.Logger {
	return log.With().Str("component", "session").Logger()
}

type nopRecorder struct{}

func (nopRecorder) ConnectResult(transport.Status)        {}
func (nopRecorder) GroupOp(string, transport.Status)      {}
func (nopRecorder) MessageReceived(transport.MessageKind) {}
func (nopRecorder) ReceiveFault(transport.Status)         {}
func (nopRecorder) JoinedGroups(int)                      {}

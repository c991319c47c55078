package observability

import (
	"strconv"
	"time"

	"github.com/danmuck/groupctl/internal/session"
	"github.com/danmuck/groupctl/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
)

var _ session.Recorder = (*SessionMetrics)(nil)

// SessionMetrics exports session events as prometheus collectors. A nil
// *SessionMetrics records nothing.
type SessionMetrics struct {
	connects     *prometheus.CounterVec
	groupOps     *prometheus.CounterVec
	received     *prometheus.CounterVec
	faults       *prometheus.CounterVec
	joinedGroups prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewSessionMetrics builds the collectors and registers them with reg.
func NewSessionMetrics(reg prometheus.Registerer) (*SessionMetrics, error) {
	m := &SessionMetrics{
		connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "groupctl",
				Subsystem: "session",
				Name:      "connects_total",
				Help:      "Connect attempts by result.",
			},
			[]string{"result"},
		),
		groupOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "groupctl",
				Subsystem: "session",
				Name:      "group_ops_total",
				Help:      "Join, leave and send operations by result.",
			},
			[]string{"op", "result"},
		),
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "groupctl",
				Subsystem: "session",
				Name:      "messages_received_total",
				Help:      "Messages drained from the daemon mailbox.",
			},
			[]string{"kind"},
		),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "groupctl",
				Subsystem: "session",
				Name:      "receive_faults_total",
				Help:      "Receive loops ended by a transport fault.",
			},
			[]string{"status"},
		),
		joinedGroups: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "groupctl",
				Subsystem: "session",
				Name:      "joined_groups",
				Help:      "Groups currently joined by the session.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "groupctl",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total status HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "groupctl",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Status HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
	for _, c := range []prometheus.Collector{m.connects, m.groupOps, m.received, m.faults, m.joinedGroups, m.httpRequests, m.httpDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *SessionMetrics) ConnectResult(status transport.Status) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(result(status)).Inc()
}

func (m *SessionMetrics) GroupOp(op string, status transport.Status) {
	if m == nil {
		return
	}
	m.groupOps.WithLabelValues(op, result(status)).Inc()
}

func (m *SessionMetrics) MessageReceived(kind transport.MessageKind) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(kind.String()).Inc()
}

func (m *SessionMetrics) ReceiveFault(status transport.Status) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(status.String()).Inc()
}

func (m *SessionMetrics) JoinedGroups(n int) {
	if m == nil {
		return
	}
	m.joinedGroups.Set(float64(n))
}

func (m *SessionMetrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// result is "ok" for success sentinels and the status name otherwise.
func result(status transport.Status) string {
	if status.Success() {
		return "ok"
	}
	return status.String()
}

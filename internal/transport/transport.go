package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/groupctl/internal/protocol"
)

// DefaultPort is the daemon's well-known client port.
const DefaultPort = 4803

// MessageKind separates regular traffic from membership notifications.
type MessageKind int

const (
	KindRegular MessageKind = iota
	KindMembership
)

func (k MessageKind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindMembership:
		return "membership"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is one inbound delivery. It is owned by whoever dequeues it.
type Message struct {
	Group      string
	Sender     string
	Kind       MessageKind
	Payload    []byte
	ReceivedAt time.Time

	// Members and Reason are only set on membership notifications.
	Members []string
	Reason  string
}

// ConnectRequest is the connect handshake input.
type ConnectRequest struct {
	// Target is "<port>@<host>", "<host>:<port>" or a bare port on localhost.
	Target          string
	User            string
	Priority        int
	GroupMembership bool
}

// Dialer performs the connect handshake and hands back a Mailbox.
type Dialer interface {
	Connect(ctx context.Context, req ConnectRequest) (Mailbox, error)
}

// Mailbox is an open daemon session.
type Mailbox interface {
	PrivateGroup() string
	Join(group string) error
	Leave(group string) error
	Multicast(group string, payload []byte) error
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Version reports the client library version as major, minor, patch.
func Version() (int, int, int) {
	return protocol.VersionMajor, protocol.VersionMinor, protocol.VersionPatch
}

// Target renders the daemon connect target for host and port.
func Target(host string, port int) string {
	return strconv.Itoa(port) + "@" + host
}

// ParseTarget resolves a connect target into a dialable "host:port".
func ParseTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("transport: empty target")
	}
	if portStr, host, ok := strings.Cut(target, "@"); ok {
		port, err := parsePort(portStr)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(host) == "" {
			host = "localhost"
		}
		return net.JoinHostPort(strings.TrimSpace(host), strconv.Itoa(port)), nil
	}
	if host, portStr, err := net.SplitHostPort(target); err == nil {
		if _, err := parsePort(portStr); err != nil {
			return "", err
		}
		if host == "" {
			host = "localhost"
		}
		return net.JoinHostPort(host, portStr), nil
	}
	port, err := parsePort(target)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort("localhost", strconv.Itoa(port)), nil
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("transport: invalid port %q", raw)
	}
	return port, nil
}

// ValidateGroupName applies the daemon's group naming rules. Names starting
// with '#' are private groups and cannot be joined.
func ValidateGroupName(name string) error {
	if name == "" || len(name) >= protocol.MaxGroupName || name[0] == '#' {
		return &StatusError{Op: "group", Status: IllegalGroup, Err: fmt.Errorf("invalid group name %q", name)}
	}
	for i := 0; i < len(name); i++ {
		if name[i] <= ' ' || name[i] == 0x7f {
			return &StatusError{Op: "group", Status: IllegalGroup, Err: fmt.Errorf("invalid group name %q", name)}
		}
	}
	return nil
}

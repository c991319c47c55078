// Package wire encodes and decodes the typed messages exchanged with the
// daemon. Client->daemon: Connect, Join, Leave, Multicast, Disconnect.
// Daemon->client: ConnectAck, Deliver, Membership.
package wire

import (
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/groupctl/internal/protocol"
	"github.com/danmuck/groupctl/internal/protocol/frame"
	"github.com/danmuck/groupctl/internal/protocol/schema"
	"github.com/danmuck/groupctl/internal/protocol/tlv"
)

// MembershipReason says why a group's member list changed.
type MembershipReason uint32

const (
	CausedByJoin       MembershipReason = 1
	CausedByLeave      MembershipReason = 2
	CausedByDisconnect MembershipReason = 3
	CausedByNetwork    MembershipReason = 4
)

func (r MembershipReason) String() string {
	switch r {
	case CausedByJoin:
		return "join"
	case CausedByLeave:
		return "leave"
	case CausedByDisconnect:
		return "disconnect"
	case CausedByNetwork:
		return "network"
	default:
		return fmt.Sprintf("reason(%d)", uint32(r))
	}
}

// Connect opens a session for User.
type Connect struct {
	User            string
	Priority        uint32
	GroupMembership bool
}

// ConnectAck answers Connect. PrivateGroup is only set when accepted.
type ConnectAck struct {
	Status       int32
	PrivateGroup string
}

// Multicast sends Payload to every member of Group.
type Multicast struct {
	Group       string
	Payload     []byte
	SelfDiscard bool
}

// Deliver is one regular message fanned out by the daemon.
type Deliver struct {
	Group   string
	Sender  string
	Payload []byte
}

// Membership reports the current member list of Group after a change.
type Membership struct {
	Group   string
	Reason  MembershipReason
	Members []string
}

func WriteConnect(w io.Writer, messageID uint64, c Connect) error {
	if strings.TrimSpace(c.User) == "" {
		return fmt.Errorf("wire: connect missing user")
	}
	return writeMessage(w, messageID, schema.MsgConnect, 0, []tlv.Field{
		tlv.String(schema.FieldUser, c.User),
		tlv.Bool(schema.FieldGroupMembership, c.GroupMembership),
		tlv.U32(schema.FieldPriority, c.Priority),
	})
}

func DecodeConnect(f frame.Frame) (Connect, error) {
	fields, err := decodeMessage(f, schema.MsgConnect)
	if err != nil {
		return Connect{}, err
	}
	user, _ := tlv.GetField(fields, schema.FieldUser)
	membership, _ := tlv.GetField(fields, schema.FieldGroupMembership)
	priority, _ := tlv.GetField(fields, schema.FieldPriority)
	out := Connect{User: string(user.Value)}
	if out.GroupMembership, err = tlv.BoolFromBytes(membership.Value); err != nil {
		return Connect{}, err
	}
	if out.Priority, err = tlv.U32FromBytes(priority.Value); err != nil {
		return Connect{}, err
	}
	return out, nil
}

func WriteConnectAck(w io.Writer, messageID uint64, a ConnectAck) error {
	fields := []tlv.Field{tlv.I32(schema.FieldStatus, a.Status)}
	if a.PrivateGroup != "" {
		fields = append(fields, tlv.String(schema.FieldPrivateGroup, a.PrivateGroup))
	}
	return writeMessage(w, messageID, schema.MsgConnectAck, 0, fields)
}

func DecodeConnectAck(f frame.Frame) (ConnectAck, error) {
	fields, err := decodeMessage(f, schema.MsgConnectAck)
	if err != nil {
		return ConnectAck{}, err
	}
	status, _ := tlv.GetField(fields, schema.FieldStatus)
	out := ConnectAck{}
	if out.Status, err = tlv.I32FromBytes(status.Value); err != nil {
		return ConnectAck{}, err
	}
	if pg, ok := tlv.GetField(fields, schema.FieldPrivateGroup); ok {
		if err := tlv.MustType(pg, tlv.TypeString); err != nil {
			return ConnectAck{}, err
		}
		out.PrivateGroup = string(pg.Value)
	}
	return out, nil
}

func WriteJoin(w io.Writer, messageID uint64, group string) error {
	return writeMessage(w, messageID, schema.MsgJoin, 0, []tlv.Field{tlv.String(schema.FieldGroup, group)})
}

func WriteLeave(w io.Writer, messageID uint64, group string) error {
	return writeMessage(w, messageID, schema.MsgLeave, 0, []tlv.Field{tlv.String(schema.FieldGroup, group)})
}

// DecodeGroupRequest reads the group of a Join or Leave frame.
func DecodeGroupRequest(f frame.Frame) (string, error) {
	switch f.Header.MessageType {
	case schema.MsgJoin, schema.MsgLeave:
	default:
		return "", fmt.Errorf("%w: got=%d", protocol.ErrMessageTypeMismatch, f.Header.MessageType)
	}
	fields, err := decodeMessage(f, f.Header.MessageType)
	if err != nil {
		return "", err
	}
	group, _ := tlv.GetField(fields, schema.FieldGroup)
	return string(group.Value), nil
}

func WriteMulticast(w io.Writer, messageID uint64, m Multicast) error {
	var flags uint32
	if m.SelfDiscard {
		flags |= frame.FlagSelfDiscard
	}
	return writeMessage(w, messageID, schema.MsgMulticast, flags, []tlv.Field{
		tlv.String(schema.FieldGroup, m.Group),
		tlv.Bytes(schema.FieldPayload, m.Payload),
	})
}

func DecodeMulticast(f frame.Frame) (Multicast, error) {
	fields, err := decodeMessage(f, schema.MsgMulticast)
	if err != nil {
		return Multicast{}, err
	}
	group, _ := tlv.GetField(fields, schema.FieldGroup)
	payload, _ := tlv.GetField(fields, schema.FieldPayload)
	return Multicast{
		Group:       string(group.Value),
		Payload:     payload.Value,
		SelfDiscard: f.Header.Flags&frame.FlagSelfDiscard != 0,
	}, nil
}

func WriteDeliver(w io.Writer, messageID uint64, d Deliver) error {
	return writeMessage(w, messageID, schema.MsgDeliver, 0, []tlv.Field{
		tlv.String(schema.FieldGroup, d.Group),
		tlv.String(schema.FieldSender, d.Sender),
		tlv.Bytes(schema.FieldPayload, d.Payload),
	})
}

func DecodeDeliver(f frame.Frame) (Deliver, error) {
	fields, err := decodeMessage(f, schema.MsgDeliver)
	if err != nil {
		return Deliver{}, err
	}
	group, _ := tlv.GetField(fields, schema.FieldGroup)
	sender, _ := tlv.GetField(fields, schema.FieldSender)
	payload, _ := tlv.GetField(fields, schema.FieldPayload)
	return Deliver{
		Group:   string(group.Value),
		Sender:  string(sender.Value),
		Payload: payload.Value,
	}, nil
}

func WriteMembership(w io.Writer, messageID uint64, m Membership) error {
	fields := []tlv.Field{
		tlv.String(schema.FieldGroup, m.Group),
		tlv.U32(schema.FieldMembershipReason, uint32(m.Reason)),
	}
	for _, member := range m.Members {
		fields = append(fields, tlv.String(schema.FieldMember, member))
	}
	return writeMessage(w, messageID, schema.MsgMembership, 0, fields)
}

func DecodeMembership(f frame.Frame) (Membership, error) {
	fields, err := decodeMessage(f, schema.MsgMembership)
	if err != nil {
		return Membership{}, err
	}
	group, _ := tlv.GetField(fields, schema.FieldGroup)
	reasonField, _ := tlv.GetField(fields, schema.FieldMembershipReason)
	reason, err := tlv.U32FromBytes(reasonField.Value)
	if err != nil {
		return Membership{}, err
	}
	out := Membership{Group: string(group.Value), Reason: MembershipReason(reason)}
	for _, member := range tlv.GetFields(fields, schema.FieldMember) {
		if err := tlv.MustType(member, tlv.TypeString); err != nil {
			return Membership{}, err
		}
		out.Members = append(out.Members, string(member.Value))
	}
	return out, nil
}

func WriteDisconnect(w io.Writer, messageID uint64) error {
	return writeMessage(w, messageID, schema.MsgDisconnect, 0, nil)
}

func writeMessage(w io.Writer, messageID uint64, messageType uint32, flags uint32, fields []tlv.Field) error {
	if err := schema.Validate(messageType, fields); err != nil {
		return err
	}
	h := frame.NewHeader(messageID, messageType)
	h.Flags = flags
	return frame.WriteFrame(w, frame.Frame{
		Header:  h,
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
}

func decodeMessage(f frame.Frame, messageType uint32) ([]tlv.Field, error) {
	if f.Header.MessageType != messageType {
		return nil, fmt.Errorf("%w: got=%d want=%d", protocol.ErrMessageTypeMismatch, f.Header.MessageType, messageType)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

package schema

import (
	"fmt"

	"github.com/danmuck/groupctl/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs.
const (
	MsgConnect    uint32 = 1
	MsgConnectAck uint32 = 2
	MsgJoin       uint32 = 3
	MsgLeave      uint32 = 4
	MsgMulticast  uint32 = 5
	MsgDeliver    uint32 = 6
	MsgMembership uint32 = 7
	MsgDisconnect uint32 = 8
)

// Field IDs.
const (
	FieldUser            uint16 = 1
	FieldGroupMembership uint16 = 2
	FieldPriority        uint16 = 3

	FieldStatus       uint16 = 10
	FieldPrivateGroup uint16 = 11

	FieldGroup   uint16 = 20
	FieldSender  uint16 = 21
	FieldPayload uint16 = 22

	FieldMember           uint16 = 30
	FieldMembershipReason uint16 = 31
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgConnect: {
		{FieldUser, tlv.TypeString},
		{FieldGroupMembership, tlv.TypeBool},
		{FieldPriority, tlv.TypeU32},
	},
	MsgConnectAck: {
		{FieldStatus, tlv.TypeI32},
	},
	MsgJoin: {
		{FieldGroup, tlv.TypeString},
	},
	MsgLeave: {
		{FieldGroup, tlv.TypeString},
	},
	MsgMulticast: {
		{FieldGroup, tlv.TypeString},
		{FieldPayload, tlv.TypeBytes},
	},
	MsgDeliver: {
		{FieldGroup, tlv.TypeString},
		{FieldSender, tlv.TypeString},
		{FieldPayload, tlv.TypeBytes},
	},
	MsgMembership: {
		{FieldGroup, tlv.TypeString},
		{FieldMembershipReason, tlv.TypeU32},
	},
	MsgDisconnect: {},
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	log.Trace().Uint32("message_type", messageType).Int("fields", len(fields)).Msg("schema.Validate ok")
	return nil
}

package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/groupctl/internal/protocol/tlv"
	"github.com/danmuck/groupctl/internal/testutil/testlog"
)

func TestValidateDeliverRequiredFields(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldGroup, "lobby"),
		tlv.String(FieldSender, "#alice#host"),
		tlv.Bytes(FieldPayload, []byte("hi")),
	}
	if err := Validate(MsgDeliver, fields); err != nil {
		t.Fatalf("validate deliver: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldGroup, "lobby"),
		{ID: 9999, Type: tlv.TypeBytes, Value: []byte{0x01}},
	}
	if err := Validate(MsgJoin, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.String(FieldUser, "alice")}
	err := Validate(MsgConnect, fields)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldGroupMembership || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.U32(FieldStatus, 1)}
	err := Validate(MsgConnectAck, fields)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldStatus || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	err := Validate(999, nil)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Reason != "unknown message_type" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateDisconnectHasNoRequiredFields(t *testing.T) {
	testlog.Start(t)
	if err := Validate(MsgDisconnect, nil); err != nil {
		t.Fatalf("validate disconnect: %v", err)
	}
}

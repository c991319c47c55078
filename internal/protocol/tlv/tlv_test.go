package tlv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/groupctl/internal/testutil/testlog"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	testlog.Start(t)
	in := []Field{
		String(1, "lobby"),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	testlog.Start(t)
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestI32KeepsNegativeStatus(t *testing.T) {
	testlog.Start(t)
	f := I32(4, -14)
	got, err := I32FromBytes(f.Value)
	if err != nil {
		t.Fatalf("decode i32: %v", err)
	}
	if got != -14 {
		t.Fatalf("got=%d want=-14", got)
	}
}

func TestGetFieldsKeepsWireOrder(t *testing.T) {
	testlog.Start(t)
	fields := []Field{String(7, "alice"), String(1, "lobby"), String(7, "bob")}
	got := GetFields(fields, 7)
	if len(got) != 2 || string(got[0].Value) != "alice" || string(got[1].Value) != "bob" {
		t.Fatalf("unexpected repeated fields: %+v", got)
	}
}

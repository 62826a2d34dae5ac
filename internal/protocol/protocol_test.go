package protocol

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestParseError(t *testing.T) {
	msg, err := Parse(Frame{Length: 17, Opcode: OpError, Payload: []byte("access denied")})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	em, ok := msg.(ErrorMsg)
	if !ok || em.Reason != "access denied" {
		t.Fatalf("unexpected message: %#v", msg)
	}
}

func TestParseErrorLossyUTF8(t *testing.T) {
	msg, err := Parse(Frame{Opcode: OpError, Payload: []byte{'b', 'a', 'd', 0xff}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := msg.(ErrorMsg).Reason; got != "bad�" {
		t.Fatalf("unexpected reason: %q", got)
	}
}

func TestParseErrorLossyUTF8PerSequence(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want string
	}{
		{"two stray bytes", []byte("a\xff\xfeb"), "a\ufffd\ufffdb"},
		{"truncated three byte", []byte("\xe2\x82x"), "\ufffdx"},
		{"surrogate", []byte("\xed\xa0\x80"), "\ufffd\ufffd\ufffd"},
		{"truncated at end", []byte("ok\xf0\x9f\x98"), "ok\ufffd"},
		{"valid multibyte", []byte("h\xc3\xa9"), "h\u00e9"},
	}
	for _, tc := range cases {
		msg, err := Parse(Frame{Opcode: OpError, Payload: tc.in})
		if err != nil {
			t.Fatalf("%s: parse: %v", tc.name, err)
		}
		if got := msg.(ErrorMsg).Reason; got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestParseInfo(t *testing.T) {
	payload := append([]byte{6}, "broker"...)
	payload = append(payload, 0xde, 0xad, 0xbe, 0xef)
	msg, err := Parse(Frame{Opcode: OpInfo, Payload: payload})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	info, ok := msg.(InfoMsg)
	if !ok {
		t.Fatalf("expected InfoMsg, got %#v", msg)
	}
	if info.BrokerName != "broker" || !bytes.Equal(info.Nonce, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestParseInfoEmptyNameAndNonce(t *testing.T) {
	info, err := ParseInfo([]byte{0})
	if err != nil {
		t.Fatalf("parse info: %v", err)
	}
	if info.BrokerName != "" || len(info.Nonce) != 0 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestParseInfoNameLengthOutOfRange(t *testing.T) {
	cases := [][]byte{
		{},
		{1},
		{5, 'a', 'b', 'c', 'd'},
		{255, 'x'},
	}
	for _, payload := range cases {
		_, err := ParseInfo(payload)
		if !errors.Is(err, ErrProtocol) || !errors.Is(err, ErrInvalidLength) {
			t.Fatalf("payload=%v expected invalid length protocol error, got %v", payload, err)
		}
	}
}

func TestParseInfoNameConsumesWholePayload(t *testing.T) {
	info, err := ParseInfo([]byte{3, 'a', 'b', 'c'})
	if err != nil {
		t.Fatalf("parse info: %v", err)
	}
	if info.BrokerName != "abc" || len(info.Nonce) != 0 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestParseUnknownOpcode(t *testing.T) {
	for _, op := range []Opcode{OpAuth, OpPublish, OpSubscribe, 42} {
		_, err := Parse(Frame{Opcode: op})
		if !errors.Is(err, ErrUnknownOpcode) || KindOf(err) != KindProtocol {
			t.Fatalf("op=%v expected unknown opcode protocol error, got %v", op, err)
		}
	}
}

func TestAuthDigestVector(t *testing.T) {
	got := AuthDigest([]byte{0x01, 0x02, 0x03}, "s3cr3t")
	want, _ := hex.DecodeString("2e0eeec94390e643af380cb2422db20ab03b173b")
	if !bytes.Equal(got[:], want) {
		t.Fatalf("digest mismatch: got=%x", got)
	}
}

func TestEncodeAuthLayout(t *testing.T) {
	payload, err := EncodeAuth("hpname", []byte("nonce-abc"), "secret")
	if err != nil {
		t.Fatalf("encode auth: %v", err)
	}
	if len(payload) != 1+6+DigestLen {
		t.Fatalf("unexpected length: %d", len(payload))
	}
	if payload[0] != 6 || string(payload[1:7]) != "hpname" {
		t.Fatalf("unexpected ident prefix: %x", payload[:7])
	}
	want, _ := hex.DecodeString("174e68bab3d412ae539b86683db62150167f6418")
	if !bytes.Equal(payload[7:], want) {
		t.Fatalf("digest mismatch: %x", payload[7:])
	}
}

func TestEncodeAuthRejectsLongIdent(t *testing.T) {
	_, err := EncodeAuth(strings.Repeat("i", 256), nil, "secret")
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrFieldTooLong) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEncodePublishLayout(t *testing.T) {
	payload, err := EncodePublish("hpname", "chan1", []byte("hp hit"))
	if err != nil {
		t.Fatalf("encode publish: %v", err)
	}
	want := []byte{6, 'h', 'p', 'n', 'a', 'm', 'e', 5, 'c', 'h', 'a', 'n', '1', 'h', 'p', ' ', 'h', 'i', 't'}
	if !bytes.Equal(payload, want) {
		t.Fatalf("payload mismatch:\n got=%v\nwant=%v", payload, want)
	}
}

func TestEncodePublishFieldBounds(t *testing.T) {
	if _, err := EncodePublish(strings.Repeat("i", 255), strings.Repeat("c", 255), nil); err != nil {
		t.Fatalf("255-byte fields must be accepted: %v", err)
	}
	_, err := EncodePublish("hpname", strings.Repeat("c", 300), []byte("x"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := BrokerError("read info", "bad ident")
	if !errors.Is(err, ErrBroker) || errors.Is(err, ErrProtocol) {
		t.Fatalf("kind matching broken: %v", err)
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Reason != "bad ident" {
		t.Fatalf("expected *Error with reason, got %#v", err)
	}
	if !strings.Contains(err.Error(), "broker error") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestOpcodeString(t *testing.T) {
	if OpPublish.String() != "PUBLISH" || Opcode(42).String() != "OP(42)" {
		t.Fatalf("unexpected names: %s %s", OpPublish, Opcode(42))
	}
}

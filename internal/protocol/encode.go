package protocol

import (
	"crypto/sha1"
	"fmt"
)

// AuthDigest returns SHA1(nonce || secret).
func AuthDigest(nonce []byte, secret string) [DigestLen]byte {
	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(secret))
	var out [DigestLen]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EncodeAuth builds the AUTH payload `len(ident):u8 || ident || digest`.
func EncodeAuth(ident string, nonce []byte, secret string) ([]byte, error) {
	if err := checkField("ident", ident); err != nil {
		return nil, ValidationError("encode auth", err)
	}
	digest := AuthDigest(nonce, secret)
	buf := make([]byte, 0, 1+len(ident)+DigestLen)
	buf = appendField(buf, ident)
	buf = append(buf, digest[:]...)
	return buf, nil
}

// EncodePublish builds the PUBLISH payload
// `len(ident):u8 || ident || len(channel):u8 || channel || data`.
func EncodePublish(ident, channel string, data []byte) ([]byte, error) {
	if err := checkField("ident", ident); err != nil {
		return nil, ValidationError("encode publish", err)
	}
	if err := checkField("channel", channel); err != nil {
		return nil, ValidationError("encode publish", err)
	}
	buf := make([]byte, 0, 2+len(ident)+len(channel)+len(data))
	buf = appendField(buf, ident)
	buf = appendField(buf, channel)
	buf = append(buf, data...)
	return buf, nil
}

// ValidateField rejects values the single-byte length prefix cannot carry.
func ValidateField(name, value string) error {
	if err := checkField(name, value); err != nil {
		return ValidationError("validate "+name, err)
	}
	return nil
}

func checkField(name, value string) error {
	if len(value) > MaxFieldLen {
		return fmt.Errorf("%w: %s is %d bytes", ErrFieldTooLong, name, len(value))
	}
	return nil
}

func appendField(buf []byte, value string) []byte {
	buf = append(buf, byte(len(value)))
	return append(buf, value...)
}

package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed digests.
// Version suffix enables future algorithm migration.
const (
	DomainMessage = "flyter/message/v1"
	DomainCall    = "flyter/call/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MessageDigest fingerprints a stored message. Two messages with the same
// fields always share a digest, so the id is not part of it.
func MessageDigest(m Message) (string, error) {
	canonical, err := MarshalCanonical(messageObject(m))
	if err != nil {
		return "", fmt.Errorf("MessageDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMessage, canonical), nil
}

// CallID computes the content-addressed id of a journaled call.
//
// Unlike a message digest, the caller is part of the identity: whether a
// reply is allowed depends on who made it, so two calls that differ only by
// caller are different events.
func CallID(callToken string, call Call, seq int64) (string, error) {
	obj := IRObject{
		"call_token": IRString(callToken),
		"call":       call.object(),
		"seq":        IRInt(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CallID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCall, canonical), nil
}

// MustCallID is like CallID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCallID(callToken string, call Call, seq int64) string {
	id, err := CallID(callToken, call, seq)
	if err != nil {
		panic(err)
	}
	return id
}

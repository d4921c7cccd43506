package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageDigestDeterminism(t *testing.T) {
	m := Message{Sender: "alice", Recipient: "bob", Content: []byte("hi")}

	d1, err := MessageDigest(m)
	require.NoError(t, err)
	d2, err := MessageDigest(m)
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "MessageDigest must be deterministic")
	assert.Len(t, d1, 64, "SHA-256 hex is 64 characters")
}

func TestMessageDigestDistinguishesNickname(t *testing.T) {
	base := Message{Sender: "alice", Recipient: "bob", Content: []byte("hi")}
	withEmpty := base
	withEmpty.Nickname = Nick("")

	d1, err := MessageDigest(base)
	require.NoError(t, err)
	d2, err := MessageDigest(withEmpty)
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2, "absent and empty nickname are different records")
}

func TestMessageDigestDistinguishesNormalization(t *testing.T) {
	composed := Message{Sender: "alice", Recipient: "Bo\u00e9", Content: []byte("hi")}
	decomposed := composed
	decomposed.Recipient = "Boe\u0301"

	d1, err := MessageDigest(composed)
	require.NoError(t, err)
	d2, err := MessageDigest(decomposed)
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2, "identities are compared byte for byte")
}

func TestCallIDChangesWithInput(t *testing.T) {
	call := Call{Op: OpReply, Caller: "bob", Target: 1, Content: []byte("hey")}

	id1 := MustCallID("tok-1", call, 1)
	id2 := MustCallID("tok-2", call, 1)
	id3 := MustCallID("tok-1", call, 2)

	other := call
	other.Caller = "carol"
	id4 := MustCallID("tok-1", other, 1)

	assert.NotEqual(t, id1, id2, "different call tokens should produce different IDs")
	assert.NotEqual(t, id1, id3, "different seq should produce different IDs")
	assert.NotEqual(t, id1, id4, "different callers should produce different IDs")
	assert.Equal(t, id1, MustCallID("tok-1", call, 1))
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t,
		hashWithDomain(DomainMessage, data),
		hashWithDomain(DomainCall, data),
		"domains must separate identical payloads",
	)
}

// ABOUTME: Tests for HMAC signing and verification
// ABOUTME: Covers round-trips, tampered payloads, and wrong keys

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	payload := []byte(`{"agent_id":"vm-01","apps":{}}`)
	sig := Sign(payload, "fleet-key")

	assert.True(t, Verify(sig, payload, "fleet-key"))
}

func TestSign_Deterministic(t *testing.T) {
	payload := []byte("same bytes")

	assert.Equal(t, Sign(payload, "k"), Sign(payload, "k"))
}

func TestVerify_TamperedPayload(t *testing.T) {
	payload := []byte(`{"agent_id":"vm-01"}`)
	sig := Sign(payload, "fleet-key")

	// Flip a single bit in the payload
	tampered := make([]byte, len(payload))
	copy(tampered, payload)
	tampered[3] ^= 0x01

	assert.False(t, Verify(sig, tampered, "fleet-key"))
}

func TestVerify_WrongKey(t *testing.T) {
	payload := []byte(`{"agent_id":"vm-01"}`)
	sig := Sign(payload, "fleet-key")

	assert.False(t, Verify(sig, payload, "fleet-keY"))
}

func TestVerify_CoversExactBytes(t *testing.T) {
	// Whitespace-insensitive JSON equality is not signature equality:
	// the signature covers the exact byte sequence.
	a := []byte(`{"a":1}`)
	b := []byte(`{"a": 1}`)
	require.NotEqual(t, a, b)

	sig := Sign(a, "k")
	assert.False(t, Verify(sig, b, "k"))
}

func TestVerify_EmptySignature(t *testing.T) {
	assert.False(t, Verify("", []byte("payload"), "k"))
}

// ABOUTME: HMAC-SHA256 signing and verification for the agent-server boundary
// ABOUTME: Signatures are hex digests over the exact raw request body

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 of payload under the shared
// fleet key. The signature covers the exact byte sequence of payload;
// re-serializing JSON before signing will not round-trip.
func Sign(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature for payload and compares it against the
// presented one in constant time.
func Verify(signature string, payload []byte, key string) bool {
	expected := Sign(payload, key)
	return hmac.Equal([]byte(signature), []byte(expected))
}

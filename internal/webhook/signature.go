// Package webhook delivers integration events to tenant-configured
// endpoints with signing, retries and delivery logging.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the HMAC of the payload when a secret is set.
const SignatureHeader = "X-Webhook-Signature"

// Sign computes the hex HMAC-SHA256 of the payload bytes with the secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the payload bytes.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

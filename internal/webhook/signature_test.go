package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignDeterministic(t *testing.T) {
	body := []byte(`{"event":"SALE_COMPLETED","data":{"total":99.9}}`)

	sig := Sign(body, "secret-key")
	assert.NotEmpty(t, sig)
	assert.Equal(t, sig, Sign(body, "secret-key"))

	// 32-byte HMAC-SHA256 rendered as hex.
	assert.Len(t, sig, 64)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"TEST","data":{}}`)
	sig := Sign(body, "secret-key")

	assert.True(t, VerifySignature(body, "secret-key", sig))
	assert.False(t, VerifySignature(body, "wrong-key", sig))
	assert.False(t, VerifySignature([]byte(`tampered`), "secret-key", sig))
	assert.False(t, VerifySignature(body, "secret-key", "deadbeef"))
	assert.False(t, VerifySignature(body, "secret-key", ""))
}

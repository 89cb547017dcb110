package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strings"
)

// Sign returns Base64(HMAC-SHA1(secret, payload)), or "" for a blank secret.
func Sign(secret string, payload []byte) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over payload and compares it with the
// received value.
func Verify(secret string, payload []byte, signature string) bool {
	expected := Sign(secret, payload)
	if expected == "" {
		return true
	}
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

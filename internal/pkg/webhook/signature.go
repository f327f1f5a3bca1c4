package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	SignatureHeader = "X-CloserDesk-Signature"
	signaturePrefix = "sha256="
)

// Sign returns the signature header value for body, or "" without a secret.
func Sign(body []byte, secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header produced by Sign. Receivers can use it as-is.
func Verify(body []byte, header, secret string) bool {
	sig := strings.TrimSpace(header)
	secret = strings.TrimSpace(secret)
	if sig == "" || secret == "" || !strings.HasPrefix(sig, signaturePrefix) {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(strings.TrimPrefix(sig, signaturePrefix)))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), decoded)
}

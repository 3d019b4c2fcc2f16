package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// SignatureVerifier checks the keyed-hash authentication tag GitHub sends in
// the X-Hub-Signature-256 header.
//
// An empty secret disables verification entirely and every delivery passes.
// That is the intentional permissive development default; production
// deployments must configure a secret.
type SignatureVerifier struct {
	Secret string
}

// Verify reports whether signatureHeader is a valid HMAC-SHA256 tag over
// body. Malformed or empty headers are a failed verification, never an
// error.
func (v SignatureVerifier) Verify(body []byte, signatureHeader string) bool {
	if v.Secret == "" {
		return true
	}
	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(v.Secret))
	_, _ = mac.Write(body)
	expected := signaturePrefix + hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(header)) == 1
}

// Sign computes the header value for body, used by tests and delivery
// tooling.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

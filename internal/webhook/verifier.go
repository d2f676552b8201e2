package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Signature headers checked on inbound requests, in order of preference.
const (
	HeaderSignature    = "X-Signature"
	HeaderSignatureAlt = "X-Webhook-Signature"
)

var (
	ErrMissingSignature = errors.New("webhook signature header missing")
	ErrBadSignature     = errors.New("webhook signature mismatch")
)

// Verifier authenticates inbound signals by HMAC-SHA256 over the raw request
// body. Verification happens before the body is parsed: an unauthenticated
// request never reaches the JSON decoder.
type Verifier struct {
	secret  []byte
	enforce bool
}

// NewVerifier builds a verifier. With enforce false every request passes,
// which is intended for local development only.
func NewVerifier(secret string, enforce bool) *Verifier {
	return &Verifier{secret: []byte(secret), enforce: enforce}
}

// Verify checks the signature against the raw body. The signature may carry
// a "sha256=" prefix, which some signal sources add.
func (v *Verifier) Verify(body []byte, signature string) error {
	if !v.enforce {
		return nil
	}
	if signature == "" {
		return ErrMissingSignature
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// Sign produces the hex signature for a payload. Used by the outbound test
// sender and by tests.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

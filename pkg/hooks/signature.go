package hooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Sign returns the SignatureHeader value for a webhook body: "sha256=" and
// the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// VerifySignature lets a receiver check a delivery in constant time
func VerifySignature(body []byte, signature, secret string) bool {
	expected := Sign(body, secret)
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

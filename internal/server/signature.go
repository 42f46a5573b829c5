package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const signaturePrefix = "sha256="

// Sign returns the X-Notion-Signature value for body under key.
func Sign(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header is the signature of body under key.
func VerifySignature(key string, body []byte, header string) bool {
	if key == "" || header == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(key, body)), []byte(header))
}

func secretMatches(secret, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), []byte(candidate)) == 1
}

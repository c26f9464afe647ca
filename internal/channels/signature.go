package channels

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

func sign(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

// verifyHexHMAC checks a hex HMAC-SHA256 signature, optionally prefixed
// with "sha256=".
func verifyHexHMAC(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	return hmac.Equal(sig, sign(payload, secret))
}

// verifyBase64HMAC checks a base64 HMAC-SHA256 signature.
func verifyBase64HMAC(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(sig, sign(payload, secret))
}

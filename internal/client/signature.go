package client

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
)

// SignatureHeader carries the request signature
const SignatureHeader = "X-Signature"

// Sign returns the base64 HMAC-SHA1 digest of data keyed by secret. POST
// requests sign their JSON body, GET requests sign the full target URL
func Sign(secret string, data []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write(data)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

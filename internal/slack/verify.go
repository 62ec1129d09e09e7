package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const (
	// HeaderTimestamp carries the request timestamp used in the signature
	HeaderTimestamp = "X-Slack-Request-Timestamp"
	// HeaderSignature carries the v0 request signature
	HeaderSignature = "X-Slack-Signature"

	// SignatureVersion prefixes both the signed basestring and the header value
	SignatureVersion = "v0"

	// MaxClockSkew is how far the request timestamp may drift from now in either direction
	MaxClockSkew = 300 * time.Second
)

// Sign returns the X-Slack-Signature header value for body sent at timestamp
func Sign(timestamp string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(SignatureVersion + ":" + timestamp + ":"))
	_, _ = mac.Write(body)
	return SignatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether rawBody was signed by Slack with secret and
// the timestamp lies within MaxClockSkew of now.
func VerifySignature(timestamp, signature string, rawBody []byte, secret string, now time.Time) bool {
	if timestamp == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(MaxClockSkew/time.Second) {
		return false
	}

	expected := Sign(timestamp, rawBody, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

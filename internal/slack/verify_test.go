package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"
)

const testSigningSecret = "test-signing-secret"

// referenceSignature recomputes the signature independently of Sign
func referenceSignature(timestamp, body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":" + body))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestSign_MatchesReference(t *testing.T) {
	t.Parallel()

	body := `{"type":"event_callback"}`
	if got, want := Sign("1700000000", []byte(body), testSigningSecret), referenceSignature("1700000000", body, testSigningSecret); got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	body := `{"type":"event_callback","event":{"type":"reaction_added"}}`
	ts := func(offset int64) string { return strconv.FormatInt(now.Unix()+offset, 10) }

	validTS := ts(0)
	validSig := referenceSignature(validTS, body, testSigningSecret)

	flip := func(s string, i int) string {
		b := []byte(s)
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}
		return string(b)
	}

	tests := []struct {
		name      string
		timestamp string
		signature string
		body      string
		secret    string
		want      bool
	}{
		{"valid", validTS, validSig, body, testSigningSecret, true},
		{"mutated signature", validTS, flip(validSig, len(validSig)-1), body, testSigningSecret, false},
		{"mutated body", validTS, validSig, flip(body, 3), testSigningSecret, false},
		{"wrong secret", validTS, validSig, body, flip(testSigningSecret, 0), false},
		{"garbage signature", validTS, "v0=invalid_signature_here", body, testSigningSecret, false},
		{"299 seconds old", ts(-299), referenceSignature(ts(-299), body, testSigningSecret), body, testSigningSecret, true},
		{"300 seconds old", ts(-300), referenceSignature(ts(-300), body, testSigningSecret), body, testSigningSecret, true},
		{"301 seconds old", ts(-301), referenceSignature(ts(-301), body, testSigningSecret), body, testSigningSecret, false},
		{"301 seconds in the future", ts(301), referenceSignature(ts(301), body, testSigningSecret), body, testSigningSecret, false},
		{"400 seconds old", ts(-400), referenceSignature(ts(-400), body, testSigningSecret), body, testSigningSecret, false},
		{"missing timestamp", "", validSig, body, testSigningSecret, false},
		{"missing signature", validTS, "", body, testSigningSecret, false},
		{"non numeric timestamp", "yesterday", referenceSignature("yesterday", body, testSigningSecret), body, testSigningSecret, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := VerifySignature(tt.timestamp, tt.signature, []byte(tt.body), tt.secret, now)
			if got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Package signing produces the outbound payload signatures that
// subscribers use to authenticate deliveries. The scheme mirrors the
// inbound timestamped-HMAC verifier: HMAC-SHA256 over
// "<unix-seconds>.<raw body>", presented as "v1=<hex>".
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

func Sign(secret string, payload []byte) (signature string, timestamp int64) {
	return SignAt(secret, payload, time.Now())
}

func SignAt(secret string, payload []byte, at time.Time) (signature string, timestamp int64) {
	timestamp = at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return fmt.Sprintf("v1=%s", hex.EncodeToString(mac.Sum(nil))), timestamp
}

// Verify checks a signature produced by Sign. Subscriber-side code would
// implement the same check; it lives here so delivery tests can assert
// what subscribers receive.
func Verify(secret string, payload []byte, timestamp int64, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	expected := fmt.Sprintf("v1=%s", hex.EncodeToString(mac.Sum(nil)))
	return hmac.Equal([]byte(expected), []byte(signature))
}

package verify

import (
	"crypto/ed25519"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Ed25519 verifies telephony-provider style signatures: a unix-seconds
// timestamp header and a base64 signature header over
// "<timestamp>.<raw body>", checked against the provider's public key.
type Ed25519 struct {
	TimestampHeader  string
	SignatureHeader  string
	PublicKey        ed25519.PublicKey
	ToleranceSeconds int
}

const (
	DefaultTimestampHeader = "X-Timestamp"
)

func (v Ed25519) Verify(body []byte, header http.Header, now time.Time) error {
	if len(v.PublicKey) != ed25519.PublicKeySize {
		return failf(CodeNotConfigured, "ed25519 public key is not configured")
	}

	tsName := v.TimestampHeader
	if tsName == "" {
		tsName = DefaultTimestampHeader
	}
	sigName := v.SignatureHeader
	if sigName == "" {
		sigName = DefaultSignatureHeader
	}

	rawTimestamp := strings.TrimSpace(header.Get(tsName))
	if rawTimestamp == "" {
		return failf(CodeMissingHeader, "%s header is required", tsName)
	}
	rawSignature := strings.TrimSpace(header.Get(sigName))
	if rawSignature == "" {
		return failf(CodeMissingHeader, "%s header is required", sigName)
	}

	timestamp, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return failf(CodeBadSignature, "malformed %s header", tsName)
	}
	if !withinTolerance(timestamp, now, v.ToleranceSeconds) {
		return failf(CodeStaleTimestamp, "timestamp %d outside replay window", timestamp)
	}

	signature, err := base64.StdEncoding.DecodeString(rawSignature)
	if err != nil {
		return failf(CodeBadSignature, "signature is not valid base64")
	}

	message := make([]byte, 0, len(rawTimestamp)+1+len(body))
	message = append(message, rawTimestamp...)
	message = append(message, '.')
	message = append(message, body...)

	if !ed25519.Verify(v.PublicKey, message, signature) {
		return failf(CodeBadSignature, "signature mismatch")
	}
	return nil
}

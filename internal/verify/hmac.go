package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TimestampHMAC verifies payment-processor style signatures: the header
// carries "t=<unix-seconds>,v1=<hex-hmac>" where the digest is
// HMAC-SHA256 over "<timestamp>.<raw body>".
type TimestampHMAC struct {
	Header           string
	Secret           string
	ToleranceSeconds int
}

const DefaultSignatureHeader = "X-Signature"

func (v TimestampHMAC) Verify(body []byte, header http.Header, now time.Time) error {
	if v.Secret == "" {
		return failf(CodeNotConfigured, "hmac secret is not configured")
	}

	name := v.Header
	if name == "" {
		name = DefaultSignatureHeader
	}
	raw := strings.TrimSpace(header.Get(name))
	if raw == "" {
		return failf(CodeMissingHeader, "%s header is required", name)
	}

	timestamp, digest, err := parseSignatureHeader(raw)
	if err != nil {
		return failf(CodeBadSignature, "malformed %s header: %v", name, err)
	}
	if !withinTolerance(timestamp, now, v.ToleranceSeconds) {
		return failf(CodeStaleTimestamp, "timestamp %d outside replay window", timestamp)
	}

	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)

	provided, err := hex.DecodeString(digest)
	if err != nil {
		return failf(CodeBadSignature, "signature is not valid hex")
	}
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return failf(CodeBadSignature, "signature mismatch")
	}
	return nil
}

func parseSignatureHeader(raw string) (timestamp int64, digest string, err error) {
	var sawTimestamp, sawDigest bool
	for _, part := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp, err = strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", err
			}
			sawTimestamp = true
		case "v1":
			digest = value
			sawDigest = true
		}
	}
	if !sawTimestamp {
		return 0, "", errMissingPart("t")
	}
	if !sawDigest {
		return 0, "", errMissingPart("v1")
	}
	return timestamp, digest, nil
}

type errMissingPart string

func (e errMissingPart) Error() string { return "missing " + string(e) + " component" }

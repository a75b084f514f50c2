package verify

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

// BearerToken verifies transcription-provider style requests: a shared
// secret in the Authorization header, compared in constant time. There is
// no timestamp in this scheme, so replay protection is left to the
// processed-event ledger.
type BearerToken struct {
	Header string
	Token  string
}

func (v BearerToken) Verify(_ []byte, header http.Header, _ time.Time) error {
	if v.Token == "" {
		return failf(CodeNotConfigured, "bearer token is not configured")
	}

	name := v.Header
	if name == "" {
		name = "Authorization"
	}
	raw := strings.TrimSpace(header.Get(name))
	if raw == "" {
		return failf(CodeMissingHeader, "%s header is required", name)
	}
	token := strings.TrimPrefix(raw, "Bearer ")

	if subtle.ConstantTimeCompare([]byte(token), []byte(v.Token)) != 1 {
		return failf(CodeBadSignature, "token mismatch")
	}
	return nil
}

// Package verify authenticates inbound webhook requests. Each upstream
// source is bound to one Verifier strategy; requests that cannot be
// verified never reach a handler.
package verify

import (
	"fmt"
	"net/http"
	"time"
)

const DefaultToleranceSeconds = 300

type FailureCode string

const (
	CodeMissingHeader  FailureCode = "missing_header"
	CodeBadSignature   FailureCode = "bad_signature"
	CodeStaleTimestamp FailureCode = "stale_timestamp"
	CodeNotConfigured  FailureCode = "not_configured"
)

// Failure is a verification rejection. CodeNotConfigured is an operational
// error (the deployment is broken), everything else means the request
// itself could not be authenticated.
type Failure struct {
	Code   FailureCode
	Reason string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("verify: %s: %s", f.Code, f.Reason)
}

func failf(code FailureCode, format string, args ...any) *Failure {
	return &Failure{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// IsNotConfigured reports whether err is a missing-secret failure, which
// the HTTP boundary maps to 500 instead of 401.
func IsNotConfigured(err error) bool {
	f, ok := err.(*Failure)
	return ok && f.Code == CodeNotConfigured
}

type Verifier interface {
	Verify(body []byte, header http.Header, now time.Time) error
}

// Registry maps a source tag to its Verifier. Unknown sources fail closed.
type Registry struct {
	verifiers map[string]Verifier
}

func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

func (r *Registry) Register(source string, v Verifier) {
	r.verifiers[source] = v
}

func (r *Registry) Sources() []string {
	sources := make([]string, 0, len(r.verifiers))
	for source := range r.verifiers {
		sources = append(sources, source)
	}
	return sources
}

func (r *Registry) Verify(source string, body []byte, header http.Header, now time.Time) error {
	v, ok := r.verifiers[source]
	if !ok {
		return failf(CodeNotConfigured, "no verifier registered for source %q", source)
	}
	return v.Verify(body, header, now)
}

func withinTolerance(timestamp int64, now time.Time, toleranceSeconds int) bool {
	if toleranceSeconds <= 0 {
		toleranceSeconds = DefaultToleranceSeconds
	}
	age := now.Unix() - timestamp
	return age <= int64(toleranceSeconds) && age >= -int64(toleranceSeconds)
}

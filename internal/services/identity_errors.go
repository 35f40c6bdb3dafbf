package services

import (
	"errors"
	"fmt"
)

type VerificationKind string

const (
	KindMalformedToken    VerificationKind = "malformed_token"
	KindKeyNotFound       VerificationKind = "key_not_found"
	KindKeySetUnavailable VerificationKind = "key_set_unavailable"
	KindInvalidSignature  VerificationKind = "invalid_signature"
	KindInvalidIssuer     VerificationKind = "invalid_issuer"
	KindInvalidAudience   VerificationKind = "invalid_audience"
	KindTokenExpired      VerificationKind = "token_expired"
)

// VerificationError is every failure the identity verifier reports. All
// kinds are terminal for the request.
type VerificationError struct {
	Kind VerificationKind
	Err  error
}

var (
	ErrMalformedToken    = &VerificationError{Kind: KindMalformedToken}
	ErrKeyNotFound       = &VerificationError{Kind: KindKeyNotFound}
	ErrKeySetUnavailable = &VerificationError{Kind: KindKeySetUnavailable}
	ErrInvalidSignature  = &VerificationError{Kind: KindInvalidSignature}
	ErrInvalidIssuer     = &VerificationError{Kind: KindInvalidIssuer}
	ErrInvalidAudience   = &VerificationError{Kind: KindInvalidAudience}
	ErrTokenExpired      = &VerificationError{Kind: KindTokenExpired}
)

func verificationErr(kind VerificationKind, format string, args ...any) *VerificationError {
	return &VerificationError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *VerificationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return "identity: " + string(e.Kind)
	}
	return fmt.Sprintf("identity: %s: %v", e.Kind, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Is matches any VerificationError of the same kind, so the sentinels work
// with errors.Is.
func (e *VerificationError) Is(target error) bool {
	t, ok := target.(*VerificationError)
	return ok && e != nil && t.Kind == e.Kind
}

// VerificationKindOf returns the kind carried by err, or "" when err is not
// a verification failure.
func VerificationKindOf(err error) VerificationKind {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return ""
}

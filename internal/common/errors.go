// Package common defines the error taxonomy shared by the gate, the token
// validators, the provisioner and the transports. Every failure is classified
// where it is detected; transports map a Kind to a wire status exactly once.
// Callers should use errors.Is / KindOf to match.
package common

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnexpected Kind = iota

	// credential extraction
	KindMissingCredential
	KindMalformedCredential

	// token validation
	KindExpired
	KindSignatureInvalid
	KindTokenMismatch
	KindUserNotFound
	KindInitialization
	KindKeySetUnavailable

	// tenant binding
	KindForbidden

	// onboarding input
	KindValidation
	KindInvalidIdentifier
	KindCheckDigitMismatch

	// provisioning and storage
	KindDuplicateTenant
	KindStorageUnavailable
	KindProvisioningFailed
	KindNotFound
)

var kindNames = map[Kind]string{
	KindUnexpected:          "Unexpected",
	KindMissingCredential:   "MissingCredential",
	KindMalformedCredential: "MalformedCredential",
	KindExpired:             "Expired",
	KindSignatureInvalid:    "SignatureInvalid",
	KindTokenMismatch:       "TokenMismatch",
	KindUserNotFound:        "UserNotFound",
	KindInitialization:      "InitializationError",
	KindKeySetUnavailable:   "KeySetUnavailable",
	KindForbidden:           "Forbidden",
	KindValidation:          "ValidationError",
	KindInvalidIdentifier:   "InvalidIdentifier",
	KindCheckDigitMismatch:  "CheckDigitMismatch",
	KindDuplicateTenant:     "DuplicateTenant",
	KindStorageUnavailable:  "StorageUnavailable",
	KindProvisioningFailed:  "ProvisioningFailed",
	KindNotFound:            "NotFound",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsValidation reports whether k is one of the onboarding input failures.
func (k Kind) IsValidation() bool {
	return k == KindValidation || k == KindInvalidIdentifier || k == KindCheckDigitMismatch
}

// IsAuthentication reports whether k means the caller could not be authenticated.
func (k Kind) IsAuthentication() bool {
	switch k {
	case KindMissingCredential, KindMalformedCredential, KindExpired,
		KindSignatureInvalid, KindTokenMismatch, KindUserNotFound:
		return true
	}
	return false
}

// Error is a classified failure. Msg is safe to show to the caller.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message or wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf returns a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, keeping it as the cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnexpected when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Message returns the caller-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

var (
	ErrMissingCredential   = New(KindMissingCredential, "missing credential")
	ErrMalformedCredential = New(KindMalformedCredential, "malformed credential")
	ErrTokenExpired        = New(KindExpired, "token expired")
	ErrSignatureInvalid    = New(KindSignatureInvalid, "invalid token signature")
	ErrTokenMismatch       = New(KindTokenMismatch, "token is not the current session token")
	ErrUserNotFound        = New(KindUserNotFound, "user not found")
	ErrInitialization      = New(KindInitialization, "token validator is not configured")
	ErrKeySetUnavailable   = New(KindKeySetUnavailable, "signing key set unavailable")
	ErrForbidden           = New(KindForbidden, "forbidden")
	ErrValidation          = New(KindValidation, "validation error")
	ErrInvalidIdentifier   = New(KindInvalidIdentifier, "invalid tax identifier")
	ErrCheckDigitMismatch  = New(KindCheckDigitMismatch, "check digit mismatch")
	ErrDuplicateTenant     = New(KindDuplicateTenant, "tenant already exists")
	ErrStorageUnavailable  = New(KindStorageUnavailable, "storage unavailable")
	ErrProvisioningFailed  = New(KindProvisioningFailed, "provisioning failed")
	ErrorNotFound          = New(KindNotFound, "not found")
)

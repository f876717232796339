package ledger

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/Code rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	KindInvalidKey        Kind = "InvalidKey"
	KindAlreadyRegistered Kind = "AlreadyRegistered"
	KindStorage           Kind = "Storage"
	KindCorrupt           Kind = "Corrupt"
)

// Stable codes naming the failed check.
const (
	CodeKeyMalformed      = "LEDGER-KEY-001"
	CodeDuplicateIdentity = "LEDGER-REG-001"
	CodeStoreRead         = "LEDGER-STORE-001"
	CodeStoreWrite        = "LEDGER-STORE-002"
	CodeStoreCorrupt      = "LEDGER-STORE-003"
)

// Error is the registry's structured error type.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, code, msg string) error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func wrapError(kind Kind, code, msg string, cause error) error {
	if cause == nil {
		return newError(kind, code, msg)
	}
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Code returns the stable code for a structured error, or "" if unknown.
func Code(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

// IsAlreadyRegistered reports whether err rejected a second registration.
func IsAlreadyRegistered(err error) bool { return IsKind(err, KindAlreadyRegistered) }

// IsStorage reports whether err is a storage failure, corrupt data included.
func IsStorage(err error) bool { return IsKind(err, KindStorage) || IsKind(err, KindCorrupt) }

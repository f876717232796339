package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"xdao.co/authledger/model"
)

// Store persists identity records keyed by public key hex.
//
// Contract:
//   - Insert MUST be an atomic check-then-insert: of any number of concurrent
//     Inserts for one key exactly one succeeds; the rest return ErrAlreadyExists
//     and leave the stored record untouched.
//   - Get MUST return ErrNotFound when the key is absent. A backend that cannot
//     answer MUST NOT report ErrNotFound.
//   - List MUST return records in insertion order.
//   - SetStatus mutates only the status field in place and returns ErrNotFound
//     for absent keys. Records are never deleted.
//   - Readers observe either the state before or after a write, never a mix.
//   - Stored data that fails to parse is reported as ErrCorrupt.
//   - Errors from unreachable remote backends wrap ErrUnavailable.
type Store interface {
	Insert(ctx context.Context, rec model.IdentityRecord) error
	Get(ctx context.Context, publicKey string) (model.IdentityRecord, error)
	List(ctx context.Context) ([]model.IdentityRecord, error)
	SetStatus(ctx context.Context, publicKey string, status model.Status) error
	Close() error
}

// CanonicalKey normalizes a public key hex string to lowercase without
// surrounding space, and rejects anything that is not non-empty hex.
func CanonicalKey(publicKey string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(publicKey))
	if k == "" {
		return "", fmt.Errorf("%w: empty public key", ErrInvalidRecord)
	}
	if _, err := hex.DecodeString(k); err != nil {
		return "", fmt.Errorf("%w: public key is not hex: %v", ErrInvalidRecord, err)
	}
	return k, nil
}

// ValidateRecord checks the fields every backend relies on and returns rec
// with a canonical key.
func ValidateRecord(rec model.IdentityRecord) (model.IdentityRecord, error) {
	k, err := CanonicalKey(rec.PublicKey)
	if err != nil {
		return rec, err
	}
	if !rec.Status.Valid() {
		return rec, fmt.Errorf("%w: status %q", ErrInvalidRecord, string(rec.Status))
	}
	if rec.RegisteredAt.IsZero() {
		return rec, fmt.Errorf("%w: missing registration time", ErrInvalidRecord)
	}
	out := rec.Clone()
	out.PublicKey = k
	if out.Scheme == "" {
		out.Scheme = model.DefaultScheme
	}
	return out, nil
}

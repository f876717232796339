package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownStatus = errors.New("model: unknown identity status")
	ErrMissingField  = errors.New("model: missing required field")
)

// Status is the authorization state of a registered identity.
// Only the two constants below are valid; anything else is rejected on load.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// ParseStatus maps a persisted status string to a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusRevoked:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusRevoked
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
	}
	return []byte(s), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// IdentityRecord is the registry entry for one public key.
//
// PublicKey is the canonical lowercase hex of the verification key and is the
// registry's primary key; it is the map key in persisted documents, not a
// field of the record body. Extra carries persisted fields this version does
// not know so a rewrite never drops them.
type IdentityRecord struct {
	PublicKey    string
	Scheme       string
	Owner        string
	Status       Status
	RegisteredAt time.Time
	Extra        map[string]json.RawMessage
}

// Active reports whether the record authorizes its key.
func (r IdentityRecord) Active() bool {
	return r.Status == StatusActive
}

// Clone returns a deep copy.
func (r IdentityRecord) Clone() IdentityRecord {
	out := r
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

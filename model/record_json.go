package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const (
	fieldOwner        = "owner"
	fieldStatus       = "status"
	fieldRegisteredAt = "registered_at"
	fieldScheme       = "scheme"
	fieldLegacyTime   = "timestamp"

	// DefaultScheme applies to bodies that predate the scheme field.
	DefaultScheme = "ed25519"

	legacyTimeLayout = "2006-01-02T15:04:05"
)

// MarshalJSON writes the record body with known fields first, in a fixed
// order, followed by Extra fields sorted by name.
func (r IdentityRecord) MarshalJSON() ([]byte, error) {
	if !r.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, string(r.Status))
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(k string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return writeRaw(&buf, &first, k, b)
	}

	if err := write(fieldOwner, r.Owner); err != nil {
		return nil, err
	}
	if err := write(fieldStatus, r.Status); err != nil {
		return nil, err
	}
	if err := write(fieldRegisteredAt, r.RegisteredAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	scheme := r.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	if err := write(fieldScheme, scheme); err != nil {
		return nil, err
	}

	extra := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		if isKnownField(k) {
			continue
		}
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		if !json.Valid(r.Extra[k]) {
			return nil, fmt.Errorf("model: extra field %q is not valid JSON", k)
		}
		if err := writeRaw(&buf, &first, k, r.Extra[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a record body. PublicKey is left untouched; the caller
// sets it from the enclosing document key.
func (r *IdentityRecord) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var out IdentityRecord
	out.PublicKey = r.PublicKey

	if v, ok := raw[fieldOwner]; ok {
		if err := json.Unmarshal(v, &out.Owner); err != nil {
			return fmt.Errorf("model: owner: %w", err)
		}
	}

	v, ok := raw[fieldStatus]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingField, fieldStatus)
	}
	if err := json.Unmarshal(v, &out.Status); err != nil {
		return err
	}
	if !out.Status.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownStatus, v)
	}

	switch {
	case present(raw[fieldRegisteredAt]):
		var s string
		if err := json.Unmarshal(raw[fieldRegisteredAt], &s); err != nil {
			return fmt.Errorf("model: registered_at: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("model: registered_at: %w", err)
		}
		out.RegisteredAt = t.UTC()
	case present(raw[fieldLegacyTime]):
		var s string
		if err := json.Unmarshal(raw[fieldLegacyTime], &s); err != nil {
			return fmt.Errorf("model: timestamp: %w", err)
		}
		t, err := parseLegacyTime(s)
		if err != nil {
			return fmt.Errorf("model: timestamp: %w", err)
		}
		out.RegisteredAt = t.UTC()
	default:
		return fmt.Errorf("%w: %s", ErrMissingField, fieldRegisteredAt)
	}

	out.Scheme = DefaultScheme
	if v, ok := raw[fieldScheme]; ok {
		if err := json.Unmarshal(v, &out.Scheme); err != nil {
			return fmt.Errorf("model: scheme: %w", err)
		}
	}

	for k, v := range raw {
		if isKnownField(k) {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[k] = append(json.RawMessage(nil), v...)
	}

	*r = out
	return nil
}

// isKnownField reports whether k is written by MarshalJSON itself. The legacy
// timestamp is not: it stays in Extra so old readers still find it.
func isKnownField(k string) bool {
	switch k {
	case fieldOwner, fieldStatus, fieldRegisteredAt, fieldScheme:
		return true
	}
	return false
}

// present reports whether a field holds a value; JSON null counts as absent.
func present(v json.RawMessage) bool {
	return len(v) > 0 && string(bytes.TrimSpace(v)) != "null"
}

func parseLegacyTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	// Naive ISO-8601 local time, optionally with fractional seconds.
	return time.ParseInLocation(legacyTimeLayout, s, time.Local)
}

func writeRaw(buf *bytes.Buffer, first *bool, key string, value []byte) error {
	if !*first {
		buf.WriteByte(',')
	}
	*first = false
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(value)
	return nil
}

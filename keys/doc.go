// Package keys is the signature engine and local key material handling.
//
// Engines are stateless: they generate keypairs, sign exact byte payloads and
// verify signatures. Two schemes are supported and told apart by encoded key
// length, so callers holding only a hex string never need to name the scheme:
//
//   - ed25519 (default): 32-byte seed as private key, 32-byte public key.
//   - dilithium3: circl mode3 binary encodings.
//
// Verify never reports an expected failure as an error. Check returns the
// reason (ErrInvalidKey, ErrMalformedSignature, ErrSignatureMismatch) for
// diagnostics.
//
// KeyStore, the mnemonic helpers and Fingerprint are local-first utilities for
// the CLI; the registry and authenticator never see private key material.
package keys

package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Scheme names a signature scheme.
type Scheme string

const (
	SchemeEd25519    Scheme = "ed25519"
	SchemeDilithium3 Scheme = "dilithium3"
)

// Keypair is a private signing key and its public verification key.
// Both halves use the scheme's raw binary encoding.
type Keypair struct {
	Scheme  Scheme
	Private []byte
	Public  []byte
}

// Engine wraps one public-key signature scheme. Implementations hold no state.
type Engine interface {
	Scheme() Scheme
	GenerateKeypair(rand io.Reader) (Keypair, error)
	// Sign returns an error wrapping ErrInvalidKey when privateKey is malformed.
	Sign(privateKey, payload []byte) ([]byte, error)
	// Verify reports whether signature is valid for payload under publicKey.
	// Malformed inputs yield false.
	Verify(publicKey, payload, signature []byte) bool
	// Check is Verify with the reason for rejection.
	Check(publicKey, payload, signature []byte) error
	// ValidPublicKey reports whether publicKey has this scheme's encoding.
	ValidPublicKey(publicKey []byte) bool
	// ValidPrivateKey reports whether privateKey has this scheme's encoding.
	ValidPrivateKey(privateKey []byte) bool
}

// engines is ordered; lookups by key length try the cheaper scheme first.
var engines = []Engine{ed25519Engine{}, dilithium3Engine{}}

// ParseScheme maps a scheme name to a Scheme. The empty string is ed25519.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemeEd25519:
		return SchemeEd25519, nil
	case SchemeDilithium3:
		return SchemeDilithium3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, s)
	}
}

// EngineFor returns the engine for s.
func EngineFor(s Scheme) (Engine, error) {
	for _, e := range engines {
		if e.Scheme() == s {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, s)
}

// EngineForPublicKey selects the engine whose public key encoding matches pub.
func EngineForPublicKey(pub []byte) (Engine, error) {
	for _, e := range engines {
		if e.ValidPublicKey(pub) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: public key of %d bytes matches no scheme", ErrInvalidKey, len(pub))
}

// EngineForPrivateKey selects the engine whose private key encoding matches priv.
func EngineForPrivateKey(priv []byte) (Engine, error) {
	for _, e := range engines {
		if e.ValidPrivateKey(priv) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: private key of %d bytes matches no scheme", ErrInvalidKey, len(priv))
}

// GenerateKeypair returns a fresh ed25519 keypair from crypto/rand.
func GenerateKeypair() (Keypair, error) {
	return ed25519Engine{}.GenerateKeypair(rand.Reader)
}

// Sign signs payload with priv, selecting the scheme from the key encoding.
func Sign(priv, payload []byte) ([]byte, error) {
	e, err := EngineForPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return e.Sign(priv, payload)
}

// Verify reports whether sig is a valid signature of payload under pub.
func Verify(pub, payload, sig []byte) bool {
	return Check(pub, payload, sig) == nil
}

// Check verifies sig and returns why it was rejected.
func Check(pub, payload, sig []byte) error {
	e, err := EngineForPublicKey(pub)
	if err != nil {
		return err
	}
	return e.Check(pub, payload, sig)
}

// DecodeHex decodes hex key or signature material. Surrounding whitespace and
// an optional 0x prefix are ignored.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, fmt.Errorf("%w: empty hex", ErrInvalidKey)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return b, nil
}

// DecodePublicKeyHex decodes and validates a hex public key.
func DecodePublicKeyHex(s string) ([]byte, Scheme, error) {
	pub, err := DecodeHex(s)
	if err != nil {
		return nil, "", err
	}
	e, err := EngineForPublicKey(pub)
	if err != nil {
		return nil, "", err
	}
	return pub, e.Scheme(), nil
}

// DecodePrivateKeyHex decodes and validates a hex private key.
func DecodePrivateKeyHex(s string) ([]byte, Scheme, error) {
	priv, err := DecodeHex(s)
	if err != nil {
		return nil, "", err
	}
	e, err := EngineForPrivateKey(priv)
	if err != nil {
		return nil, "", err
	}
	return priv, e.Scheme(), nil
}

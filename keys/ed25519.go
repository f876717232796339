package keys

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"io"
)

// ed25519Engine signs the raw payload bytes (no pre-hash), so signatures
// interoperate with NaCl/libsodium detached signatures.
type ed25519Engine struct{}

func (ed25519Engine) Scheme() Scheme { return SchemeEd25519 }

// GenerateKeypair returns the 32-byte seed as the private key.
func (ed25519Engine) GenerateKeypair(rand io.Reader) (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return Keypair{}, fmt.Errorf("keys: generate ed25519: %w", err)
	}
	return Keypair{
		Scheme:  SchemeEd25519,
		Private: append([]byte(nil), priv.Seed()...),
		Public:  append([]byte(nil), pub...),
	}, nil
}

func (e ed25519Engine) Sign(privateKey, payload []byte) ([]byte, error) {
	priv, err := e.expand(privateKey)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, payload), nil
}

func (e ed25519Engine) Verify(publicKey, payload, signature []byte) bool {
	return e.Check(publicKey, payload, signature) == nil
}

func (e ed25519Engine) Check(publicKey, payload, signature []byte) error {
	if !e.ValidPublicKey(publicKey) {
		return fmt.Errorf("%w: ed25519 public key must be %d bytes, got %d", ErrInvalidKey, ed25519.PublicKeySize, len(publicKey))
	}
	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: ed25519 signature must be %d bytes, got %d", ErrMalformedSignature, ed25519.SignatureSize, len(signature))
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), payload, signature) {
		return ErrSignatureMismatch
	}
	return nil
}

func (ed25519Engine) ValidPublicKey(publicKey []byte) bool {
	return len(publicKey) == ed25519.PublicKeySize
}

func (e ed25519Engine) ValidPrivateKey(privateKey []byte) bool {
	_, err := e.expand(privateKey)
	return err == nil
}

// PublicFromPrivate derives the verification key from an ed25519 seed or
// expanded private key.
func PublicFromPrivate(privateKey []byte) ([]byte, error) {
	priv, err := ed25519Engine{}.expand(privateKey)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), priv.Public().(ed25519.PublicKey)...), nil
}

// expand accepts a 32-byte seed or a 64-byte seed||public key whose public
// half matches the seed.
func (ed25519Engine) expand(privateKey []byte) (ed25519.PrivateKey, error) {
	switch len(privateKey) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(privateKey), nil
	case ed25519.PrivateKeySize:
		priv := ed25519.NewKeyFromSeed(privateKey[:ed25519.SeedSize])
		if !bytes.Equal(priv[ed25519.SeedSize:], privateKey[ed25519.SeedSize:]) {
			return nil, fmt.Errorf("%w: ed25519 private key public half does not match seed", ErrInvalidKey)
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("%w: ed25519 private key must be %d or %d bytes, got %d", ErrInvalidKey, ed25519.SeedSize, ed25519.PrivateKeySize, len(privateKey))
	}
}

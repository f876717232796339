package keys

import (
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// dilithium3Engine is the post-quantum option. Keys use circl's packed
// binary encodings and the payload is signed as-is.
type dilithium3Engine struct{}

func (dilithium3Engine) Scheme() Scheme { return SchemeDilithium3 }

func (dilithium3Engine) GenerateKeypair(rand io.Reader) (Keypair, error) {
	pk, sk, err := mode3.GenerateKey(rand)
	if err != nil {
		return Keypair{}, fmt.Errorf("keys: generate dilithium3: %w", err)
	}
	return Keypair{Scheme: SchemeDilithium3, Private: sk.Bytes(), Public: pk.Bytes()}, nil
}

func (dilithium3Engine) Sign(privateKey, payload []byte) ([]byte, error) {
	if len(privateKey) != mode3.PrivateKeySize {
		return nil, fmt.Errorf("%w: dilithium3 private key must be %d bytes, got %d", ErrInvalidKey, mode3.PrivateKeySize, len(privateKey))
	}
	var sk mode3.PrivateKey
	if err := sk.UnmarshalBinary(privateKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(&sk, payload, sig)
	return sig, nil
}

func (e dilithium3Engine) Verify(publicKey, payload, signature []byte) bool {
	return e.Check(publicKey, payload, signature) == nil
}

func (dilithium3Engine) Check(publicKey, payload, signature []byte) error {
	if len(publicKey) != mode3.PublicKeySize {
		return fmt.Errorf("%w: dilithium3 public key must be %d bytes, got %d", ErrInvalidKey, mode3.PublicKeySize, len(publicKey))
	}
	var pk mode3.PublicKey
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(signature) != mode3.SignatureSize {
		return fmt.Errorf("%w: dilithium3 signature must be %d bytes, got %d", ErrMalformedSignature, mode3.SignatureSize, len(signature))
	}
	if !mode3.Verify(&pk, payload, signature) {
		return ErrSignatureMismatch
	}
	return nil
}

func (dilithium3Engine) ValidPublicKey(publicKey []byte) bool {
	if len(publicKey) != mode3.PublicKeySize {
		return false
	}
	var pk mode3.PublicKey
	return pk.UnmarshalBinary(publicKey) == nil
}

func (dilithium3Engine) ValidPrivateKey(privateKey []byte) bool {
	if len(privateKey) != mode3.PrivateKeySize {
		return false
	}
	var sk mode3.PrivateKey
	return sk.UnmarshalBinary(privateKey) == nil
}

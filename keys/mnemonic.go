package keys

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// MnemonicFromSeed encodes an ed25519 seed as a 24-word BIP-39 mnemonic.
//
// The seed is used as BIP-39 entropy, so SeedFromMnemonic recovers the exact
// same private key.
func MnemonicFromSeed(seed []byte) (string, error) {
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("%w: got %d bytes of key material", ErrMnemonicUnsupported, len(seed))
	}
	return bip39.NewMnemonic(seed)
}

// SeedFromMnemonic is the inverse of MnemonicFromSeed.
func SeedFromMnemonic(mnemonic string) ([]byte, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: mnemonic encodes %d bytes, want %d", ErrInvalidMnemonic, len(seed), ed25519.SeedSize)
	}
	return seed, nil
}

// KeypairFromMnemonic rebuilds the ed25519 keypair backed up by mnemonic.
func KeypairFromMnemonic(mnemonic string) (Keypair, error) {
	seed, err := SeedFromMnemonic(mnemonic)
	if err != nil {
		return Keypair{}, err
	}
	pub, err := PublicFromPrivate(seed)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Scheme: SchemeEd25519, Private: seed, Public: pub}, nil
}

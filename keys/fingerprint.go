package keys

import (
	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

const fingerprintPrefix = "ak1"

// Fingerprint is a short, display-safe identifier for a public key:
// "ak1" + base58(blake2b-256(pub)). It is used in listings and log fields in
// place of the full key.
func Fingerprint(pub []byte) string {
	sum := blake2b.Sum256(pub)
	return fingerprintPrefix + base58.Encode(sum[:])
}

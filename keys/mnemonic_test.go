package keys

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestMnemonicRoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	words, err := MnemonicFromSeed(kp.Private)
	if err != nil {
		t.Fatalf("MnemonicFromSeed: %v", err)
	}
	if n := len(strings.Fields(words)); n != 24 {
		t.Fatalf("word count: got %d want 24", n)
	}

	got, err := KeypairFromMnemonic("  " + strings.ReplaceAll(words, " ", "\n ") + " ")
	if err != nil {
		t.Fatalf("KeypairFromMnemonic: %v", err)
	}
	if !bytes.Equal(got.Private, kp.Private) || !bytes.Equal(got.Public, kp.Public) {
		t.Fatalf("recovered keypair differs from original")
	}
}

func TestMnemonic_Rejects(t *testing.T) {
	if _, err := SeedFromMnemonic("not a real mnemonic"); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("invalid words: got %v", err)
	}
	if _, err := MnemonicFromSeed(make([]byte, 16)); !errors.Is(err, ErrMnemonicUnsupported) {
		t.Fatalf("short seed: got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	a, _ := GenerateKeypair()
	b, _ := GenerateKeypair()
	fa := Fingerprint(a.Public)
	if !strings.HasPrefix(fa, "ak1") {
		t.Fatalf("fingerprint prefix: %q", fa)
	}
	if fa != Fingerprint(a.Public) {
		t.Fatalf("fingerprint not deterministic")
	}
	if fa == Fingerprint(b.Public) {
		t.Fatalf("distinct keys share a fingerprint")
	}
}

package keys

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestKeyStore_SaveLoad(t *testing.T) {
	ks := NewKeyStore(t.TempDir())
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	privPath, pubPath, err := ks.Save("bunker-01", kp, false)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(privPath)
	if err != nil {
		t.Fatalf("stat private: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("private key perm: got %o want 600", perm)
	}

	priv, scheme, err := ks.LoadPrivate(privPath)
	if err != nil {
		t.Fatalf("LoadPrivate: %v", err)
	}
	if scheme != SchemeEd25519 || !bytes.Equal(priv, kp.Private) {
		t.Fatalf("LoadPrivate mismatch")
	}
	pub, _, err := ks.LoadPublic(pubPath)
	if err != nil {
		t.Fatalf("LoadPublic: %v", err)
	}
	if !bytes.Equal(pub, kp.Public) {
		t.Fatalf("LoadPublic mismatch")
	}

	if _, _, err := ks.Save("bunker-01", kp, false); !errors.Is(err, os.ErrExist) {
		t.Fatalf("Save without overwrite: got %v want ErrExist", err)
	}
	if _, _, err := ks.Save("bunker-01", kp, true); err != nil {
		t.Fatalf("Save with overwrite: %v", err)
	}
}

func TestKeyStore_SaveRemovesPrivateWhenPublicFails(t *testing.T) {
	ks := NewKeyStore(t.TempDir())
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	// A directory where the public key file belongs makes its write fail.
	if err := os.MkdirAll(ks.PublicPath("relay"), 0o700); err != nil {
		t.Fatal(err)
	}

	if _, _, err := ks.Save("relay", kp, true); err == nil {
		t.Fatalf("Save succeeded with an unwritable public key path")
	}
	if _, err := os.Stat(ks.PrivatePath("relay")); !os.IsNotExist(err) {
		t.Fatalf("private key left behind: stat err=%v", err)
	}

	if err := os.Remove(ks.PublicPath("relay")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ks.Save("relay", kp, false); err != nil {
		t.Fatalf("Save after failed attempt: %v", err)
	}
}

func TestKeyStore_RejectsBadNames(t *testing.T) {
	ks := NewKeyStore(t.TempDir())
	kp, _ := GenerateKeypair()
	for _, id := range []string{"", "../escape", "a b"} {
		if _, _, err := ks.Save(id, kp, false); err == nil {
			t.Fatalf("Save(%q): expected error", id)
		}
	}
}

func TestKeyStore_LoadPublicRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	ks := NewKeyStore(dir)
	path := filepath.Join(dir, "x.pub")
	if err := os.WriteFile(path, []byte("deadbeef\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := ks.LoadPublic(path); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("LoadPublic: got %v want ErrInvalidKey", err)
	}
}

func TestKeyStore_ListAndSignature(t *testing.T) {
	ks := NewKeyStore(t.TempDir())
	for _, id := range []string{"zulu", "alpha"} {
		kp, _ := GenerateKeypair()
		if _, _, err := ks.Save(id, kp, false); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}
	if err := os.Remove(ks.PrivatePath("zulu")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	path, err := ks.SaveSignature("abcd")
	if err != nil {
		t.Fatalf("SaveSignature: %v", err)
	}
	b, _ := os.ReadFile(path)
	if strings.TrimSpace(string(b)) != "abcd" {
		t.Fatalf("signature file: %q", b)
	}

	entries, err := ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "alpha" || entries[1].ID != "zulu" {
		t.Fatalf("List order: %+v", entries)
	}
	if !entries[0].HasPrivate || entries[1].HasPrivate {
		t.Fatalf("HasPrivate flags: %+v", entries)
	}
}

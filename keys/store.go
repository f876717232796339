package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// DefaultDirectory is where the CLI keeps key files unless configured.
	DefaultDirectory = "keys"

	privateSuffix = ".priv"
	publicSuffix  = ".pub"

	// SignatureFile receives the most recent signature written by SaveSignature.
	SignatureFile = "last_signature.txt"
)

// KeyStore keeps key material as hex text files in one directory:
// <id>.priv (0600) and <id>.pub (0644).
//
// It is the external key storage collaborator of the registry; nothing in the
// registry or authenticator reads it.
type KeyStore struct {
	Directory string
}

// Entry is one stored identity.
type Entry struct {
	ID          string
	Scheme      Scheme
	Fingerprint string
	HasPrivate  bool
}

// NewKeyStore returns a store rooted at directory, or DefaultDirectory.
func NewKeyStore(directory string) *KeyStore {
	if strings.TrimSpace(directory) == "" {
		directory = DefaultDirectory
	}
	return &KeyStore{Directory: directory}
}

// CheckKeyName restricts identity names to [A-Za-z0-9_-].
func CheckKeyName(id string) error {
	if id == "" {
		return errors.New("identifier cannot be empty")
	}
	for _, char := range id {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in identifier", char)
	}
	return nil
}

// PrivatePath is the private key file for id.
func (ks *KeyStore) PrivatePath(id string) string {
	return filepath.Join(ks.Directory, id+privateSuffix)
}

// PublicPath is the public key file for id.
func (ks *KeyStore) PublicPath(id string) string {
	return filepath.Join(ks.Directory, id+publicSuffix)
}

// Save writes both halves of kp. Existing files are kept unless overwrite is
// set. It returns the private and public file paths.
func (ks *KeyStore) Save(id string, kp Keypair, overwrite bool) (privPath, pubPath string, err error) {
	if err := CheckKeyName(id); err != nil {
		return "", "", err
	}
	e, err := EngineFor(kp.Scheme)
	if err != nil {
		return "", "", err
	}
	if !e.ValidPrivateKey(kp.Private) || !e.ValidPublicKey(kp.Public) {
		return "", "", fmt.Errorf("%w: keypair does not match scheme %s", ErrInvalidKey, kp.Scheme)
	}
	privPath, pubPath = ks.PrivatePath(id), ks.PublicPath(id)
	if !overwrite {
		for _, p := range []string{privPath, pubPath} {
			if _, err := os.Stat(p); err == nil {
				return "", "", fmt.Errorf("%s: %w", p, os.ErrExist)
			}
		}
	}
	if err := writeHexFile(privPath, kp.Private, 0o600, overwrite); err != nil {
		return "", "", err
	}
	if err := writeHexFile(pubPath, kp.Public, 0o644, overwrite); err != nil {
		// Never leave a private key without its public half.
		_ = os.Remove(privPath)
		return "", "", err
	}
	return privPath, pubPath, nil
}

// LoadPrivate reads a hex private key file.
func (ks *KeyStore) LoadPrivate(path string) ([]byte, Scheme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return DecodePrivateKeyHex(string(data))
}

// LoadPublic reads a hex public key file.
func (ks *KeyStore) LoadPublic(path string) ([]byte, Scheme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return DecodePublicKeyHex(string(data))
}

// SaveSignature writes sigHex to SignatureFile in the store directory,
// replacing any previous one.
func (ks *KeyStore) SaveSignature(sigHex string) (string, error) {
	path := filepath.Join(ks.Directory, SignatureFile)
	if err := os.MkdirAll(ks.Directory, 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(sigHex+"\n"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// List returns every identity with a readable public key file, sorted by id.
func (ks *KeyStore) List() ([]Entry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), publicSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), publicSuffix))
	}
	sort.Strings(ids)

	result := make([]Entry, 0, len(ids))
	for _, id := range ids {
		pub, scheme, err := ks.LoadPublic(ks.PublicPath(id))
		if err != nil {
			continue
		}
		_, statErr := os.Stat(ks.PrivatePath(id))
		result = append(result, Entry{
			ID:          id,
			Scheme:      scheme,
			Fingerprint: Fingerprint(pub),
			HasPrivate:  statErr == nil,
		})
	}
	return result, nil
}

func writeHexFile(path string, data []byte, perm os.FileMode, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(data) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

// Package jsonfile stores the registry as a single JSON document keyed by
// public key hex, in insertion order.
//
// Mutations are serialized in-process by a mutex and across processes by an
// advisory lock on "<path>.lock"; the document is re-read under the lock and
// replaced by an atomic rename, so readers see either the old or the new
// file.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"xdao.co/authledger/model"
	"xdao.co/authledger/storage"
	"xdao.co/authledger/storage/backends"
)

// DefaultPath matches the file name used by earlier tooling.
const DefaultPath = "ledger_data.json"

const lockRetryDelay = 10 * time.Millisecond

func init() {
	backends.MustRegister(backends.Backend{
		Name:        "jsonfile",
		Description: "Single JSON document on local disk",
		Usage:       backends.UsageCLI | backends.UsageDaemon,
		Keys:        []string{"path"},
		Open: func(s backends.Settings) (storage.Store, error) {
			return New(s.String("path", DefaultPath))
		},
	})
}

type Store struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

var _ storage.Store = (*Store)(nil)

// New returns a Store for path. The file is created on first insert; a
// missing file reads as an empty registry.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("jsonfile: path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: abs, lock: flock.New(abs + ".lock")}, nil
}

// Path is the absolute document path.
func (s *Store) Path() string { return s.path }

func (s *Store) Insert(ctx context.Context, rec model.IdentityRecord) error {
	rec, err := storage.ValidateRecord(rec)
	if err != nil {
		return err
	}
	return s.update(ctx, func(recs []model.IdentityRecord) ([]model.IdentityRecord, error) {
		for _, existing := range recs {
			if existing.PublicKey == rec.PublicKey {
				return nil, fmt.Errorf("%w: %s", storage.ErrAlreadyExists, rec.PublicKey)
			}
		}
		return append(recs, rec), nil
	})
}

func (s *Store) Get(ctx context.Context, publicKey string) (model.IdentityRecord, error) {
	k, err := storage.CanonicalKey(publicKey)
	if err != nil {
		return model.IdentityRecord{}, err
	}
	recs, err := s.read(ctx)
	if err != nil {
		return model.IdentityRecord{}, err
	}
	for _, rec := range recs {
		if rec.PublicKey == k {
			return rec, nil
		}
	}
	return model.IdentityRecord{}, storage.ErrNotFound
}

func (s *Store) List(ctx context.Context) ([]model.IdentityRecord, error) {
	return s.read(ctx)
}

func (s *Store) SetStatus(ctx context.Context, publicKey string, status model.Status) error {
	k, err := storage.CanonicalKey(publicKey)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", storage.ErrInvalidRecord, string(status))
	}
	return s.update(ctx, func(recs []model.IdentityRecord) ([]model.IdentityRecord, error) {
		for i := range recs {
			if recs[i].PublicKey == k {
				recs[i].Status = status
				return recs, nil
			}
		}
		return nil, storage.ErrNotFound
	})
}

func (s *Store) Close() error { return nil }

func (s *Store) read(ctx context.Context) ([]model.IdentityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Reads never create directories; a missing parent is an empty registry.
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ok, err := s.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("jsonfile: lock %s: %w", s.lock.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("jsonfile: lock %s: %w", s.lock.Path(), ctx.Err())
	}
	defer s.lock.Unlock()
	return s.load()
}

// update applies fn to the current document under the exclusive lock and
// writes the result. fn must not retain recs.
func (s *Store) update(ctx context.Context, fn func([]model.IdentityRecord) ([]model.IdentityRecord, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("jsonfile: lock %s: %w", s.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("jsonfile: lock %s: %w", s.lock.Path(), ctx.Err())
	}
	defer s.lock.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}
	next, err := fn(recs)
	if err != nil {
		return err
	}
	data, err := Encode(next)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

func (s *Store) load() ([]model.IdentityRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	recs, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return recs, nil
}

// Decode parses a registry document, keeping document order. Any parse
// failure, unknown status or repeated key is reported as storage.ErrCorrupt.
func Decode(data []byte) ([]model.IdentityRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, corrupt(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, corrupt(errors.New("document is not a JSON object"))
	}

	var recs []model.IdentityRecord
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, corrupt(err)
		}
		key, _ := tok.(string)
		k, err := storage.CanonicalKey(key)
		if err != nil {
			return nil, corrupt(err)
		}
		if seen[k] {
			return nil, corrupt(fmt.Errorf("key %s appears twice", k))
		}
		seen[k] = true

		var body json.RawMessage
		if err := dec.Decode(&body); err != nil {
			return nil, corrupt(err)
		}
		rec := model.IdentityRecord{PublicKey: k}
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, corrupt(fmt.Errorf("record %s: %w", k, err))
		}
		recs = append(recs, rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, corrupt(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, corrupt(errors.New("trailing data after document"))
	}
	return recs, nil
}

// Encode writes recs as a document indented by four spaces.
func Encode(recs []model.IdentityRecord) ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, rec := range recs {
		if i > 0 {
			compact.WriteByte(',')
		}
		k, err := json.Marshal(rec.PublicKey)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		compact.Write(k)
		compact.WriteByte(':')
		compact.Write(body)
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "    "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

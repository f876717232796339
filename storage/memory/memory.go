// Package memory is an in-process storage.Store for tests and ephemeral
// daemons. Nothing survives Close.
package memory

import (
	"context"
	"fmt"
	"sync"

	"xdao.co/authledger/model"
	"xdao.co/authledger/storage"
	"xdao.co/authledger/storage/backends"
)

func init() {
	backends.MustRegister(backends.Backend{
		Name:        "memory",
		Description: "In-memory registry (not persisted)",
		Usage:       backends.UsageCLI | backends.UsageDaemon,
		Open: func(backends.Settings) (storage.Store, error) {
			return New(), nil
		},
	})
}

// Store keeps records in process memory, in insertion order. After Close
// every call fails with storage.ErrUnavailable.
type Store struct {
	mu     sync.RWMutex
	order  []string
	byKey  map[string]model.IdentityRecord
	closed bool
}

var _ storage.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{byKey: make(map[string]model.IdentityRecord)}
}

func (s *Store) Insert(ctx context.Context, rec model.IdentityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := storage.ValidateRecord(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store closed", storage.ErrUnavailable)
	}
	if _, ok := s.byKey[rec.PublicKey]; ok {
		return fmt.Errorf("%w: %s", storage.ErrAlreadyExists, rec.PublicKey)
	}
	s.byKey[rec.PublicKey] = rec
	s.order = append(s.order, rec.PublicKey)
	return nil
}

func (s *Store) Get(ctx context.Context, publicKey string) (model.IdentityRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.IdentityRecord{}, err
	}
	k, err := storage.CanonicalKey(publicKey)
	if err != nil {
		return model.IdentityRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.IdentityRecord{}, fmt.Errorf("%w: store closed", storage.ErrUnavailable)
	}
	rec, ok := s.byKey[k]
	if !ok {
		return model.IdentityRecord{}, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) List(ctx context.Context) ([]model.IdentityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store closed", storage.ErrUnavailable)
	}
	out := make([]model.IdentityRecord, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k].Clone())
	}
	return out, nil
}

func (s *Store) SetStatus(ctx context.Context, publicKey string, status model.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := storage.CanonicalKey(publicKey)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", storage.ErrInvalidRecord, string(status))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store closed", storage.ErrUnavailable)
	}
	rec, ok := s.byKey[k]
	if !ok {
		return storage.ErrNotFound
	}
	rec.Status = status
	s.byKey[k] = rec
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

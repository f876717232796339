package testkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"xdao.co/authledger/model"
	"xdao.co/authledger/storage"
)

// NewStore constructs a fresh, empty Store for a test.
// The returned Store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.Store

// Key returns a deterministic 32-byte public key hex for n.
func Key(n int) string {
	return fmt.Sprintf("%064x", n+1)
}

// Record returns an active record for Key(n).
func Record(n int, owner string) model.IdentityRecord {
	return model.IdentityRecord{
		PublicKey:    Key(n),
		Scheme:       model.DefaultScheme,
		Owner:        owner,
		Status:       model.StatusActive,
		RegisteredAt: time.Date(2026, 10, 16, 9, 0, n, 0, time.UTC),
	}
}

// RunStoreConformance checks the storage.Store contract.
func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("InsertGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := Record(1, "Command-Alpha")
		want.Extra = map[string]json.RawMessage{"zone": json.RawMessage(`"north"`)}
		if err := s.Insert(ctx, want); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		got, err := s.Get(ctx, want.PublicKey)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.PublicKey != want.PublicKey || got.Owner != want.Owner || got.Status != want.Status || got.Scheme != want.Scheme {
			t.Fatalf("Get mismatch: got %+v want %+v", got, want)
		}
		if !got.RegisteredAt.Equal(want.RegisteredAt) {
			t.Fatalf("RegisteredAt mismatch: got %s want %s", got.RegisteredAt, want.RegisteredAt)
		}
		if string(got.Extra["zone"]) != `"north"` {
			t.Fatalf("extra field not preserved: %q", got.Extra["zone"])
		}
	})

	t.Run("DuplicateInsertRejected", func(t *testing.T) {
		s := newStore(t)
		if err := s.Insert(ctx, Record(2, "A")); err != nil {
			t.Fatalf("Insert(1) failed: %v", err)
		}
		err := s.Insert(ctx, Record(2, "B"))
		if !errors.Is(err, storage.ErrAlreadyExists) {
			t.Fatalf("Insert(2): got %v want ErrAlreadyExists", err)
		}
		got, err := s.Get(ctx, Key(2))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Owner != "A" {
			t.Fatalf("owner mutated by rejected insert: %q", got.Owner)
		}
	})

	t.Run("CanonicalKeys", func(t *testing.T) {
		s := newStore(t)
		rec := Record(3, "A")
		rec.PublicKey = " " + strings.ToUpper(rec.PublicKey) + " "
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if _, err := s.Get(ctx, Key(3)); err != nil {
			t.Fatalf("Get lowercase: %v", err)
		}
		if err := s.Insert(ctx, Record(3, "B")); !errors.Is(err, storage.ErrAlreadyExists) {
			t.Fatalf("Insert lowercase duplicate: got %v want ErrAlreadyExists", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, Key(4))
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
		if err := s.SetStatus(ctx, Key(4), model.StatusRevoked); !storage.IsNotFound(err) {
			t.Fatalf("SetStatus missing: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("RejectInvalidRecord", func(t *testing.T) {
		s := newStore(t)
		bad := Record(5, "A")
		bad.PublicKey = "not-hex"
		if err := s.Insert(ctx, bad); !errors.Is(err, storage.ErrInvalidRecord) {
			t.Fatalf("Insert bad key: got %v want ErrInvalidRecord", err)
		}
		bad = Record(5, "A")
		bad.Status = "suspended"
		if err := s.Insert(ctx, bad); !errors.Is(err, storage.ErrInvalidRecord) {
			t.Fatalf("Insert bad status: got %v want ErrInvalidRecord", err)
		}
	})

	t.Run("ListInsertionOrder", func(t *testing.T) {
		s := newStore(t)
		order := []int{9, 1, 5, 3}
		for _, n := range order {
			if err := s.Insert(ctx, Record(n, fmt.Sprintf("owner-%d", n))); err != nil {
				t.Fatalf("Insert(%d) failed: %v", n, err)
			}
		}
		got, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != len(order) {
			t.Fatalf("List length: got %d want %d", len(got), len(order))
		}
		for i, n := range order {
			if got[i].PublicKey != Key(n) {
				t.Fatalf("List[%d]: got %s want %s", i, got[i].PublicKey, Key(n))
			}
		}
	})

	t.Run("SetStatusInPlace", func(t *testing.T) {
		s := newStore(t)
		want := Record(6, "A")
		if err := s.Insert(ctx, want); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := s.SetStatus(ctx, want.PublicKey, model.StatusRevoked); err != nil {
			t.Fatalf("SetStatus failed: %v", err)
		}
		got, err := s.Get(ctx, want.PublicKey)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status != model.StatusRevoked || got.Owner != "A" || !got.RegisteredAt.Equal(want.RegisteredAt) {
			t.Fatalf("SetStatus changed more than status: %+v", got)
		}
		if err := s.SetStatus(ctx, want.PublicKey, "bogus"); !errors.Is(err, storage.ErrInvalidRecord) {
			t.Fatalf("SetStatus bogus: got %v want ErrInvalidRecord", err)
		}
	})

	t.Run("ConcurrentInsertSameKey", func(t *testing.T) {
		s := newStore(t)
		const workers = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			dupes     int
			others    []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.Insert(ctx, Record(7, fmt.Sprintf("racer-%d", i)))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, storage.ErrAlreadyExists):
					dupes++
				default:
					others = append(others, err)
				}
			}(i)
		}
		wg.Wait()
		if len(others) > 0 {
			t.Fatalf("unexpected errors: %v", others)
		}
		if successes != 1 || dupes != workers-1 {
			t.Fatalf("got %d successes and %d duplicates, want 1 and %d", successes, dupes, workers-1)
		}
		all, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(all) != 1 {
			t.Fatalf("List after race: got %d records want 1", len(all))
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		s := newStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := s.Insert(cctx, Record(8, "A")); err == nil {
			t.Fatalf("Insert with cancelled context succeeded")
		}
	})
}

package ledger

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/authledger/cidutil"
	"xdao.co/authledger/internal/metrics"
	"xdao.co/authledger/keys"
	"xdao.co/authledger/model"
	"xdao.co/authledger/storage"
	"xdao.co/authledger/storage/archive"
	"xdao.co/authledger/storage/jsonfile"
	"xdao.co/authledger/storage/memory"
)

var fixedNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func newKey(t *testing.T) keys.Keypair {
	t.Helper()
	kp, err := keys.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func newRegistry(t *testing.T, opts ...Option) (*Registry, *memory.Store) {
	t.Helper()
	st := memory.New()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(st, opts...), st
}

func TestRegisterThenActive(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	kp := newKey(t)

	rec, err := r.Register(ctx, kp.Public, "Command-Alpha")
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(kp.Public), rec.PublicKey)
	assert.Equal(t, "Command-Alpha", rec.Owner)
	assert.Equal(t, model.StatusActive, rec.Status)
	assert.Equal(t, "ed25519", rec.Scheme)
	assert.True(t, fixedNow.Equal(rec.RegisteredAt))

	assert.True(t, r.IsActive(ctx, kp.Public))
	st, err := r.Status(ctx, kp.Public)
	require.NoError(t, err)
	assert.Equal(t, StandingActive, st)

	got, found, err := r.Get(ctx, kp.Public)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Command-Alpha", got.Owner)
}

func TestReRegistrationRejectedOriginalKept(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	kp := newKey(t)

	_, err := r.Register(ctx, kp.Public, "A")
	require.NoError(t, err)

	_, err = r.Register(ctx, kp.Public, "B")
	require.Error(t, err)
	assert.True(t, IsAlreadyRegistered(err))
	assert.Equal(t, CodeDuplicateIdentity, Code(err))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	rec, found, err := r.Get(ctx, kp.Public)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "A", rec.Owner)
}

func TestUnregisteredKey(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	kp := newKey(t)

	assert.False(t, r.IsActive(ctx, kp.Public))
	st, err := r.Status(ctx, kp.Public)
	require.NoError(t, err)
	assert.Equal(t, StandingUnregistered, st)

	_, found, err := r.Get(ctx, kp.Public)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRevokedKeyIsNotActive(t *testing.T) {
	ctx := context.Background()
	r, st := newRegistry(t)
	kp := newKey(t)

	_, err := r.Register(ctx, kp.Public, "A")
	require.NoError(t, err)
	require.NoError(t, st.SetStatus(ctx, hex.EncodeToString(kp.Public), model.StatusRevoked))

	assert.False(t, r.IsActive(ctx, kp.Public))
	standing, err := r.Status(ctx, kp.Public)
	require.NoError(t, err)
	assert.Equal(t, StandingRevoked, standing)

	// Revocation does not free the key for re-registration.
	_, err = r.Register(ctx, kp.Public, "B")
	assert.True(t, IsAlreadyRegistered(err))
}

func TestRegisterRejectsMalformedKeys(t *testing.T) {
	ctx := context.Background()
	r, st := newRegistry(t)

	for _, pub := range [][]byte{nil, {}, bytes.Repeat([]byte{1}, 31), bytes.Repeat([]byte{1}, 33)} {
		_, err := r.Register(ctx, pub, "A")
		require.Error(t, err)
		assert.True(t, IsKind(err, KindInvalidKey), "len %d", len(pub))
		assert.ErrorIs(t, err, keys.ErrInvalidKey)

		standing, err := r.Status(ctx, pub)
		require.NoError(t, err)
		assert.Equal(t, StandingUnregistered, standing)
	}
	recs, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestOwnerIsFreeForm(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	for _, owner := range []string{"", "  spaced  ", "Ünïcode ✓", "line\nbreak"} {
		kp := newKey(t)
		rec, err := r.Register(ctx, kp.Public, owner)
		require.NoError(t, err)
		assert.Equal(t, owner, rec.Owner)
	}
}

func TestDilithiumKeysRegister(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	e, err := keys.EngineFor(keys.SchemeDilithium3)
	require.NoError(t, err)
	kp, err := e.GenerateKeypair(rand.Reader)
	require.NoError(t, err)

	rec, err := r.Register(ctx, kp.Public, "pq")
	require.NoError(t, err)
	assert.Equal(t, "dilithium3", rec.Scheme)
	assert.True(t, r.IsActive(ctx, kp.Public))
}

func TestAllKeepsRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	var want []string
	for i := 0; i < 5; i++ {
		kp := newKey(t)
		_, err := r.Register(ctx, kp.Public, fmt.Sprintf("owner-%d", i))
		require.NoError(t, err)
		want = append(want, hex.EncodeToString(kp.Public))
	}
	recs, err := r.All(ctx)
	require.NoError(t, err)
	require.Len(t, recs, len(want))
	for i, rec := range recs {
		assert.Equal(t, want[i], rec.PublicKey)
	}
}

func TestConcurrentRegistrationExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")
	st, err := jsonfile.New(path)
	require.NoError(t, err)
	r := New(st)
	kp := newKey(t)

	const n = 12
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		dups int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Register(ctx, kp.Public, fmt.Sprintf("racer-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case IsAlreadyRegistered(err):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, dups)
}

type brokenStore struct {
	memory.Store
	err error
}

func (b *brokenStore) Insert(context.Context, model.IdentityRecord) error { return b.err }
func (b *brokenStore) Get(context.Context, string) (model.IdentityRecord, error) {
	return model.IdentityRecord{}, b.err
}
func (b *brokenStore) List(context.Context) ([]model.IdentityRecord, error) { return nil, b.err }

func TestStorageFailureIsDistinguishable(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	r := New(&brokenStore{err: fmt.Errorf("%w: disk gone", storage.ErrUnavailable)}, WithLogger(log))
	kp := newKey(t)

	// The boolean query cannot report the failure, but it logs it.
	assert.False(t, r.IsActive(ctx, kp.Public))
	assert.Contains(t, logs.String(), "status lookup failed")

	st, err := r.Status(ctx, kp.Public)
	require.Error(t, err)
	assert.Equal(t, StandingUnregistered, st)
	assert.True(t, IsKind(err, KindStorage))
	assert.True(t, IsStorage(err))
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = r.Register(ctx, kp.Public, "A")
	assert.True(t, IsKind(err, KindStorage))
	assert.False(t, IsAlreadyRegistered(err))

	_, err = r.All(ctx)
	assert.True(t, IsKind(err, KindStorage))
}

func TestCorruptStoreIsReported(t *testing.T) {
	ctx := context.Background()
	r := New(&brokenStore{err: fmt.Errorf("%w: bad json", storage.ErrCorrupt)})
	_, err := r.Status(ctx, newKey(t).Public)
	assert.True(t, IsKind(err, KindCorrupt))
	assert.Equal(t, CodeStoreCorrupt, Code(err))
	assert.True(t, IsStorage(err))
}

func TestSnapshotIsCanonical(t *testing.T) {
	ctx := context.Background()
	a, _ := newRegistry(t)
	b, _ := newRegistry(t)
	k1, k2 := newKey(t), newKey(t)

	_, err := a.Register(ctx, k1.Public, "one")
	require.NoError(t, err)
	_, err = a.Register(ctx, k2.Public, "two")
	require.NoError(t, err)
	_, err = b.Register(ctx, k2.Public, "two")
	require.NoError(t, err)
	_, err = b.Register(ctx, k1.Public, "one")
	require.NoError(t, err)

	sa, err := a.Snapshot(ctx)
	require.NoError(t, err)
	sb, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(sa.Data), string(sb.Data))
	assert.True(t, sa.CID.Equals(sb.CID))
	assert.True(t, cidutil.Matches(sa.CID, sa.Data))
	assert.NotContains(t, string(sa.Data), "\n")
	assert.Equal(t, 2, sa.Records)
}

func TestArchiveReceivesSnapshots(t *testing.T) {
	ctx := context.Background()
	arc, err := archive.New(t.TempDir())
	require.NoError(t, err)
	m := metrics.New()
	r, _ := newRegistry(t, WithArchive(arc), WithMetrics(m))

	_, err = r.Register(ctx, newKey(t).Public, "A")
	require.NoError(t, err)
	_, err = r.Register(ctx, newKey(t).Public, "B")
	require.NoError(t, err)

	hist, err := arc.History()
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 2, hist[1].Records)

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.CID.String(), hist[1].CID)
	assert.Equal(t, hist[1].Records, snap.Records)
}

type failingArchive struct{}

func (failingArchive) Put([]byte, int, time.Time) (cid.Cid, error) {
	return cid.Undef, errors.New("archive offline")
}

func TestArchiveFailureDoesNotFailRegistration(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	r, _ := newRegistry(t, WithArchive(failingArchive{}), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	kp := newKey(t)

	_, err := r.Register(ctx, kp.Public, "A")
	require.NoError(t, err)
	assert.True(t, r.IsActive(ctx, kp.Public))
	assert.Contains(t, logs.String(), "snapshot archive failed")
}

func TestStandingString(t *testing.T) {
	assert.Equal(t, "active", StandingActive.String())
	assert.Equal(t, "revoked", StandingRevoked.String())
	assert.Equal(t, "unregistered", StandingUnregistered.String())
}

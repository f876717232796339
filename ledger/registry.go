package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/authledger/cidutil"
	"xdao.co/authledger/internal/logging"
	"xdao.co/authledger/internal/metrics"
	"xdao.co/authledger/keys"
	"xdao.co/authledger/model"
	"xdao.co/authledger/storage"
)

// Standing is the authorization state of a key as seen by the registry.
type Standing int

const (
	StandingUnregistered Standing = iota
	StandingActive
	StandingRevoked
)

func (s Standing) String() string {
	switch s {
	case StandingActive:
		return "active"
	case StandingRevoked:
		return "revoked"
	default:
		return "unregistered"
	}
}

// Archiver receives a snapshot of the registry after every registration.
type Archiver interface {
	Put(snapshot []byte, records int, at time.Time) (cid.Cid, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the registration time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger; nil keeps the discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics counts registration outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithArchive snapshots the registry into a after each registration.
// Archive failures are logged and never fail the registration.
func WithArchive(a Archiver) Option {
	return func(r *Registry) { r.archive = a }
}

// Registry is safe for concurrent use when its store is.
type Registry struct {
	store   storage.Store
	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics
	archive Archiver
}

// New returns a Registry backed by store.
func New(store storage.Store, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		now:   time.Now,
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register records publicKey as active under owner. A key is registered at
// most once; a second attempt fails with KindAlreadyRegistered and leaves the
// original record untouched.
func (r *Registry) Register(ctx context.Context, publicKey []byte, owner string) (model.IdentityRecord, error) {
	engine, err := keys.EngineForPublicKey(publicKey)
	if err != nil {
		r.metrics.IncrementRegistration("invalid_key")
		return model.IdentityRecord{}, wrapError(KindInvalidKey, CodeKeyMalformed, "ledger: public key is not valid for any scheme", err)
	}

	rec := model.IdentityRecord{
		PublicKey:    hex.EncodeToString(publicKey),
		Scheme:       string(engine.Scheme()),
		Owner:        owner,
		Status:       model.StatusActive,
		RegisteredAt: r.now().UTC(),
	}
	fp := keys.Fingerprint(publicKey)

	if err := r.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			r.metrics.IncrementRegistration("already_registered")
			r.log.InfoContext(ctx, "registration rejected: already registered", "fingerprint", fp)
			return model.IdentityRecord{}, wrapError(KindAlreadyRegistered, CodeDuplicateIdentity, "ledger: public key is already registered", err)
		}
		r.metrics.IncrementRegistration("storage_error")
		r.log.ErrorContext(ctx, "registration failed", "fingerprint", fp, "err", err)
		return model.IdentityRecord{}, storeError(CodeStoreWrite, "ledger: could not record identity", err)
	}

	r.metrics.IncrementRegistration("registered")
	r.log.InfoContext(ctx, "identity registered", "fingerprint", fp, "owner", owner, "scheme", rec.Scheme)

	if r.archive != nil {
		r.archiveSnapshot(ctx)
	}
	return rec, nil
}

// IsActive reports whether publicKey is registered with status active.
// Storage failures read as false and are logged; use Status to tell them
// apart from an unauthorized key.
func (r *Registry) IsActive(ctx context.Context, publicKey []byte) bool {
	st, err := r.Status(ctx, publicKey)
	if err != nil {
		r.log.ErrorContext(ctx, "status lookup failed", "fingerprint", fingerprintOf(publicKey), "err", err)
		return false
	}
	return st == StandingActive
}

// Status returns the standing of publicKey. A malformed or empty key is
// StandingUnregistered. A non-nil error means the registry could not answer.
func (r *Registry) Status(ctx context.Context, publicKey []byte) (Standing, error) {
	rec, found, err := r.Get(ctx, publicKey)
	if err != nil {
		return StandingUnregistered, err
	}
	switch {
	case !found:
		return StandingUnregistered, nil
	case rec.Active():
		return StandingActive, nil
	default:
		return StandingRevoked, nil
	}
}

// Get returns the full record for publicKey; found is false for unknown keys.
func (r *Registry) Get(ctx context.Context, publicKey []byte) (rec model.IdentityRecord, found bool, err error) {
	if len(publicKey) == 0 {
		return model.IdentityRecord{}, false, nil
	}
	rec, err = r.store.Get(ctx, hex.EncodeToString(publicKey))
	switch {
	case err == nil:
		return rec, true, nil
	case errors.Is(err, storage.ErrNotFound):
		return model.IdentityRecord{}, false, nil
	default:
		return model.IdentityRecord{}, false, storeError(CodeStoreRead, "ledger: could not read identity", err)
	}
}

// All returns every record in registration order.
func (r *Registry) All(ctx context.Context) ([]model.IdentityRecord, error) {
	recs, err := r.store.List(ctx)
	if err != nil {
		return nil, storeError(CodeStoreRead, "ledger: could not list identities", err)
	}
	return recs, nil
}

// Snapshot is the registry encoded as one canonical JSON object (keys
// sorted, no insignificant whitespace) with its CID. Equal registries always
// produce the same Data.
type Snapshot struct {
	Data    []byte
	CID     cid.Cid
	Records int
}

// Snapshot captures the current registry.
func (r *Registry) Snapshot(ctx context.Context) (Snapshot, error) {
	recs, err := r.All(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	data, err := encodeSnapshot(recs)
	if err != nil {
		return Snapshot{}, err
	}
	id, err := cidutil.Sum(data)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Data: data, CID: id, Records: len(recs)}, nil
}

func encodeSnapshot(recs []model.IdentityRecord) ([]byte, error) {
	doc := make(map[string]model.IdentityRecord, len(recs))
	for _, rec := range recs {
		doc[rec.PublicKey] = rec
	}
	// encoding/json sorts map keys.
	return json.Marshal(doc)
}

func (r *Registry) archiveSnapshot(ctx context.Context) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		r.log.WarnContext(ctx, "snapshot skipped", "err", err)
		return
	}
	if _, err := r.archive.Put(snap.Data, snap.Records, r.now().UTC()); err != nil {
		r.log.WarnContext(ctx, "snapshot archive failed", "err", err)
		return
	}
	r.log.DebugContext(ctx, "snapshot archived", "cid", snap.CID.String(), "records", snap.Records)
}

func storeError(code, msg string, err error) error {
	if errors.Is(err, storage.ErrCorrupt) {
		return wrapError(KindCorrupt, CodeStoreCorrupt, "ledger: registry data is corrupted", err)
	}
	return wrapError(KindStorage, code, msg, err)
}

func fingerprintOf(publicKey []byte) string {
	if len(publicKey) == 0 {
		return ""
	}
	return keys.Fingerprint(publicKey)
}

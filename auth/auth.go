// Package auth decides whether a signed payload was produced by an
// authorized identity.
//
// A decision passes two gates in order: the key must be active in the
// registry, and the signature must verify under that key. An unauthorized
// key is rejected without verifying the signature.
package auth

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"xdao.co/authledger/internal/logging"
	"xdao.co/authledger/internal/metrics"
	"xdao.co/authledger/keys"
	"xdao.co/authledger/ledger"
)

// Result is the outcome of an authentication attempt.
type Result int

const (
	Accepted Result = iota
	RejectedUnregisteredOrRevoked
	RejectedBadSignature
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedUnregisteredOrRevoked:
		return "rejected_unregistered_or_revoked"
	case RejectedBadSignature:
		return "rejected_bad_signature"
	default:
		return "unknown"
	}
}

// Decision is returned for every completed authentication.
type Decision struct {
	// ID correlates the decision with its log line.
	ID          string
	Result      Result
	Standing    ledger.Standing
	Fingerprint string
	// Detail is the verification failure for RejectedBadSignature.
	Detail string
}

func (d Decision) Accepted() bool { return d.Result == Accepted }

// StatusSource reports the registry standing of a key. *ledger.Registry
// implements it.
type StatusSource interface {
	Status(ctx context.Context, publicKey []byte) (ledger.Standing, error)
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the decision logger; nil keeps the discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMetrics counts decisions by result in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authenticator) { a.metrics = m }
}

// Authenticator holds no mutable state and is safe for concurrent use.
type Authenticator struct {
	src     StatusSource
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New returns an Authenticator that consults src for key standing.
func New(src StatusSource, opts ...Option) *Authenticator {
	a := &Authenticator{src: src, log: logging.Discard()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate checks that publicKey is active and that signature is a valid
// signature of payload under it. A non-nil error means the registry could
// not be consulted and no decision was made.
func (a *Authenticator) Authenticate(ctx context.Context, publicKey, payload, signature []byte) (Decision, error) {
	d := Decision{ID: uuid.NewString()}
	if len(publicKey) > 0 {
		d.Fingerprint = keys.Fingerprint(publicKey)
	}

	standing, err := a.src.Status(ctx, publicKey)
	if err != nil {
		a.log.ErrorContext(ctx, "authentication aborted: registry unavailable",
			"decision_id", d.ID, "fingerprint", d.Fingerprint, "err", err)
		return Decision{}, err
	}
	d.Standing = standing

	switch {
	case standing != ledger.StandingActive:
		d.Result = RejectedUnregisteredOrRevoked
	default:
		if err := keys.Check(publicKey, payload, signature); err != nil {
			d.Result = RejectedBadSignature
			d.Detail = err.Error()
		} else {
			d.Result = Accepted
		}
	}

	a.metrics.IncrementDecision(d.Result.String())
	a.log.InfoContext(ctx, "authentication decision",
		"decision_id", d.ID,
		"fingerprint", d.Fingerprint,
		"standing", d.Standing.String(),
		"result", d.Result.String())
	return d, nil
}

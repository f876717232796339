package backends

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/authledger/model"
	"xdao.co/authledger/storage"
)

type stubStore struct{ path string }

func (stubStore) Insert(context.Context, model.IdentityRecord) error { return nil }
func (stubStore) Get(context.Context, string) (model.IdentityRecord, error) {
	return model.IdentityRecord{}, storage.ErrNotFound
}
func (stubStore) List(context.Context) ([]model.IdentityRecord, error) { return nil, nil }
func (stubStore) SetStatus(context.Context, string, model.Status) error { return nil }
func (stubStore) Close() error { return nil }

func TestRegisterAndOpen(t *testing.T) {
	name := "stub-" + t.Name()
	MustRegister(Backend{
		Name:  name,
		Usage: UsageCLI,
		Open: func(s Settings) (storage.Store, error) {
			return stubStore{path: s.String("path", "default")}, nil
		},
	})

	st, err := Open(name, UsageCLI, Settings{"path": "x.json"})
	require.NoError(t, err)
	assert.Equal(t, "x.json", st.(stubStore).path)

	st, err = Open(name, UsageCLI, nil)
	require.NoError(t, err)
	assert.Equal(t, "default", st.(stubStore).path)

	_, err = Open(name, UsageDaemon, nil)
	require.Error(t, err)
	assert.Contains(t, Names(UsageCLI), name)
	assert.NotContains(t, Names(UsageDaemon), name)
}

func TestRegisterRejectsIncompleteBackends(t *testing.T) {
	require.Error(t, Register(Backend{}))
	require.Error(t, Register(Backend{Name: "no-open", Usage: UsageCLI}))
	require.Error(t, Register(Backend{Name: "no-usage", Open: func(Settings) (storage.Store, error) { return nil, nil }}))

	name := "dup-" + t.Name()
	b := Backend{Name: name, Usage: UsageCLI, Open: func(Settings) (storage.Store, error) { return nil, nil }}
	require.NoError(t, Register(b))
	require.Error(t, Register(b))
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("does-not-exist", UsageCLI, nil)
	require.Error(t, err)
}

func TestSettings(t *testing.T) {
	s := Settings{"timeout": "250ms", "sync": "true", "bad": "soon"}
	d, err := s.Duration("timeout", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	d, err = s.Duration("missing", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	_, err = s.Duration("bad", time.Second)
	require.Error(t, err)

	b, err := s.Bool("sync", false)
	require.NoError(t, err)
	assert.True(t, b)
}

package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/authledger/model"
	"xdao.co/authledger/storage"
	"xdao.co/authledger/storage/testkit"
)

func TestStoreConformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		s, err := New(filepath.Join(t.TempDir(), "ledger.json"))
		require.NoError(t, err)
		return s
	})
}

func TestMissingFileIsEmpty(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "nested")
	s, err := New(filepath.Join(nested, "ledger.json"))
	require.NoError(t, err)

	recs, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = s.Get(context.Background(), testkit.Key(1))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = os.Stat(nested)
	assert.True(t, os.IsNotExist(err), "read created %s", nested)

	require.NoError(t, s.Insert(context.Background(), testkit.Record(1, "a")))
	_, err = os.Stat(s.Path())
	assert.NoError(t, err)
}

func TestDocumentLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s, err := New(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testkit.Record(2, "Command-Beta")))
	require.NoError(t, s.Insert(ctx, testkit.Record(1, "Command-Alpha")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(data)

	assert.True(t, strings.HasPrefix(doc, "{\n    \""+testkit.Key(2)+"\": {\n        \"owner\": \"Command-Beta\","), doc)
	assert.Less(t, strings.Index(doc, testkit.Key(2)), strings.Index(doc, testkit.Key(1)))
	assert.Contains(t, doc, `"status": "active"`)
	assert.Contains(t, doc, `"scheme": "ed25519"`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestLegacyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger_data.json")
	key := testkit.Key(1)
	legacy := `{
    "` + strings.ToUpper(key) + `": {
        "owner": "Command-Alpha",
        "status": "active",
        "timestamp": "2024-03-01T12:30:45.123456",
        "clearance": 7
    }
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := New(path)
	require.NoError(t, err)
	ctx := context.Background()

	rec, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Command-Alpha", rec.Owner)
	assert.Equal(t, model.DefaultScheme, rec.Scheme)
	want := time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.Local)
	assert.True(t, want.Equal(rec.RegisteredAt), "got %s", rec.RegisteredAt)

	// A rewrite keeps unknown fields and adds registered_at.
	require.NoError(t, s.Insert(ctx, testkit.Record(2, "Command-Beta")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"clearance": 7`)
	assert.Contains(t, string(data), `"timestamp": "2024-03-01T12:30:45.123456"`)
	assert.Contains(t, string(data), `"registered_at"`)

	recs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, key, recs[0].PublicKey)
}

func TestCorruptDocuments(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"abc`,
		"array":          `[]`,
		"unknown status": `{"` + testkit.Key(1) + `": {"owner": "x", "status": "suspended", "registered_at": "2026-01-01T00:00:00Z"}}`,
		"missing status": `{"` + testkit.Key(1) + `": {"owner": "x", "registered_at": "2026-01-01T00:00:00Z"}}`,
		"bad key":        `{"zz": {"owner": "x", "status": "active", "registered_at": "2026-01-01T00:00:00Z"}}`,
		"duplicate key":  `{"` + testkit.Key(1) + `": {"status": "active", "registered_at": "2026-01-01T00:00:00Z"}, "` + testkit.Key(1) + `": {"status": "revoked", "registered_at": "2026-01-01T00:00:00Z"}}`,
		"trailing data":  `{} {}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ledger.json")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
			s, err := New(path)
			require.NoError(t, err)

			_, err = s.List(context.Background())
			assert.ErrorIs(t, err, storage.ErrCorrupt)

			err = s.Insert(context.Background(), testkit.Record(3, "A"))
			assert.ErrorIs(t, err, storage.ErrCorrupt)

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, doc, string(after), "corrupt document must not be rewritten")
		})
	}
}

func TestEmptyFileIsEmptyRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))
	s, err := New(path)
	require.NoError(t, err)
	recs, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestTwoHandlesShareOneFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	a, err := New(path)
	require.NoError(t, err)
	b, err := New(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, a.Insert(ctx, testkit.Record(1, "A")))
	err = b.Insert(ctx, testkit.Record(1, "B"))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	require.NoError(t, b.SetStatus(ctx, testkit.Key(1), model.StatusRevoked))
	rec, err := a.Get(ctx, testkit.Key(1))
	require.NoError(t, err)
	assert.Equal(t, model.StatusRevoked, rec.Status)
	assert.Equal(t, "A", rec.Owner)
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "ledger.json"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(context.Background(), testkit.Record(i, "A")))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

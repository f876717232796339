package cidutil

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumIsStable(t *testing.T) {
	a, err := Sum([]byte(`{}`))
	require.NoError(t, err)
	b, err := Sum([]byte(`{}`))
	require.NoError(t, err)
	assert.True(t, a.Equals(b))
	assert.Equal(t, a.String(), String([]byte(`{}`)))
	assert.Equal(t, uint64(cid.Raw), a.Type())

	c, err := Sum([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.False(t, a.Equals(c))
}

func TestParse(t *testing.T) {
	id, err := Sum([]byte("snapshot"))
	require.NoError(t, err)

	got, err := Parse(id.String())
	require.NoError(t, err)
	assert.True(t, got.Equals(id))

	_, err = Parse("not-a-cid")
	require.Error(t, err)

	v0 := cid.NewCidV0(id.Hash())
	_, err = Parse(v0.String())
	require.Error(t, err)
}

func TestMatches(t *testing.T) {
	id, err := Sum([]byte("snapshot"))
	require.NoError(t, err)
	assert.True(t, Matches(id, []byte("snapshot")))
	assert.False(t, Matches(id, []byte("snapsh0t")))
}

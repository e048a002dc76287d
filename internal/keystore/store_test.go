package keystore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burnerhq/burnerd/internal/securefile"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.json")
	pw := []byte("1234")

	s, err := OpenFile(path, pw)
	require.NoError(t, err)

	require.NoError(t, s.Put(KeyWallets, []byte(`[{"address":"0xabc"}]`)))
	require.NoError(t, s.Put(KeyLabels, []byte(`{}`)))

	// Reopen with the same password.
	s2, err := OpenFile(path, pw)
	require.NoError(t, err)

	v, ok, err := s2.Get(KeyWallets)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"address":"0xabc"}]`, string(v))

	keys, err := s2.List()
	require.NoError(t, err)
	assert.Equal(t, []string{KeyLabels, KeyWallets}, keys)

	require.NoError(t, s2.Delete(KeyLabels))
	_, ok, err = s2.Get(KeyLabels)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.json")

	s, err := OpenFile(path, []byte("right"))
	require.NoError(t, err)
	require.NoError(t, s.Put(KeyPIN, []byte("x")))

	_, err = OpenFile(path, []byte("wrong"))
	assert.ErrorIs(t, err, securefile.ErrInvalidPasswordOrCorrupt)
}

func TestJSONHelpers(t *testing.T) {
	m := NewMemory()

	type rec struct {
		A string `json:"a"`
	}
	ok, err := GetJSON(m, "k", &rec{})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, PutJSON(m, "k", rec{A: "v"}))

	var out rec
	ok, err = GetJSON(m, "k", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", out.A)
}

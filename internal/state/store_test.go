package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	require.NoError(t, s.Save("acct", []string{"spy", "SPXW  251003C06450000", "SPY"}))

	symbols, err := s.Symbols("acct")
	require.NoError(t, err)
	assert.Equal(t, []string{"SPXW  251003C06450000", "SPY"}, symbols)
}

func TestStoreMissingFileIsEmpty(t *testing.T) {
	s := NewStore(t.TempDir())

	symbols, err := s.Symbols("nobody")
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestStoreCorruptFileIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	path := filepath.Join(dir, "watchlist_acct.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	symbols, err := s.Symbols("acct")
	require.NoError(t, err)
	assert.Empty(t, symbols)

	// The broken file is gone, so the next save starts clean.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestStoreAddRemove(t *testing.T) {
	s := NewStore(t.TempDir())

	require.NoError(t, s.Add("acct", "SPY"))
	require.NoError(t, s.Add("acct", "spy"))
	require.NoError(t, s.Add("acct", "QQQ"))

	symbols, err := s.Symbols("acct")
	require.NoError(t, err)
	assert.Equal(t, []string{"QQQ", "SPY"}, symbols)

	require.NoError(t, s.Remove("acct", "qqq"))
	require.NoError(t, s.Remove("acct", "GHOST"))

	symbols, err = s.Symbols("acct")
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY"}, symbols)
}

func TestStoreAccountsAreIndependent(t *testing.T) {
	s := NewStore(t.TempDir())

	require.NoError(t, s.Save("a", []string{"SPY"}))
	require.NoError(t, s.Save("b", []string{"QQQ"}))

	a, err := s.Symbols("a")
	require.NoError(t, err)
	b, err := s.Symbols("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY"}, a)
	assert.Equal(t, []string{"QQQ"}, b)
}

package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	got, err := s.Strings("favorite-apps")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SetStrings("favorite-apps", []string{"firefox", "org.gnome.Nautilus"}))
	got, err = s.Strings("favorite-apps")
	require.NoError(t, err)
	assert.Equal(t, []string{"firefox", "org.gnome.Nautilus"}, got)

	require.NoError(t, s.SetStrings("favorite-apps", []string{"org.gnome.Nautilus"}))
	got, err = s.Strings("favorite-apps")
	require.NoError(t, err)
	assert.Equal(t, []string{"org.gnome.Nautilus"}, got)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	exerciseStore(t, s)

	// callers cannot alias the stored slice
	got, _ := s.Strings("favorite-apps")
	got[0] = "mutated"
	again, _ := s.Strings("favorite-apps")
	assert.Equal(t, "org.gnome.Nautilus", again[0])
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "settings.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	// values survive a reopen
	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Strings("favorite-apps")
	require.NoError(t, err)
	assert.Equal(t, []string{"org.gnome.Nautilus"}, got)

	require.NoError(t, s.SetStrings("empty", nil))
	got, err = s.Strings("empty")
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)
}

package favorites

import (
	"testing"

	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalog map[host.AppID]bool

func (c catalog) Has(app host.AppID) bool { return c[app] }

type countingStorage struct {
	*settings.Memory
	reads int
}

func (c *countingStorage) Strings(key string) ([]string, error) {
	c.reads++
	return c.Memory.Strings(key)
}

func TestListIsCachedUntilInvalidated(t *testing.T) {
	storage := &countingStorage{Memory: settings.NewMemory()}
	require.NoError(t, storage.SetStrings(Key, []string{"a", "b", "a", ""}))

	changed := 0
	s := New(storage, nil, true, func() { changed++ })

	assert.Equal(t, []host.AppID{"a", "b"}, s.List())
	assert.Equal(t, []host.AppID{"a", "b"}, s.List())
	assert.Equal(t, 1, storage.reads)

	// an external writer changes the list; the cache hides it until invalidated
	require.NoError(t, storage.SetStrings(Key, []string{"c"}))
	assert.Equal(t, []host.AppID{"a", "b"}, s.List())

	s.Invalidate()
	assert.Equal(t, 1, changed)
	assert.Equal(t, []host.AppID{"c"}, s.List())
	assert.Equal(t, 2, storage.reads)
}

func TestCatalogFiltersUninstalled(t *testing.T) {
	storage := settings.NewMemory()
	require.NoError(t, storage.SetStrings(Key, []string{"firefox", "gone", "gimp"}))

	s := New(storage, catalog{"firefox": true, "gimp": true}, true, nil)
	assert.Equal(t, []host.AppID{"firefox", "gimp"}, s.List())
	assert.True(t, s.Contains("gimp"))
	assert.False(t, s.Contains("gone"))
}

func TestDisabledStoreReturnsNil(t *testing.T) {
	storage := settings.NewMemory()
	require.NoError(t, storage.SetStrings(Key, []string{"a"}))

	s := New(storage, nil, false, nil)
	assert.Nil(t, s.List())
	assert.False(t, s.Enabled())
}

func TestMoveWritesThroughAndDropsCache(t *testing.T) {
	storage := settings.NewMemory()
	require.NoError(t, storage.SetStrings(Key, []string{"a", "b", "c"}))
	s := New(storage, nil, true, nil)
	assert.Equal(t, []host.AppID{"a", "b", "c"}, s.List())

	require.NoError(t, s.Move("c", 0))
	stored, _ := storage.Strings(Key)
	assert.Equal(t, []string{"c", "a", "b"}, stored)
	assert.Equal(t, []host.AppID{"c", "a", "b"}, s.List())

	require.NoError(t, s.Move("c", 99))
	assert.Equal(t, []host.AppID{"a", "b", "c"}, s.List())

	assert.Error(t, s.Move("zzz", 0))
}

func TestPinUnpin(t *testing.T) {
	storage := settings.NewMemory()
	s := New(storage, nil, true, nil)

	require.NoError(t, s.Pin("a"))
	require.NoError(t, s.Pin("b"))
	require.NoError(t, s.Pin("a"))
	assert.Equal(t, []host.AppID{"a", "b"}, s.List())

	require.NoError(t, s.Unpin("a"))
	require.NoError(t, s.Unpin("missing"))
	assert.Equal(t, []host.AppID{"b"}, s.List())

	assert.Error(t, s.Pin(""))
}

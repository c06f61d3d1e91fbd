package dbusapi

import (
	"context"
	"encoding/xml"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/taskstrip/internal/host/memhost"
	"github.com/bryanchriswhite/taskstrip/internal/scheduler"
	"github.com/bryanchriswhite/taskstrip/internal/settings"
	"github.com/bryanchriswhite/taskstrip/internal/taskbar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	mu      sync.Mutex
	signals []string
	alls    []bool
}

func (e *emitted) emit(name string, values ...any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signals = append(e.signals, name)
	e.alls = append(e.alls, values[0].(bool))
	return nil
}

func (e *emitted) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.signals)
}

func newTestTaskbar(t *testing.T) (*Taskbar, *memhost.Host, *emitted, *scheduler.Loop) {
	t.Helper()
	h := memhost.New(1)
	loop := scheduler.New()
	svc := taskbar.NewService(loop, h, settings.NewMemory(), nil, taskbar.Options{
		NotifyDelay:      5 * time.Millisecond,
		FavoritesEnabled: true,
	})
	rec := &emitted{}
	tb := newTaskbar(loop, svc, rec.emit)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return tb, h, rec, loop
}

func TestDetachedCallsFail(t *testing.T) {
	tb, _, _, _ := newTestTaskbar(t)

	_, err := tb.GetApplications(false)
	require.NotNil(t, err)
	assert.Equal(t, "org.freedesktop.DBus.Error.Failed", err.Name)
}

func TestMethodsAndChangedSignal(t *testing.T) {
	tb, h, rec, loop := newTestTaskbar(t)
	require.NoError(t, loop.Call(context.Background(), tb.attach))

	require.Eventually(t, func() bool { return rec.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, changedSignal, rec.signals[0])
	assert.True(t, rec.alls[0], "first pass covers everything")
	rec.mu.Unlock()

	require.NoError(t, loop.Call(context.Background(), func() {
		h.StartApp("editor", memhost.Window{ID: 5}, memhost.Window{ID: 6, SkipTaskbar: true})
	}))
	require.Eventually(t, func() bool {
		wins, err := tb.GetWindows("", false)
		return err == nil && len(wins) == 1
	}, 2*time.Second, 5*time.Millisecond)

	apps, derr := tb.GetApplications(false)
	require.Nil(t, derr)
	assert.Equal(t, []string{"editor"}, apps)

	wins, derr := tb.GetWindows("editor", true)
	require.Nil(t, derr)
	assert.Equal(t, []uint32{5}, wins)
	wins, derr = tb.GetWindows("nothing", false)
	require.Nil(t, derr)
	assert.Empty(t, wins)

	require.Nil(t, tb.Pin("browser"))
	require.Nil(t, tb.Pin("editor"))
	require.Nil(t, tb.MoveFavorite("editor", 0))
	favs, derr := tb.GetFavorites()
	require.Nil(t, derr)
	assert.Equal(t, []string{"editor", "browser"}, favs)

	apps, derr = tb.GetApplications(false)
	require.Nil(t, derr)
	assert.Equal(t, []string{"editor", "browser"}, apps)

	before := rec.count()
	require.Nil(t, tb.Unpin("browser"))
	assert.NotNil(t, tb.MoveFavorite("browser", 1))
	assert.NotNil(t, tb.Pin(""))

	require.Eventually(t, func() bool { return rec.count() > before }, 2*time.Second, 5*time.Millisecond,
		"favorites edits are announced")

	require.NoError(t, loop.Call(context.Background(), tb.detach))
	_, derr = tb.GetFavorites()
	assert.NotNil(t, derr)
}

func TestIntrospectionNode(t *testing.T) {
	out, err := xml.Marshal(node())
	require.NoError(t, err)

	doc := string(out)
	for _, name := range []string{
		Interface, "GetApplications", "GetWindows", "GetFavorites",
		"Pin", "Unpin", "MoveFavorite", "Changed", "org.freedesktop.DBus.Introspectable",
	} {
		assert.Contains(t, doc, name)
	}
}

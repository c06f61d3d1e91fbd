package taskbar

import (
	"testing"
	"time"

	"github.com/bryanchriswhite/taskstrip/internal/favorites"
	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/host/memhost"
	"github.com/bryanchriswhite/taskstrip/internal/scheduler"
	"github.com/bryanchriswhite/taskstrip/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delay = 100 * time.Millisecond

type harness struct {
	host    *memhost.Host
	loop    *scheduler.Loop
	clock   *scheduler.ManualClock
	storage *settings.Memory
	svc     *Service
}

func newHarness(workspaces int) *harness {
	clock := scheduler.NewManualClock(time.Unix(1700000000, 0))
	h := &harness{
		host:    memhost.New(workspaces),
		loop:    scheduler.New(scheduler.WithClock(clock)),
		clock:   clock,
		storage: settings.NewMemory(),
	}
	h.svc = NewService(h.loop, h.host, h.storage, nil, Options{
		NotifyDelay:      delay,
		FavoritesEnabled: true,
	})
	return h
}

// settle advances past the debounce window and drains the loop.
func (h *harness) settle() {
	h.loop.Flush()
	h.clock.Advance(delay)
	h.loop.Flush()
}

type changes struct {
	got []Change
}

func (c *changes) record(ch Change) { c.got = append(c.got, ch) }

func TestAttachRunsInitialPass(t *testing.T) {
	h := newHarness(1)
	h.host.StartApp("a", memhost.Window{ID: 1})

	var seen changes
	c := h.svc.Attach("", seen.record)
	assert.True(t, h.svc.Running())
	assert.Equal(t, uint64(1), c.ID())

	h.loop.Flush()
	require.Len(t, seen.got, 1)
	assert.True(t, seen.got[0].All)
	assert.Equal(t, 1, h.svc.Notifier().Passes())

	h.clock.Advance(delay)
	h.loop.Flush()
	assert.Len(t, seen.got, 1, "the initial dirty mark is covered by the full pass")
}

func TestBijectionAcrossMutations(t *testing.T) {
	h := newHarness(2)
	c := h.svc.Attach("", nil)
	defer c.Detach()

	check := func() {
		t.Helper()
		require.NoError(t, h.svc.Index().Check())
		for _, app := range h.svc.Index().Applications() {
			for _, win := range h.svc.Index().WindowsOf(app) {
				got, ok := h.svc.Index().ApplicationOf(win)
				require.True(t, ok)
				require.Equal(t, app, got)
			}
		}
	}

	h.host.StartApp("a", memhost.Window{ID: 1}, memhost.Window{ID: 2})
	h.host.StartApp("b", memhost.Window{ID: 3, Workspace: 1})
	h.settle()
	check()

	h.host.RemoveWindow(1)
	h.host.AddWindow(memhost.Window{ID: 4, App: "b"})
	h.host.MoveWindow(2, 1)
	h.settle()
	check()

	h.host.SwitchWorkspace(1)
	h.host.StopApp("a")
	h.settle()
	check()
	assert.Equal(t, []host.AppID{"b"}, h.svc.Index().Applications())
}

func TestDebounceCoalesces(t *testing.T) {
	h := newHarness(1)
	for _, app := range []host.AppID{"a", "b", "c"} {
		h.host.SetAppState(app, host.AppRunning)
	}

	var seen changes
	h.svc.Attach("", seen.record)
	h.settle()
	seen.got = nil
	passes := h.svc.Notifier().Passes()

	h.host.AddWindow(memhost.Window{ID: 1, App: "a"})
	h.loop.Flush()
	h.clock.Advance(delay / 2)
	h.host.AddWindow(memhost.Window{ID: 2, App: "b"})
	h.host.AddWindow(memhost.Window{ID: 3, App: "a"})
	h.loop.Flush()
	h.clock.Advance(delay / 2)
	h.loop.Flush()
	assert.Empty(t, seen.got, "each mark re-arms the window")

	h.clock.Advance(delay / 2)
	h.loop.Flush()
	require.Len(t, seen.got, 1)
	assert.Equal(t, Change{Apps: []host.AppID{"a", "b"}}, seen.got[0])
	assert.Equal(t, passes+1, h.svc.Notifier().Passes())
	assert.False(t, h.svc.Notifier().Pending())
}

func TestAddRemoveRaceIsInvisible(t *testing.T) {
	h := newHarness(1)
	h.host.SetAppState("a", host.AppRunning)

	var seen changes
	c := h.svc.Attach("a", seen.record)
	h.settle()
	seen.got = nil

	h.host.AddWindow(memhost.Window{ID: 9, App: "a"})
	h.host.RemoveWindow(9)
	h.settle()

	assert.Nil(t, c.Windows(false, true))
	assert.Nil(t, c.Applications(false))
	assert.Empty(t, seen.got)
}

func TestWorkspaceSwitchSkipsDebounce(t *testing.T) {
	h := newHarness(2)
	h.host.SetAppState("a", host.AppRunning)

	var seen changes
	h.svc.Attach("", seen.record)
	h.settle()
	seen.got = nil

	// a normal pass is pending
	h.host.AddWindow(memhost.Window{ID: 1, App: "a"})
	h.loop.Flush()
	require.True(t, h.svc.Notifier().Pending())

	h.host.SwitchWorkspace(1)
	h.loop.Flush()
	require.Len(t, seen.got, 1, "fires without waiting out the delay")
	assert.True(t, seen.got[0].All)
	assert.False(t, h.svc.Notifier().Pending(), "the full pass absorbs the pending one")

	h.clock.Advance(delay)
	h.loop.Flush()
	assert.Len(t, seen.got, 1)
}

func TestAppLifecycleScenario(t *testing.T) {
	h := newHarness(1)

	var seen changes
	c := h.svc.Attach("a", seen.record)
	h.settle()
	seen.got = nil

	h.host.StartApp("a", memhost.Window{ID: 11}, memhost.Window{ID: 12})
	h.settle()
	require.Len(t, seen.got, 1)
	assert.True(t, seen.got[0].Has("a"))
	assert.Equal(t, []host.WindowID{11, 12}, c.Windows(false, false))
	assert.Equal(t, []host.AppID{"a"}, c.Applications(false))

	h.host.StopApp("a")
	h.settle()
	require.Len(t, seen.got, 2)
	assert.Empty(t, c.Windows(false, false))

	other := h.svc.Attach("", nil)
	assert.NotContains(t, other.Applications(false), host.AppID("a"))
}

func TestFilteredClientIgnoresOtherApps(t *testing.T) {
	h := newHarness(1)
	h.host.SetAppState("a", host.AppRunning)
	h.host.SetAppState("b", host.AppRunning)

	var seenA, seenAll changes
	h.svc.Attach("a", seenA.record)
	h.svc.Attach("", seenAll.record)
	h.settle()
	seenA.got, seenAll.got = nil, nil

	h.host.AddWindow(memhost.Window{ID: 1, App: "b"})
	h.settle()
	assert.Empty(t, seenA.got)
	assert.Len(t, seenAll.got, 1)
}

func TestPinnedAppWithoutWindows(t *testing.T) {
	h := newHarness(1)
	h.host.StartApp("running", memhost.Window{ID: 1})

	c := h.svc.Attach("", nil)
	h.settle()
	require.NoError(t, h.svc.Pin("pinned"))
	h.settle()

	assert.Equal(t, []host.AppID{"pinned", "running"}, c.Applications(false))
	assert.False(t, h.svc.Index().Has("pinned"))
	assert.Equal(t, []host.AppID{"pinned"}, c.Favorites())

	// pinning a running app moves it into the favorites block
	require.NoError(t, h.svc.Pin("running"))
	require.NoError(t, h.svc.MoveFavorite("running", 0))
	assert.Equal(t, []host.AppID{"running", "pinned"}, c.Applications(false))
}

func TestCurrentWorkspaceFilter(t *testing.T) {
	h := newHarness(2)
	h.host.StartApp("here", memhost.Window{ID: 1})
	h.host.StartApp("there", memhost.Window{ID: 2, Workspace: 1})
	h.host.StartApp("sticky", memhost.Window{ID: 3, Workspace: host.AllWorkspaces})
	h.host.StartApp("hidden", memhost.Window{ID: 4, SkipTaskbar: true})
	require.NoError(t, h.storage.SetStrings(favorites.Key, []string{"fav"}))

	c := h.svc.Attach("", nil)
	h.settle()

	assert.Equal(t, []host.AppID{"fav", "here", "there", "sticky", "hidden"}, c.Applications(false))
	assert.Equal(t, []host.AppID{"fav", "here", "sticky", "hidden"}, c.Applications(true))
	assert.Equal(t, []host.WindowID{1, 3}, c.Windows(true, false))
	assert.Equal(t, []host.WindowID{1, 3, 4}, c.Windows(true, true))
	assert.Equal(t, []host.WindowID{1, 2, 3}, c.Windows(false, false))
}

func TestExternalFavoritesChange(t *testing.T) {
	h := newHarness(1)
	var seen changes
	c := h.svc.Attach("", seen.record)
	h.settle()
	seen.got = nil

	require.NoError(t, h.storage.SetStrings(favorites.Key, []string{"x", "y"}))
	assert.Empty(t, c.Favorites(), "cached until the host says otherwise")

	h.host.EmitFavoritesChanged()
	assert.Equal(t, []host.AppID{"x", "y"}, c.Favorites())
	h.settle()
	require.Len(t, seen.got, 1)
	assert.True(t, seen.got[0].All)
}

func TestFavoritesWhileStopped(t *testing.T) {
	h := newHarness(1)
	require.NoError(t, h.svc.Pin("a"))
	require.NoError(t, h.svc.Pin("b"))
	assert.Equal(t, []host.AppID{"a", "b"}, h.svc.Favorites())
	assert.False(t, h.svc.Running())

	off := NewService(h.loop, h.host, h.storage, nil, Options{})
	assert.Nil(t, off.Favorites())
	assert.Error(t, off.Pin("c"))
}

func TestLastDetachTearsDown(t *testing.T) {
	h := newHarness(1)
	h.host.StartApp("a", memhost.Window{ID: 1})

	first := h.svc.Attach("", nil)
	second := h.svc.Attach("a", nil)
	h.settle()
	require.Equal(t, 1, h.svc.Index().Len())

	first.Detach()
	assert.True(t, h.svc.Running())
	second.Detach()
	second.Detach()

	assert.False(t, h.svc.Running())
	assert.Equal(t, 0, h.svc.Clients())
	assert.Nil(t, h.svc.Index())
	assert.Equal(t, 0, h.loop.Pending())
	assert.Equal(t, 0, h.host.Handlers(host.AppStateChanged))
	assert.Equal(t, 0, h.host.Handlers(host.FavoritesChanged))
	assert.Equal(t, 0, h.host.Workspace(0).Handlers(host.WindowAdded))

	// the prior lifetime left nothing behind
	h.host.StopApp("a")
	h.host.StartApp("b", memhost.Window{ID: 2})
	third := h.svc.Attach("", nil)
	h.settle()
	assert.Equal(t, []host.AppID{"b"}, h.svc.Index().Applications())
	assert.Equal(t, []host.WindowID{2}, third.Windows(false, true))
	require.NoError(t, h.svc.Index().Check())
}

func TestPanickingClientIsContained(t *testing.T) {
	h := newHarness(1)
	h.host.SetAppState("a", host.AppRunning)

	var seen changes
	h.svc.Attach("", func(Change) { panic("broken button") })
	h.svc.Attach("", seen.record)
	h.settle()
	seen.got = nil

	h.host.AddWindow(memhost.Window{ID: 1, App: "a"})
	h.settle()
	require.Len(t, seen.got, 1)
	assert.Equal(t, []host.AppID{"a"}, seen.got[0].Apps)
}

func TestDetachDuringCallback(t *testing.T) {
	h := newHarness(1)
	h.host.SetAppState("a", host.AppRunning)

	var self *Client
	calls := 0
	self = h.svc.Attach("", func(Change) {
		calls++
		self.Detach()
	})
	h.loop.Flush()

	assert.Equal(t, 1, calls)
	assert.False(t, h.svc.Running())
	assert.Equal(t, 0, h.loop.Pending())
}

func TestClientDetachedByEarlierCallbackIsSkipped(t *testing.T) {
	h := newHarness(1)
	h.host.SetAppState("a", host.AppRunning)

	var other *Client
	var first, second changes
	h.svc.Attach("", func(ch Change) {
		first.record(ch)
		if other != nil {
			other.Detach()
			other = nil
		}
	})
	other = h.svc.Attach("", second.record)
	h.loop.Flush()

	assert.Len(t, first.got, 1)
	assert.Empty(t, second.got)
	assert.Equal(t, 1, h.svc.Clients())
	assert.True(t, h.svc.Running())
}

func TestWindowClosedOffCurrentWorkspace(t *testing.T) {
	h := newHarness(2)
	h.host.StartApp("a", memhost.Window{ID: 1}, memhost.Window{ID: 2, Workspace: 1})

	var seen changes
	c := h.svc.Attach("", seen.record)
	h.settle()
	require.Equal(t, []host.WindowID{1, 2}, c.Windows(false, true))
	seen.got = nil

	h.host.RemoveWindow(2)
	h.settle()

	assert.Equal(t, []host.WindowID{1}, c.Windows(false, true))
	require.Len(t, seen.got, 1)
	assert.Equal(t, []host.AppID{"a"}, seen.got[0].Apps)
}

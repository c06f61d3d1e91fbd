// Package tracker maintains which windows belong to which application, on
// which workspace, from host events whose order and timing it does not
// control. Window events are resolved at a deferred point and re-validated
// there, so a burst of add/remove/add for the same window settles on what the
// host actually shows.
package tracker

import (
	"fmt"
	"sort"

	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/bryanchriswhite/taskstrip/internal/scheduler"
	"github.com/bryanchriswhite/taskstrip/internal/subscription"
	"github.com/rs/zerolog"
)

// Priority selects how soon a full notification pass runs.
type Priority int

const (
	// Normal waits out the debounce delay.
	Normal Priority = iota
	// High runs on the next idle slot.
	High
)

func (p Priority) String() string {
	if p == High {
		return "high"
	}
	return "normal"
}

// Notifier receives the index's dirty marks.
type Notifier interface {
	MarkDirty(app host.AppID)
	MarkAll(p Priority)
}

// WindowRecord is one tracked window.
type WindowRecord struct {
	Window    host.WindowID
	App       host.AppID
	Workspace int
}

type appEntry struct {
	windows map[host.WindowID]struct{}
	order   uint64
}

// windowOwner scopes deferred resolution jobs to one window.
type windowOwner struct {
	idx *Index
	win host.WindowID
}

func (o windowOwner) String() string { return fmt.Sprintf("window(%d)", o.win) }

// workspaceOwner holds the active workspace's hookups.
type workspaceOwner struct {
	idx *Index
}

func (workspaceOwner) String() string { return "active-workspace" }

// removalOwner holds WindowRemoved hookups on every workspace that has
// records, active or not.
type removalOwner struct {
	idx *Index
}

func (removalOwner) String() string { return "workspace-removals" }

// Index is the window/application state machine. It must only be used from
// the loop goroutine.
type Index struct {
	host   host.Host
	loop   *scheduler.Loop
	subs   *subscription.Registry
	notify Notifier
	log    *zerolog.Logger

	records  Arena[WindowRecord]
	byWindow map[host.WindowID]Key
	apps     map[host.AppID]*appEntry
	order    uint64
	pending  map[host.WindowID]struct{}
	watched  map[int]struct{}

	workspace host.Workspace
	previous  host.Workspace
	started   bool
}

func New(h host.Host, loop *scheduler.Loop, subs *subscription.Registry, notify Notifier) *Index {
	x := &Index{
		host:   h,
		loop:   loop,
		subs:   subs,
		notify: notify,
		log:    logger.WithComponent("tracker"),
	}
	x.reset()
	return x
}

func (x *Index) String() string { return "tracker" }

func (x *Index) reset() {
	x.records = Arena[WindowRecord]{}
	x.byWindow = make(map[host.WindowID]Key)
	x.apps = make(map[host.AppID]*appEntry)
	x.pending = make(map[host.WindowID]struct{})
	x.watched = make(map[int]struct{})
	x.workspace = nil
	x.previous = nil
}

// Start hooks the host, indexes every running application and requests a
// full notification pass.
func (x *Index) Start() {
	if x.started {
		return
	}
	x.started = true

	x.subs.Connect(x, x.host, host.AppStateChanged, x.onAppState)
	x.subs.Connect(x, x.host, host.WorkspaceSwitched, func(host.Event) { x.onWorkspaceSwitched() })

	x.attachWorkspace(x.host.ActiveWorkspace())
	for _, app := range x.host.RunningApps() {
		x.indexApp(app)
	}
	x.resync()

	x.log.Debug().
		Int("windows", x.Len()).
		Int("apps", len(x.apps)).
		Msg("Index started")
	x.notify.MarkAll(High)
}

// Stop disconnects every hookup, cancels every pending window job and
// forgets all state.
func (x *Index) Stop() {
	if !x.started {
		return
	}
	x.started = false

	x.subs.RemoveAll(x)
	x.subs.RemoveAll(workspaceOwner{x})
	x.subs.RemoveAll(removalOwner{x})
	for win := range x.pending {
		x.loop.RemoveAll(windowOwner{x, win})
	}
	x.reset()
	x.log.Debug().Msg("Index stopped")
}

func (x *Index) Started() bool { return x.started }

func (x *Index) onAppState(ev host.Event) {
	switch ev.State {
	case host.AppStarting:
		// no windows yet and no useful identity
	case host.AppRunning:
		x.indexApp(ev.App)
	default:
		x.removeApp(ev.App)
	}
}

func (x *Index) indexApp(app host.AppID) {
	if app == "" {
		return
	}
	if _, ok := x.apps[app]; ok {
		return
	}
	changed := false
	for _, win := range x.host.AppWindows(app) {
		ws, ok := host.Trackable(x.host, win)
		if !ok {
			continue
		}
		if x.insert(win, app, ws) {
			changed = true
		}
	}
	if !changed {
		x.log.Debug().Str("app", string(app)).Msg("Running app has no trackable windows yet")
		return
	}
	x.notify.MarkDirty(app)
}

func (x *Index) removeApp(app host.AppID) {
	entry, ok := x.apps[app]
	if !ok {
		return
	}
	wins := make([]host.WindowID, 0, len(entry.windows))
	for win := range entry.windows {
		wins = append(wins, win)
	}
	for _, win := range wins {
		x.remove(win)
	}
	x.notify.MarkDirty(app)
}

func (x *Index) attachWorkspace(ws host.Workspace) {
	owner := workspaceOwner{x}
	x.subs.RemoveAll(owner)

	x.previous = x.workspace
	x.workspace = ws
	if ws == nil {
		return
	}
	x.subs.Connect(owner, ws, host.WindowAdded, func(ev host.Event) { x.onWindowAdded(ev.Window) })
	x.subs.Connect(owner, ws, host.WindowRemoved, func(ev host.Event) { x.onWindowRemoved(ev.Window) })
}

func (x *Index) onWorkspaceSwitched() {
	ws := x.host.ActiveWorkspace()
	if x.workspace != nil && ws != nil && ws.Index() == x.workspace.Index() {
		x.log.Debug().Int("workspace", ws.Index()).Msg("Workspace unchanged, skipping resync")
		return
	}
	x.attachWorkspace(ws)
	x.resync()
	x.notify.MarkAll(High)
}

func (x *Index) onWindowAdded(win host.WindowID) {
	owner := x.schedule(win)
	x.loop.New(owner, scheduler.Idle).
		Then(func() error {
			x.resolveAdded(win)
			return nil
		}).
		Finally(func() { x.settled(win) })
}

func (x *Index) onWindowRemoved(win host.WindowID) {
	owner := x.schedule(win)
	key, ok := x.byWindow[win]
	if !ok {
		// never indexed: a pending add, if any, is dropped
		delete(x.pending, win)
		return
	}
	x.loop.New(owner, scheduler.Idle).
		Then(func() error {
			x.confirmRemoved(win, key)
			return nil
		}).
		Finally(func() { x.settled(win) })
}

// schedule cancels every job scoped to win and returns the owner key for a
// new one.
func (x *Index) schedule(win host.WindowID) windowOwner {
	owner := windowOwner{x, win}
	x.loop.RemoveAll(owner)
	x.pending[win] = struct{}{}
	return owner
}

func (x *Index) settled(win host.WindowID) {
	if x.loop.Jobs(windowOwner{x, win}) == 0 {
		delete(x.pending, win)
	}
}

func (x *Index) resolveAdded(win host.WindowID) {
	app, ok := x.host.ApplicationOf(win)
	if !ok {
		x.log.Debug().Uint32("window", uint32(win)).Msg("Window has no application, ignoring")
		x.drop(win)
		return
	}
	ws, ok := host.Trackable(x.host, win)
	if !ok {
		x.drop(win)
		return
	}
	if x.insert(win, app, ws) {
		x.notify.MarkDirty(app)
	}
}

func (x *Index) confirmRemoved(win host.WindowID, key Key) {
	rec, ok := x.records.Get(key)
	if !ok || x.byWindow[win] != key {
		return
	}
	if containsWindow(x.host.AppWindows(rec.App), win) {
		if ws, ok := host.Trackable(x.host, win); ok {
			// it came back, possibly on another workspace
			if x.insert(win, rec.App, ws) {
				x.notify.MarkDirty(rec.App)
			}
			return
		}
	}
	x.remove(win)
	x.notify.MarkDirty(rec.App)
}

// watchRemovals hooks WindowRemoved on workspace index so a record there is
// dropped even while another workspace is active. Sticky windows report
// removal on the active workspace.
func (x *Index) watchRemovals(index int) {
	if !x.started || index == host.AllWorkspaces {
		return
	}
	if _, ok := x.watched[index]; ok {
		return
	}
	ws := x.host.WorkspaceAt(index)
	if ws == nil {
		return
	}
	x.watched[index] = struct{}{}
	x.subs.Connect(removalOwner{x}, ws, host.WindowRemoved, func(ev host.Event) { x.onWindowRemoved(ev.Window) })
}

// resync validates every window on the active workspace and prunes indexed
// windows the host no longer shows.
func (x *Index) resync() {
	if x.workspace != nil {
		for _, win := range x.workspace.Windows() {
			x.validate(win)
		}
	}

	live := make(map[host.AppID][]host.WindowID)
	for _, rec := range x.Windows() {
		wins, ok := live[rec.App]
		if !ok {
			wins = x.host.AppWindows(rec.App)
			live[rec.App] = wins
		}
		if !containsWindow(wins, rec.Window) {
			x.drop(rec.Window)
			continue
		}
		if _, ok := host.Trackable(x.host, rec.Window); !ok {
			x.drop(rec.Window)
		}
	}
}

func (x *Index) validate(win host.WindowID) {
	app, ok := x.host.ApplicationOf(win)
	if !ok {
		x.drop(win)
		return
	}
	ws, ok := host.Trackable(x.host, win)
	if !ok {
		x.drop(win)
		return
	}
	if x.insert(win, app, ws) {
		x.notify.MarkDirty(app)
	}
}

// drop removes win if it is indexed and dirties its application.
func (x *Index) drop(win host.WindowID) {
	if app, ok := x.remove(win); ok {
		x.notify.MarkDirty(app)
	}
}

// insert records win under app. It returns whether anything changed. A
// window that moves between applications dirties the one it left.
func (x *Index) insert(win host.WindowID, app host.AppID, workspace int) bool {
	if key, ok := x.byWindow[win]; ok {
		rec := x.records.Ptr(key)
		if rec.App == app {
			if rec.Workspace == workspace {
				return false
			}
			rec.Workspace = workspace
			x.watchRemovals(workspace)
			return true
		}
		old := rec.App
		x.remove(win)
		x.notify.MarkDirty(old)
	}

	key := x.records.Insert(WindowRecord{Window: win, App: app, Workspace: workspace})
	x.byWindow[win] = key
	x.watchRemovals(workspace)

	entry, ok := x.apps[app]
	if !ok {
		x.order++
		entry = &appEntry{windows: make(map[host.WindowID]struct{}), order: x.order}
		x.apps[app] = entry
	}
	entry.windows[win] = struct{}{}
	return true
}

// remove deletes win from both maps, dropping its application entry when it
// was the last window. Absent windows are a no-op.
func (x *Index) remove(win host.WindowID) (host.AppID, bool) {
	key, ok := x.byWindow[win]
	if !ok {
		return "", false
	}
	rec, _ := x.records.Get(key)
	x.records.Remove(key)
	delete(x.byWindow, win)

	if entry, ok := x.apps[rec.App]; ok {
		delete(entry.windows, win)
		if len(entry.windows) == 0 {
			delete(x.apps, rec.App)
		}
	}
	return rec.App, true
}

// Workspace is the active workspace the index is attached to.
func (x *Index) Workspace() host.Workspace { return x.workspace }

// PreviousWorkspace is the workspace attached before the last switch.
func (x *Index) PreviousWorkspace() host.Workspace { return x.previous }

// Has reports whether app owns at least one tracked window.
func (x *Index) Has(app host.AppID) bool {
	_, ok := x.apps[app]
	return ok
}

// WindowsOf returns app's windows in ascending order, or nil.
func (x *Index) WindowsOf(app host.AppID) []host.WindowID {
	entry, ok := x.apps[app]
	if !ok {
		return nil
	}
	wins := make([]host.WindowID, 0, len(entry.windows))
	for win := range entry.windows {
		wins = append(wins, win)
	}
	sortWindows(wins)
	return wins
}

func (x *Index) ApplicationOf(win host.WindowID) (host.AppID, bool) {
	rec, ok := x.Record(win)
	return rec.App, ok
}

func (x *Index) Record(win host.WindowID) (WindowRecord, bool) {
	key, ok := x.byWindow[win]
	if !ok {
		return WindowRecord{}, false
	}
	return x.records.Get(key)
}

// Applications lists indexed applications in the order they were first indexed.
func (x *Index) Applications() []host.AppID {
	apps := make([]host.AppID, 0, len(x.apps))
	for app := range x.apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool {
		return x.apps[apps[i]].order < x.apps[apps[j]].order
	})
	return apps
}

// Windows lists every record ordered by window handle.
func (x *Index) Windows() []WindowRecord {
	recs := make([]WindowRecord, 0, len(x.byWindow))
	for _, key := range x.byWindow {
		rec, _ := x.records.Get(key)
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Window < recs[j].Window })
	return recs
}

func (x *Index) Len() int { return len(x.byWindow) }

// Check verifies that the window and application maps mirror each other.
func (x *Index) Check() error {
	if x.records.Len() != len(x.byWindow) {
		return fmt.Errorf("arena holds %d records, window map %d", x.records.Len(), len(x.byWindow))
	}
	n := 0
	for app, entry := range x.apps {
		if len(entry.windows) == 0 {
			return fmt.Errorf("app %q has an empty window set", app)
		}
		for win := range entry.windows {
			rec, ok := x.Record(win)
			if !ok {
				return fmt.Errorf("window %d of app %q missing from window map", win, app)
			}
			if rec.App != app {
				return fmt.Errorf("window %d listed under %q but maps to %q", win, app, rec.App)
			}
			n++
		}
	}
	if n != len(x.byWindow) {
		return fmt.Errorf("app map holds %d windows, window map %d", n, len(x.byWindow))
	}
	return nil
}

func containsWindow(wins []host.WindowID, win host.WindowID) bool {
	for _, w := range wins {
		if w == win {
			return true
		}
	}
	return false
}

func sortWindows(wins []host.WindowID) {
	sort.Slice(wins, func(i, j int) bool { return wins[i] < wins[j] })
}

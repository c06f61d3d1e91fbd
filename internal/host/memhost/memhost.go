// Package memhost is an in-memory host.Host. It emits synchronously on the
// caller's goroutine and is not safe for concurrent use; tests drive it from
// the same goroutine that flushes the engine loop.
package memhost

import (
	"sort"

	"github.com/bryanchriswhite/taskstrip/internal/host"
)

// Window describes a window to add.
type Window struct {
	ID          host.WindowID
	App         host.AppID
	Type        host.WindowType
	Workspace   int
	NoWorkspace bool
	SkipTaskbar bool
	// Unresolved hides the owning application until Resolve is called.
	Unresolved bool
}

type window struct {
	Window
}

type app struct {
	state host.AppState
}

// Host is the in-memory desktop.
type Host struct {
	host.Emitter

	workspaces []*Workspace
	active     int
	windows    map[host.WindowID]*window
	apps       map[host.AppID]*app
	appOrder   []host.AppID
}

var _ host.Host = (*Host)(nil)

// Workspace is one virtual desktop of a Host.
type Workspace struct {
	host.Emitter
	index int
	h     *Host
}

var _ host.Workspace = (*Workspace)(nil)

// New creates a host with n workspaces, the first one active.
func New(n int) *Host {
	if n < 1 {
		n = 1
	}
	h := &Host{
		windows: make(map[host.WindowID]*window),
		apps:    make(map[host.AppID]*app),
	}
	for i := 0; i < n; i++ {
		h.workspaces = append(h.workspaces, &Workspace{index: i, h: h})
	}
	return h
}

func (w *Workspace) Index() int { return w.index }

// Windows lists the windows on this workspace, sticky ones included.
func (w *Workspace) Windows() []host.WindowID {
	var ids []host.WindowID
	for id, win := range w.h.windows {
		if win.NoWorkspace {
			continue
		}
		if win.Workspace == w.index || win.Workspace == host.AllWorkspaces {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids
}

// Workspace returns workspace i.
func (h *Host) Workspace(i int) *Workspace {
	return h.workspaces[i]
}

func (h *Host) WorkspaceAt(i int) host.Workspace {
	if i < 0 || i >= len(h.workspaces) {
		return nil
	}
	return h.workspaces[i]
}

func (h *Host) ActiveWorkspace() host.Workspace {
	return h.workspaces[h.active]
}

func (h *Host) ApplicationOf(id host.WindowID) (host.AppID, bool) {
	win, ok := h.windows[id]
	if !ok || win.Unresolved || win.App == "" {
		return "", false
	}
	return win.App, true
}

func (h *Host) WindowType(id host.WindowID) host.WindowType {
	win, ok := h.windows[id]
	if !ok {
		return host.WindowUnknown
	}
	return win.Type
}

func (h *Host) WindowWorkspace(id host.WindowID) (int, bool) {
	win, ok := h.windows[id]
	if !ok || win.NoWorkspace {
		return 0, false
	}
	return win.Workspace, true
}

func (h *Host) SkipTaskbar(id host.WindowID) bool {
	win, ok := h.windows[id]
	return ok && win.SkipTaskbar
}

func (h *Host) AppWindows(id host.AppID) []host.WindowID {
	var ids []host.WindowID
	for wid, win := range h.windows {
		if win.App == id && !win.Unresolved {
			ids = append(ids, wid)
		}
	}
	sortIDs(ids)
	return ids
}

func (h *Host) AppState(id host.AppID) host.AppState {
	if a, ok := h.apps[id]; ok {
		return a.state
	}
	return host.AppStopped
}

func (h *Host) RunningApps() []host.AppID {
	var ids []host.AppID
	for _, id := range h.appOrder {
		if h.apps[id].state == host.AppRunning {
			ids = append(ids, id)
		}
	}
	return ids
}

// AddWindow registers a window and emits WindowAdded on its workspace.
// Sticky windows are announced on the active workspace.
func (h *Host) AddWindow(w Window) {
	if w.Type == host.WindowUnknown {
		w.Type = host.WindowNormal
	}
	h.windows[w.ID] = &window{Window: w}
	if ws := h.workspaceOf(w); ws != nil {
		ws.Emit(host.Event{Signal: host.WindowAdded, Window: w.ID})
	}
}

// RemoveWindow forgets a window and emits WindowRemoved on its workspace.
func (h *Host) RemoveWindow(id host.WindowID) {
	win, ok := h.windows[id]
	if !ok {
		return
	}
	delete(h.windows, id)
	if ws := h.workspaceOf(win.Window); ws != nil {
		ws.Emit(host.Event{Signal: host.WindowRemoved, Window: id})
	}
}

// MoveWindow moves a window between workspaces: removed on the old one,
// added on the new one.
func (h *Host) MoveWindow(id host.WindowID, workspace int) {
	win, ok := h.windows[id]
	if !ok {
		return
	}
	if old := h.workspaceOf(win.Window); old != nil {
		old.Emit(host.Event{Signal: host.WindowRemoved, Window: id})
	}
	win.Workspace = workspace
	win.NoWorkspace = false
	if ws := h.workspaceOf(win.Window); ws != nil {
		ws.Emit(host.Event{Signal: host.WindowAdded, Window: id})
	}
}

// Resolve makes an Unresolved window's application visible. It emits nothing.
func (h *Host) Resolve(id host.WindowID) {
	if win, ok := h.windows[id]; ok {
		win.Unresolved = false
	}
}

// SetAppState records and emits an application lifecycle change.
func (h *Host) SetAppState(id host.AppID, state host.AppState) {
	a, ok := h.apps[id]
	if !ok {
		a = &app{}
		h.apps[id] = a
		h.appOrder = append(h.appOrder, id)
	}
	a.state = state
	h.Emit(host.Event{Signal: host.AppStateChanged, App: id, State: state})
}

// StartApp walks id through Starting, adds its windows and reports Running.
func (h *Host) StartApp(id host.AppID, windows ...Window) {
	h.SetAppState(id, host.AppStarting)
	for _, w := range windows {
		w.App = id
		h.AddWindow(w)
	}
	h.SetAppState(id, host.AppRunning)
}

// StopApp removes every window of id and reports Stopped.
func (h *Host) StopApp(id host.AppID) {
	for _, wid := range h.AppWindows(id) {
		h.RemoveWindow(wid)
	}
	h.SetAppState(id, host.AppStopped)
}

// SwitchWorkspace activates workspace i and emits WorkspaceSwitched.
func (h *Host) SwitchWorkspace(i int) {
	h.active = i
	h.Emit(host.Event{Signal: host.WorkspaceSwitched})
}

func (h *Host) EmitFavoritesChanged() {
	h.Emit(host.Event{Signal: host.FavoritesChanged})
}

func (h *Host) EmitInstalledChanged() {
	h.Emit(host.Event{Signal: host.InstalledChanged})
}

func (h *Host) workspaceOf(w Window) *Workspace {
	if w.NoWorkspace {
		return nil
	}
	if w.Workspace == host.AllWorkspaces {
		return h.workspaces[h.active]
	}
	if w.Workspace < 0 || w.Workspace >= len(h.workspaces) {
		return nil
	}
	return h.workspaces[w.Workspace]
}

func sortIDs(ids []host.WindowID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

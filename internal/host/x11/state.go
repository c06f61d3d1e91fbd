package x11

import (
	"sort"

	"github.com/bryanchriswhite/taskstrip/internal/host"
)

// client is the cached view of one managed window.
type client struct {
	id        host.WindowID
	class     string
	app       host.AppID
	kind      host.WindowType
	desktop   int
	onDesktop bool
	skip      bool
}

type appEntry struct {
	windows map[host.WindowID]struct{}
	state   host.AppState
}

// state is the host's client cache. Its transitions emit host signals; it
// never talks to the X server, so the reader feeds it decoded clients.
type state struct {
	host.Emitter

	clients    map[host.WindowID]*client
	clientList windowSlice
	apps       map[host.AppID]*appEntry
	appOrder   []host.AppID
	workspaces map[int]*Workspace
	current    int
}

func newState() *state {
	return &state{
		clients:    make(map[host.WindowID]*client),
		apps:       make(map[host.AppID]*appEntry),
		workspaces: make(map[int]*Workspace),
	}
}

// Workspace is one EWMH desktop.
type Workspace struct {
	host.Emitter
	index int
	s     *state
}

var _ host.Workspace = (*Workspace)(nil)

func (w *Workspace) Index() int { return w.index }

func (w *Workspace) Windows() []host.WindowID {
	var ids []host.WindowID
	for id, c := range w.s.clients {
		if c.onDesktop && (c.desktop == w.index || c.desktop == host.AllWorkspaces) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *state) workspace(i int) *Workspace {
	ws, ok := s.workspaces[i]
	if !ok {
		ws = &Workspace{index: i, s: s}
		s.workspaces[i] = ws
	}
	return ws
}

func (s *state) emitOn(c *client, sig host.Signal) {
	if !c.onDesktop {
		return
	}
	i := c.desktop
	if i == host.AllWorkspaces {
		i = s.current
	}
	s.workspace(i).Emit(host.Event{Signal: sig, Window: c.id})
}

// add caches c. With emit, a first window reports its application running
// and the window is announced on its workspace.
func (s *state) add(c *client, emit bool) {
	if _, ok := s.clients[c.id]; ok {
		return
	}
	s.clients[c.id] = c
	s.attach(c, emit)
	if emit {
		s.emitOn(c, host.WindowAdded)
	}
}

// remove forgets a window; the last window of an application stops it.
func (s *state) remove(id host.WindowID) {
	c, ok := s.clients[id]
	if !ok {
		return
	}
	s.emitOn(c, host.WindowRemoved)
	delete(s.clients, id)
	s.detach(c)
}

// move re-homes a window: removed on the old workspace, added on the new one.
func (s *state) move(id host.WindowID, desktop int, onDesktop bool) {
	c, ok := s.clients[id]
	if !ok || (c.desktop == desktop && c.onDesktop == onDesktop) {
		return
	}
	s.emitOn(c, host.WindowRemoved)
	c.desktop = desktop
	c.onDesktop = onDesktop
	s.emitOn(c, host.WindowAdded)
}

// update replaces a window's identity, kind or taskbar state. Any change is
// announced as an add so the engine re-validates the window.
func (s *state) update(next *client) {
	c, ok := s.clients[next.id]
	if !ok {
		return
	}
	if c.app == next.app && c.kind == next.kind && c.skip == next.skip {
		return
	}
	if c.app != next.app {
		s.detach(c)
		c.class = next.class
		c.app = next.app
		s.attach(c, true)
	}
	c.kind = next.kind
	c.skip = next.skip
	s.emitOn(c, host.WindowAdded)
}

func (s *state) switchTo(desktop int) bool {
	if desktop == s.current {
		return false
	}
	s.current = desktop
	s.Emit(host.Event{Signal: host.WorkspaceSwitched})
	return true
}

func (s *state) attach(c *client, emit bool) {
	if c.app == "" {
		return
	}
	entry, ok := s.apps[c.app]
	if !ok {
		entry = &appEntry{windows: make(map[host.WindowID]struct{})}
		s.apps[c.app] = entry
		s.appOrder = append(s.appOrder, c.app)
	}
	entry.windows[c.id] = struct{}{}
	if entry.state != host.AppRunning {
		entry.state = host.AppRunning
		if emit {
			s.Emit(host.Event{Signal: host.AppStateChanged, App: c.app, State: host.AppRunning})
		}
	}
}

func (s *state) detach(c *client) {
	entry, ok := s.apps[c.app]
	if c.app == "" || !ok {
		return
	}
	delete(entry.windows, c.id)
	if len(entry.windows) > 0 {
		return
	}
	delete(s.apps, c.app)
	for i, id := range s.appOrder {
		if id == c.app {
			s.appOrder = append(s.appOrder[:i], s.appOrder[i+1:]...)
			break
		}
	}
	s.Emit(host.Event{Signal: host.AppStateChanged, App: c.app, State: host.AppStopped})
}

func (s *state) ActiveWorkspace() host.Workspace { return s.workspace(s.current) }

func (s *state) WorkspaceAt(i int) host.Workspace {
	if i < 0 {
		return nil
	}
	return s.workspace(i)
}

func (s *state) ApplicationOf(id host.WindowID) (host.AppID, bool) {
	c, ok := s.clients[id]
	if !ok || c.app == "" {
		return "", false
	}
	return c.app, true
}

func (s *state) WindowType(id host.WindowID) host.WindowType {
	if c, ok := s.clients[id]; ok {
		return c.kind
	}
	return host.WindowUnknown
}

func (s *state) WindowWorkspace(id host.WindowID) (int, bool) {
	c, ok := s.clients[id]
	if !ok || !c.onDesktop {
		return 0, false
	}
	return c.desktop, true
}

func (s *state) SkipTaskbar(id host.WindowID) bool {
	c, ok := s.clients[id]
	return ok && c.skip
}

func (s *state) AppWindows(app host.AppID) []host.WindowID {
	entry, ok := s.apps[app]
	if !ok {
		return nil
	}
	ids := make([]host.WindowID, 0, len(entry.windows))
	for id := range entry.windows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *state) AppState(app host.AppID) host.AppState {
	if entry, ok := s.apps[app]; ok {
		return entry.state
	}
	return host.AppStopped
}

func (s *state) RunningApps() []host.AppID {
	return append([]host.AppID(nil), s.appOrder...)
}

func (s *state) EmitFavoritesChanged() {
	s.Emit(host.Event{Signal: host.FavoritesChanged})
}

func (s *state) EmitInstalledChanged() {
	s.Emit(host.Event{Signal: host.InstalledChanged})
}

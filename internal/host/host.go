// Package host defines the contract between the tracking engine and the desktop
// environment it observes. A host delivers lifecycle signals in the order it saw
// them and answers synchronous queries about windows, workspaces and applications.
package host

import "fmt"

// WindowID is an opaque window handle. For the X11 host it is the client XID.
type WindowID uint32

// AppID is an opaque application handle. The empty AppID means "unresolved".
type AppID string

// AllWorkspaces is the workspace index reported for sticky windows.
const AllWorkspaces = -1

// WindowType is the host's window kind.
type WindowType int

const (
	WindowUnknown WindowType = iota
	WindowNormal
	WindowDialog
	WindowModalDialog
	WindowUtility
	WindowDesktop
	WindowDock
	WindowMenu
	WindowSplash
	WindowOverride
)

var windowTypeNames = [...]string{
	WindowUnknown:     "unknown",
	WindowNormal:      "normal",
	WindowDialog:      "dialog",
	WindowModalDialog: "modal-dialog",
	WindowUtility:     "utility",
	WindowDesktop:     "desktop",
	WindowDock:        "dock",
	WindowMenu:        "menu",
	WindowSplash:      "splash",
	WindowOverride:    "override",
}

func (t WindowType) String() string {
	if t < 0 || int(t) >= len(windowTypeNames) {
		return fmt.Sprintf("WindowType(%d)", int(t))
	}
	return windowTypeNames[t]
}

// Trackable reports whether windows of this kind belong on a taskbar.
func (t WindowType) Trackable() bool {
	switch t {
	case WindowNormal, WindowDialog, WindowModalDialog:
		return true
	}
	return false
}

// AppState is an application's lifecycle state as reported by the host.
type AppState int

const (
	AppStopped AppState = iota
	AppStarting
	AppRunning
	AppStopping
)

func (s AppState) String() string {
	switch s {
	case AppStopped:
		return "stopped"
	case AppStarting:
		return "starting"
	case AppRunning:
		return "running"
	case AppStopping:
		return "stopping"
	}
	return fmt.Sprintf("AppState(%d)", int(s))
}

// Signal names one of the host's event kinds.
type Signal int

const (
	// AppStateChanged carries App and State. Delivered by the Host.
	AppStateChanged Signal = iota
	// WorkspaceSwitched carries nothing; re-read ActiveWorkspace. Delivered by the Host.
	WorkspaceSwitched
	// WindowAdded carries Window. Delivered by a Workspace.
	WindowAdded
	// WindowRemoved carries Window. Delivered by a Workspace.
	WindowRemoved
	// FavoritesChanged carries nothing. Delivered by the Host.
	FavoritesChanged
	// InstalledChanged carries nothing. Delivered by the Host.
	InstalledChanged
)

func (s Signal) String() string {
	switch s {
	case AppStateChanged:
		return "app-state-changed"
	case WorkspaceSwitched:
		return "workspace-switched"
	case WindowAdded:
		return "window-added"
	case WindowRemoved:
		return "window-removed"
	case FavoritesChanged:
		return "favorites-changed"
	case InstalledChanged:
		return "installed-changed"
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

// Event is the payload delivered to a Handler.
type Event struct {
	Signal Signal
	Window WindowID
	App    AppID
	State  AppState
}

// Handler receives host events.
type Handler func(Event)

// HandlerID identifies one connected handler on a Source.
type HandlerID uint64

// Source is anything that delivers signals. Implementations must be comparable
// (pointer receivers) so they can key subscription bookkeeping.
type Source interface {
	Connect(sig Signal, fn Handler) HandlerID
	Disconnect(id HandlerID)
}

// Workspace delivers WindowAdded and WindowRemoved for windows on it.
type Workspace interface {
	Source
	Index() int
	Windows() []WindowID
}

// Host is the external window/workspace/application state source.
type Host interface {
	Source

	ActiveWorkspace() Workspace
	// WorkspaceAt returns workspace index, or nil when there is none.
	WorkspaceAt(index int) Workspace

	// ApplicationOf resolves the owning application. ok is false when the
	// window has no stable application identity (yet, or ever).
	ApplicationOf(win WindowID) (app AppID, ok bool)
	WindowType(win WindowID) WindowType
	// WindowWorkspace reports the window's workspace index, or AllWorkspaces
	// for sticky windows. ok is false when the host knows the window is on no
	// workspace. Hosts that cannot tell report workspace 0.
	WindowWorkspace(win WindowID) (index int, ok bool)
	// SkipTaskbar reports windows that asked to stay off taskbars.
	SkipTaskbar(win WindowID) bool

	AppWindows(app AppID) []WindowID
	AppState(app AppID) AppState
	RunningApps() []AppID
}

// Trackable applies the indexing predicate: a trackable window kind that sits
// on some workspace. It returns the workspace index when ok.
func Trackable(h Host, win WindowID) (workspace int, ok bool) {
	if !h.WindowType(win).Trackable() {
		return 0, false
	}
	return h.WindowWorkspace(win)
}

package x11

import (
	"sort"
	"strings"

	"github.com/BurntSushi/xgb"
	"github.com/bryanchriswhite/taskstrip/internal/host"
)

const stickyDesktop = 0xFFFFFFFF

type windowSlice []host.WindowID

func (s windowSlice) Len() int           { return len(s) }
func (s windowSlice) Less(i, j int) bool { return s[i] < s[j] }
func (s windowSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

func sortedWindows(ids []uint32) windowSlice {
	s := make(windowSlice, 0, len(ids))
	for _, id := range ids {
		s = append(s, host.WindowID(id))
	}
	sort.Sort(s)
	return s
}

// diffSortedWindowSlice compares two sorted client lists.
func diffSortedWindowSlice(a, b windowSlice) (add, remove windowSlice) {
	ia, ib := 0, 0
	for ia < len(a) && ib < len(b) {
		switch {
		case a[ia] == b[ib]:
			ia++
			ib++
		case a[ia] < b[ib]:
			remove = append(remove, a[ia])
			ia++
		default:
			add = append(add, b[ib])
			ib++
		}
	}
	remove = append(remove, a[ia:]...)
	add = append(add, b[ib:]...)
	return add, remove
}

// cardinals decodes a 32-bit format property value.
func cardinals(value []byte) []uint32 {
	out := make([]uint32, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		out = append(out, xgb.Get32(value[i:]))
	}
	return out
}

// parseWMClass returns the class part of WM_CLASS, falling back to the
// instance part.
func parseWMClass(raw string) string {
	parts := strings.Split(raw, "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	if len(parts) >= 1 {
		return parts[0]
	}
	return ""
}

// clientDesktop places a client from its _NET_WM_DESKTOP value. A client
// that never set the property cannot be told apart from one on the first
// desktop and is reported there.
func clientDesktop(v uint32, set bool) int {
	if !set {
		return 0
	}
	return desktopIndex(v)
}

// desktopIndex maps a _NET_WM_DESKTOP value to a workspace index.
func desktopIndex(v uint32) int {
	if v == stickyDesktop {
		return host.AllWorkspaces
	}
	return int(v)
}

var windowTypes = map[string]host.WindowType{
	"_NET_WM_WINDOW_TYPE_NORMAL":        host.WindowNormal,
	"_NET_WM_WINDOW_TYPE_DIALOG":        host.WindowDialog,
	"_NET_WM_WINDOW_TYPE_UTILITY":       host.WindowUtility,
	"_NET_WM_WINDOW_TYPE_TOOLBAR":       host.WindowUtility,
	"_NET_WM_WINDOW_TYPE_DESKTOP":       host.WindowDesktop,
	"_NET_WM_WINDOW_TYPE_DOCK":          host.WindowDock,
	"_NET_WM_WINDOW_TYPE_MENU":          host.WindowMenu,
	"_NET_WM_WINDOW_TYPE_DROPDOWN_MENU": host.WindowMenu,
	"_NET_WM_WINDOW_TYPE_POPUP_MENU":    host.WindowMenu,
	"_NET_WM_WINDOW_TYPE_SPLASH":        host.WindowSplash,
	"_NET_WM_WINDOW_TYPE_TOOLTIP":       host.WindowOverride,
	"_NET_WM_WINDOW_TYPE_NOTIFICATION":  host.WindowOverride,
	"_NET_WM_WINDOW_TYPE_COMBO":         host.WindowOverride,
	"_NET_WM_WINDOW_TYPE_DND":           host.WindowOverride,
}

// classify derives a window kind from _NET_WM_WINDOW_TYPE (first known entry
// wins) and _NET_WM_STATE. Untyped windows are normal, or dialogs when
// transient for another window.
func classify(types, states []string, transient bool) host.WindowType {
	kind := host.WindowUnknown
	for _, name := range types {
		if t, ok := windowTypes[name]; ok {
			kind = t
			break
		}
	}
	if kind == host.WindowUnknown {
		kind = host.WindowNormal
		if transient {
			kind = host.WindowDialog
		}
	}
	if kind == host.WindowDialog && hasString(states, "_NET_WM_STATE_MODAL") {
		kind = host.WindowModalDialog
	}
	return kind
}

func hasString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

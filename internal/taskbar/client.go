package taskbar

import (
	"github.com/bryanchriswhite/taskstrip/internal/host"
)

// Client is the handle a taskbar button holds. It reads snapshots of the
// index and receives change callbacks; it never mutates index state.
type Client struct {
	svc      *Service
	id       uint64
	filter   host.AppID
	callback func(Change)
	detached bool
}

// ID is unique per attach on a service.
func (c *Client) ID() uint64 { return c.id }

// Filter is the application this client is scoped to, or "".
func (c *Client) Filter() host.AppID { return c.filter }

// Detach unregisters the client. Detaching the last client tears the
// index down.
func (c *Client) Detach() {
	c.svc.Detach(c)
}

func (c *Client) wants(change Change) bool {
	if change.All {
		return true
	}
	if c.filter == "" {
		return len(change.Apps) > 0
	}
	return change.Has(c.filter)
}

// Windows returns the client's windows in ascending order, or nil when
// there are none. A filtered client only sees its application's windows.
func (c *Client) Windows(currentWorkspaceOnly, includeNonTaskbar bool) []host.WindowID {
	idx := c.svc.index
	if idx == nil {
		return nil
	}

	active := host.AllWorkspaces
	if ws := idx.Workspace(); ws != nil {
		active = ws.Index()
	}

	var wins []host.WindowID
	for _, rec := range idx.Windows() {
		if c.filter != "" && rec.App != c.filter {
			continue
		}
		if currentWorkspaceOnly && rec.Workspace != active && rec.Workspace != host.AllWorkspaces {
			continue
		}
		if !includeNonTaskbar && c.svc.host.SkipTaskbar(rec.Window) {
			continue
		}
		wins = append(wins, rec.Window)
	}
	return wins
}

// Applications returns favorites first, in pin order, then running
// applications in the order they were first indexed. With
// currentWorkspaceOnly, running applications without a window on the active
// workspace are left out; favorites always stay. A filtered client gets
// just its application, if it is listed at all.
func (c *Client) Applications(currentWorkspaceOnly bool) []host.AppID {
	idx := c.svc.index
	if idx == nil {
		return nil
	}

	var apps []host.AppID
	seen := make(map[host.AppID]bool)
	for _, app := range c.svc.favs.List() {
		if !seen[app] {
			seen[app] = true
			apps = append(apps, app)
		}
	}

	var onActive map[host.AppID]bool
	if currentWorkspaceOnly {
		onActive = c.svc.appsOnActiveWorkspace()
	}
	for _, app := range idx.Applications() {
		if seen[app] {
			continue
		}
		if onActive != nil && !onActive[app] {
			continue
		}
		seen[app] = true
		apps = append(apps, app)
	}

	if c.filter != "" {
		if seen[c.filter] {
			return []host.AppID{c.filter}
		}
		return nil
	}
	return apps
}

// Favorites returns the ordered pin list, or nil when favorites are off.
func (c *Client) Favorites() []host.AppID {
	return c.svc.Favorites()
}

package api

import (
	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/taskbar"
)

// Application is one taskbar entry.
type Application struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Favorite bool     `json:"favorite"`
	Running  bool     `json:"running"`
	Windows  []uint32 `json:"windows"`
}

// Window is one tracked window.
type Window struct {
	ID          uint32 `json:"id"`
	App         string `json:"app"`
	Workspace   int    `json:"workspace"`
	SkipTaskbar bool   `json:"skip_taskbar,omitempty"`
}

// Snapshot is what the stream pushes after every change.
type Snapshot struct {
	Workspace    int           `json:"workspace"`
	Applications []Application `json:"applications"`
	Change       *Change       `json:"change,omitempty"`
}

// Change mirrors taskbar.Change.
type Change struct {
	All  bool     `json:"all"`
	Apps []string `json:"apps,omitempty"`
}

func newChange(c taskbar.Change) *Change {
	out := &Change{All: c.All}
	for _, app := range c.Apps {
		out.Apps = append(out.Apps, string(app))
	}
	return out
}

// applications builds the entry list for c. Must run on the loop.
func (s *Server) applications(c *taskbar.Client, currentWorkspaceOnly bool) []Application {
	index := s.svc.Index()
	favorites := make(map[host.AppID]bool)
	for _, app := range c.Favorites() {
		favorites[app] = true
	}

	apps := make([]Application, 0)
	for _, id := range c.Applications(currentWorkspaceOnly) {
		entry := Application{
			ID:       string(id),
			Favorite: favorites[id],
			Windows:  []uint32{},
		}
		if s.names != nil {
			if e, ok := s.names.Lookup(id); ok {
				entry.Name = e.Name
			}
		}
		if index != nil {
			for _, win := range index.WindowsOf(id) {
				entry.Windows = append(entry.Windows, uint32(win))
			}
		}
		entry.Running = len(entry.Windows) > 0
		apps = append(apps, entry)
	}
	return apps
}

// windows lists c's windows. Must run on the loop.
func (s *Server) windows(c *taskbar.Client, currentWorkspaceOnly, includeNonTaskbar bool) []Window {
	index := s.svc.Index()
	out := make([]Window, 0)
	if index == nil {
		return out
	}
	for _, win := range c.Windows(currentWorkspaceOnly, includeNonTaskbar) {
		rec, ok := index.Record(win)
		if !ok {
			continue
		}
		out = append(out, Window{
			ID:          uint32(win),
			App:         string(rec.App),
			Workspace:   rec.Workspace,
			SkipTaskbar: s.svc.SkipTaskbar(win),
		})
	}
	return out
}

func (s *Server) snapshot(c *taskbar.Client) Snapshot {
	snap := Snapshot{Workspace: host.AllWorkspaces, Applications: s.applications(c, false)}
	if index := s.svc.Index(); index != nil && index.Workspace() != nil {
		snap.Workspace = index.Workspace().Index()
	}
	return snap
}

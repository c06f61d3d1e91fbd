// Package appinfo indexes the desktop entries of installed applications.
package appinfo

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultSettle is how long Watch waits for a burst of file events to end.
const DefaultSettle = 500 * time.Millisecond

// DefaultDirs lists the XDG applications directories, most specific first.
func DefaultDirs() []string {
	var dirs []string

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dataHome = filepath.Join(home, ".local", "share")
		}
	}
	if dataHome != "" {
		dirs = append(dirs, filepath.Join(dataHome, "applications"))
	}

	dataDirs := os.Getenv("XDG_DATA_DIRS")
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}
	for _, dir := range filepath.SplitList(dataDirs) {
		if dir != "" {
			dirs = append(dirs, filepath.Join(dir, "applications"))
		}
	}
	return dirs
}

// Catalog is safe for concurrent use.
type Catalog struct {
	dirs   []string
	settle time.Duration
	log    *zerolog.Logger

	mu      sync.RWMutex
	entries map[string]Entry
	classes map[string]string
}

// New builds a catalog over dirs (DefaultDirs when empty) and loads it.
func New(dirs ...string) *Catalog {
	if len(dirs) == 0 {
		dirs = DefaultDirs()
	}
	c := &Catalog{
		dirs:   dirs,
		settle: DefaultSettle,
		log:    logger.WithComponent("appinfo"),
	}
	c.Reload()
	return c
}

// Dirs returns the scanned directories.
func (c *Catalog) Dirs() []string {
	return append([]string(nil), c.dirs...)
}

// Has reports whether id is an installed application.
func (c *Catalog) Has(id host.AppID) bool {
	_, ok := c.Lookup(id)
	return ok
}

func (c *Catalog) Lookup(id host.AppID) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[string(id)]
	return e, ok
}

// Entries returns every entry ordered by id.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Len counts installed applications.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ResolveClass maps an X11 window class to an application id: an explicit
// StartupWMClass wins, then a desktop id equal to the normalized class.
func (c *Catalog) ResolveClass(class string) (host.AppID, bool) {
	if class == "" {
		return "", false
	}
	key := NormalizeID(class)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if id, ok := c.classes[key]; ok {
		return host.AppID(id), true
	}
	if _, ok := c.entries[key]; ok {
		return host.AppID(key), true
	}
	for id := range c.entries {
		if NormalizeID(id) == key {
			return host.AppID(id), true
		}
	}
	return "", false
}

// Reload rescans every directory. Earlier directories shadow later ones.
func (c *Catalog) Reload() {
	entries := make(map[string]Entry)
	classes := make(map[string]string)

	for _, dir := range c.dirs {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if path == dir {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !IsDesktopFile(path) {
				return nil
			}
			id := DesktopID(dir, path)
			if _, shadowed := entries[id]; shadowed {
				return nil
			}
			e, ok, err := parseFile(path)
			if err != nil {
				c.log.Debug().Err(err).Str("path", path).Msg("Skipping unreadable desktop file")
				return nil
			}
			if !ok {
				// a hidden entry still masks the same id further down
				entries[id] = Entry{}
				return nil
			}
			e.ID = id
			e.Path = path
			entries[id] = e
			if e.StartupWMClass != "" {
				if _, taken := classes[NormalizeID(e.StartupWMClass)]; !taken {
					classes[NormalizeID(e.StartupWMClass)] = id
				}
			}
			return nil
		})
		if err != nil {
			c.log.Debug().Err(err).Str("dir", dir).Msg("Failed to scan applications directory")
		}
	}
	for id, e := range entries {
		if e.ID == "" {
			delete(entries, id)
		}
	}

	c.mu.Lock()
	c.entries = entries
	c.classes = classes
	c.mu.Unlock()

	c.log.Debug().Int("applications", len(entries)).Msg("Catalog loaded")
}

// Watch reloads the catalog when desktop files change, calling onChange
// once per burst of events. It blocks until ctx is done.
func (c *Catalog) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched := 0
	for _, dir := range c.dirs {
		if err := watcher.Add(dir); err != nil {
			c.log.Debug().Err(err).Str("dir", dir).Msg("Not watching applications directory")
			continue
		}
		watched++
	}
	c.log.Info().Int("dirs", watched).Msg("Watching applications directories")

	timer := time.NewTimer(c.settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !IsDesktopFile(ev.Name) && !strings.HasSuffix(ev.Name, "mimeinfo.cache") {
				continue
			}
			c.log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("Desktop file changed")
			timer.Reset(c.settle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Warn().Err(err).Msg("Applications watcher error")

		case <-timer.C:
			c.Reload()
			if onChange != nil {
				onChange()
			}
		}
	}
}

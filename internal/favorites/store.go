// Package favorites keeps the ordered list of pinned applications.
package favorites

import (
	"fmt"

	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/bryanchriswhite/taskstrip/internal/settings"
	"github.com/rs/zerolog"
)

// Key is the settings key holding the pin list.
const Key = "favorite-apps"

// Catalog reports which applications are installed.
type Catalog interface {
	Has(app host.AppID) bool
}

// Store caches the pin list read from settings until it is invalidated.
type Store struct {
	storage   settings.Store
	catalog   Catalog
	enabled   bool
	onChanged func()
	log       *zerolog.Logger

	cache []host.AppID
	valid bool
}

// New builds a store. catalog may be nil to accept every id. onChanged
// runs once per Invalidate.
func New(storage settings.Store, catalog Catalog, enabled bool, onChanged func()) *Store {
	return &Store{
		storage:   storage,
		catalog:   catalog,
		enabled:   enabled,
		onChanged: onChanged,
		log:       logger.WithComponent("favorites"),
	}
}

func (s *Store) Enabled() bool { return s.enabled }

// List returns the ordered pin list, or nil when favorites are disabled.
func (s *Store) List() []host.AppID {
	if !s.enabled {
		return nil
	}
	if !s.valid {
		s.cache = s.load()
		s.valid = true
	}
	return append([]host.AppID{}, s.cache...)
}

// Contains reports whether app is pinned.
func (s *Store) Contains(app host.AppID) bool {
	for _, id := range s.List() {
		if id == app {
			return true
		}
	}
	return false
}

// Invalidate drops the cache and tells the owner to re-render.
func (s *Store) Invalidate() {
	s.cache = nil
	s.valid = false
	if s.onChanged != nil {
		s.onChanged()
	}
}

// Move places app at position pos (clamped) and writes the new order.
func (s *Store) Move(app host.AppID, pos int) error {
	ids, err := s.raw()
	if err != nil {
		return err
	}
	from := indexOf(ids, string(app))
	if from < 0 {
		return fmt.Errorf("application %q is not a favorite", app)
	}
	ids = append(ids[:from], ids[from+1:]...)
	if pos < 0 {
		pos = 0
	}
	if pos > len(ids) {
		pos = len(ids)
	}
	ids = append(ids[:pos], append([]string{string(app)}, ids[pos:]...)...)
	return s.write(ids)
}

// Pin appends app to the list. Pinning a favorite again is a no-op.
func (s *Store) Pin(app host.AppID) error {
	if app == "" {
		return fmt.Errorf("empty application id")
	}
	ids, err := s.raw()
	if err != nil {
		return err
	}
	if indexOf(ids, string(app)) >= 0 {
		return nil
	}
	return s.write(append(ids, string(app)))
}

// Unpin removes app from the list.
func (s *Store) Unpin(app host.AppID) error {
	ids, err := s.raw()
	if err != nil {
		return err
	}
	i := indexOf(ids, string(app))
	if i < 0 {
		return nil
	}
	return s.write(append(ids[:i], ids[i+1:]...))
}

func (s *Store) raw() ([]string, error) {
	ids, err := s.storage.Strings(Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read favorites: %w", err)
	}
	return ids, nil
}

// write stores ids and drops the local cache; no local order is kept.
func (s *Store) write(ids []string) error {
	if err := s.storage.SetStrings(Key, ids); err != nil {
		return fmt.Errorf("failed to write favorites: %w", err)
	}
	s.cache = nil
	s.valid = false
	s.log.Debug().Strs("favorites", ids).Msg("Favorites written")
	return nil
}

func (s *Store) load() []host.AppID {
	ids, err := s.raw()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load favorites")
		return nil
	}

	seen := make(map[string]bool, len(ids))
	list := make([]host.AppID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if s.catalog != nil && !s.catalog.Has(host.AppID(id)) {
			s.log.Debug().Str("app", id).Msg("Favorite not installed, skipping")
			continue
		}
		list = append(list, host.AppID(id))
	}
	return list
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// Package taskbar is the engine's composition root: it owns the index,
// favorites store and notifier for as long as at least one client is
// attached, and hands clients the facade they query through.
package taskbar

import (
	"fmt"
	"time"

	"github.com/bryanchriswhite/taskstrip/internal/favorites"
	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/bryanchriswhite/taskstrip/internal/scheduler"
	"github.com/bryanchriswhite/taskstrip/internal/settings"
	"github.com/bryanchriswhite/taskstrip/internal/subscription"
	"github.com/bryanchriswhite/taskstrip/internal/tracker"
	"github.com/rs/zerolog"
)

// DefaultNotifyDelay is the debounce window for normal-priority passes.
const DefaultNotifyDelay = 100 * time.Millisecond

// Options tune a Service.
type Options struct {
	NotifyDelay      time.Duration
	FavoritesEnabled bool
}

// Service reference-counts its clients. Every method must be called from
// the loop goroutine.
type Service struct {
	loop    *scheduler.Loop
	host    host.Host
	storage settings.Store
	catalog favorites.Catalog
	opts    Options
	log     *zerolog.Logger

	clients []*Client
	nextID  uint64

	subs     *subscription.Registry
	index    *tracker.Index
	favs     *favorites.Store
	notifier *Notifier
}

// NewService wires a service. catalog may be nil.
func NewService(loop *scheduler.Loop, h host.Host, storage settings.Store, catalog favorites.Catalog, opts Options) *Service {
	if opts.NotifyDelay <= 0 {
		opts.NotifyDelay = DefaultNotifyDelay
	}
	if storage == nil {
		storage = settings.NewMemory()
	}
	return &Service{
		loop:    loop,
		host:    h,
		storage: storage,
		catalog: catalog,
		opts:    opts,
		log:     logger.WithComponent("taskbar"),
	}
}

func (s *Service) String() string { return "taskbar" }

// Attach registers a client, optionally scoped to one application. The
// first attach builds the index.
func (s *Service) Attach(filter host.AppID, callback func(Change)) *Client {
	s.nextID++
	c := &Client{svc: s, id: s.nextID, filter: filter, callback: callback}
	s.clients = append(s.clients, c)
	s.log.Debug().
		Uint64("client", c.id).
		Str("filter", string(filter)).
		Int("clients", len(s.clients)).
		Msg("Client attached")

	if len(s.clients) == 1 {
		s.start()
	}
	return c
}

// Detach unregisters c. The last detach tears the index down. Unknown or
// already detached clients are ignored.
func (s *Service) Detach(c *Client) {
	for i, other := range s.clients {
		if other != c {
			continue
		}
		s.clients = append(s.clients[:i], s.clients[i+1:]...)
		c.detached = true
		s.log.Debug().
			Uint64("client", c.id).
			Int("clients", len(s.clients)).
			Msg("Client detached")
		if len(s.clients) == 0 {
			s.stop()
		}
		return
	}
}

// Clients counts attached clients.
func (s *Service) Clients() int { return len(s.clients) }

// Running reports whether the index is built.
func (s *Service) Running() bool { return s.index != nil }

// Index exposes the live index for read-only inspection, nil when stopped.
func (s *Service) Index() *tracker.Index { return s.index }

// Notifier exposes the live notifier, nil when stopped.
func (s *Service) Notifier() *Notifier { return s.notifier }

// SkipTaskbar reports windows the host keeps off taskbars.
func (s *Service) SkipTaskbar(win host.WindowID) bool {
	return s.host.SkipTaskbar(win)
}

// Favorites returns the ordered pin list, or nil when favorites are off.
func (s *Service) Favorites() []host.AppID {
	return s.favorites().List()
}

// Pin adds app to the favorites.
func (s *Service) Pin(app host.AppID) error {
	return s.editFavorites(func(f *favorites.Store) error { return f.Pin(app) })
}

// Unpin removes app from the favorites.
func (s *Service) Unpin(app host.AppID) error {
	return s.editFavorites(func(f *favorites.Store) error { return f.Unpin(app) })
}

// MoveFavorite reorders app to position pos.
func (s *Service) MoveFavorite(app host.AppID, pos int) error {
	return s.editFavorites(func(f *favorites.Store) error { return f.Move(app, pos) })
}

func (s *Service) editFavorites(fn func(*favorites.Store) error) error {
	f := s.favorites()
	if !f.Enabled() {
		return fmt.Errorf("favorites are disabled")
	}
	if err := fn(f); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.MarkAll(tracker.Normal)
	}
	return nil
}

// favorites returns the live store, or a throwaway one while stopped.
func (s *Service) favorites() *favorites.Store {
	if s.favs != nil {
		return s.favs
	}
	return favorites.New(s.storage, s.catalog, s.opts.FavoritesEnabled, nil)
}

func (s *Service) snapshot() []*Client {
	return append([]*Client(nil), s.clients...)
}

func (s *Service) appsOnActiveWorkspace() map[host.AppID]bool {
	active := host.AllWorkspaces
	if ws := s.index.Workspace(); ws != nil {
		active = ws.Index()
	}
	apps := make(map[host.AppID]bool)
	for _, rec := range s.index.Windows() {
		if rec.Workspace == active || rec.Workspace == host.AllWorkspaces {
			apps[rec.App] = true
		}
	}
	return apps
}

func (s *Service) start() {
	s.subs = subscription.NewRegistry()
	s.notifier = newNotifier(s.loop, s.opts.NotifyDelay, s.snapshot)
	notifier := s.notifier
	s.favs = favorites.New(s.storage, s.catalog, s.opts.FavoritesEnabled, func() {
		notifier.MarkAll(tracker.Normal)
	})

	favs := s.favs
	invalidate := func(host.Event) { favs.Invalidate() }
	s.subs.Connect(s, s.host, host.FavoritesChanged, invalidate)
	s.subs.Connect(s, s.host, host.InstalledChanged, invalidate)

	s.index = tracker.New(s.host, s.loop, s.subs, s.notifier)
	s.index.Start()
	s.log.Info().
		Int("windows", s.index.Len()).
		Int("favorites", len(s.favs.List())).
		Msg("Taskbar index started")
}

func (s *Service) stop() {
	steps := []struct {
		name string
		fn   func()
	}{
		{"index", func() { s.index.Stop() }},
		{"subscriptions", func() { s.subs.RemoveAll(s) }},
		{"notifier", func() { s.notifier.stop() }},
	}
	for _, step := range steps {
		s.teardown(step.name, step.fn)
	}
	s.index = nil
	s.favs = nil
	s.notifier = nil
	s.subs = nil
	s.log.Info().Msg("Taskbar index stopped")
}

func (s *Service) teardown(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("step", name).
				Str("panic", fmt.Sprint(r)).
				Msg("Teardown step failed")
		}
	}()
	fn()
}

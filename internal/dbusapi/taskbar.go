// Package dbusapi exports the taskbar model on the session bus.
package dbusapi

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/bryanchriswhite/taskstrip/internal/scheduler"
	"github.com/bryanchriswhite/taskstrip/internal/taskbar"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog"
)

// Bus coordinates
const (
	ServiceName                 = "io.github.taskstrip.Taskbar"
	Interface                   = "io.github.taskstrip.Taskbar"
	ObjectPath  dbus.ObjectPath = "/io/github/taskstrip/Taskbar"

	changedSignal = Interface + ".Changed"
)

// callTimeout bounds how long a bus call waits for the engine loop.
const callTimeout = 5 * time.Second

// Taskbar is the exported object. Every method hops onto the engine loop.
type Taskbar struct {
	loop *scheduler.Loop
	svc  *taskbar.Service
	emit func(name string, values ...any) error
	log  *zerolog.Logger

	// client is touched on the loop goroutine only
	client *taskbar.Client
}

func newTaskbar(loop *scheduler.Loop, svc *taskbar.Service, emit func(string, ...any) error) *Taskbar {
	return &Taskbar{
		loop: loop,
		svc:  svc,
		emit: emit,
		log:  logger.WithComponent("dbus"),
	}
}

// GetApplications returns the taskbar entries in display order.
func (t *Taskbar) GetApplications(currentOnly bool) ([]string, *dbus.Error) {
	var apps []string
	err := t.call(func(c *taskbar.Client) error {
		apps = ids(c.Applications(currentOnly))
		return nil
	})
	return apps, err
}

// GetWindows returns the windows of app, or of every application when app
// is empty.
func (t *Taskbar) GetWindows(app string, currentOnly bool) ([]uint32, *dbus.Error) {
	wins := []uint32{}
	err := t.call(func(c *taskbar.Client) error {
		if app != "" {
			scoped := t.svc.Attach(host.AppID(app), nil)
			defer scoped.Detach()
			c = scoped
		}
		for _, w := range c.Windows(currentOnly, false) {
			wins = append(wins, uint32(w))
		}
		return nil
	})
	return wins, err
}

func (t *Taskbar) GetFavorites() ([]string, *dbus.Error) {
	var favs []string
	err := t.call(func(c *taskbar.Client) error {
		favs = ids(c.Favorites())
		return nil
	})
	return favs, err
}

func (t *Taskbar) Pin(app string) *dbus.Error {
	return t.call(func(*taskbar.Client) error { return t.svc.Pin(host.AppID(app)) })
}

func (t *Taskbar) Unpin(app string) *dbus.Error {
	return t.call(func(*taskbar.Client) error { return t.svc.Unpin(host.AppID(app)) })
}

func (t *Taskbar) MoveFavorite(app string, position int32) *dbus.Error {
	return t.call(func(*taskbar.Client) error {
		return t.svc.MoveFavorite(host.AppID(app), int(position))
	})
}

func (t *Taskbar) call(fn func(c *taskbar.Client) error) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var err error
	if cerr := t.loop.Call(ctx, func() {
		if t.client == nil {
			err = fmt.Errorf("taskbar is not attached")
			return
		}
		err = fn(t.client)
	}); cerr != nil {
		return dbus.MakeFailedError(cerr)
	}
	if err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// attach registers the bus client. Must run on the loop.
func (t *Taskbar) attach() {
	if t.client != nil {
		return
	}
	t.client = t.svc.Attach("", t.changed)
}

// detach drops the bus client. Must run on the loop.
func (t *Taskbar) detach() {
	if t.client == nil {
		return
	}
	t.client.Detach()
	t.client = nil
}

func (t *Taskbar) changed(change taskbar.Change) {
	if err := t.emit(changedSignal, change.All, ids(change.Apps)); err != nil {
		t.log.Warn().Err(err).Msg("Failed to emit Changed")
	}
}

func ids(apps []host.AppID) []string {
	out := make([]string, 0, len(apps))
	for _, app := range apps {
		out = append(out, string(app))
	}
	return out
}

// node describes the exported interface for introspection.
func node() *introspect.Node {
	str := func(name, dir string) introspect.Arg { return introspect.Arg{Name: name, Type: "s", Direction: dir} }
	boolean := func(name, dir string) introspect.Arg { return introspect.Arg{Name: name, Type: "b", Direction: dir} }

	return &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: Interface,
				Methods: []introspect.Method{
					{Name: "GetApplications", Args: []introspect.Arg{
						boolean("currentOnly", "in"),
						{Name: "apps", Type: "as", Direction: "out"},
					}},
					{Name: "GetWindows", Args: []introspect.Arg{
						str("app", "in"),
						boolean("currentOnly", "in"),
						{Name: "windows", Type: "au", Direction: "out"},
					}},
					{Name: "GetFavorites", Args: []introspect.Arg{
						{Name: "apps", Type: "as", Direction: "out"},
					}},
					{Name: "Pin", Args: []introspect.Arg{str("app", "in")}},
					{Name: "Unpin", Args: []introspect.Arg{str("app", "in")}},
					{Name: "MoveFavorite", Args: []introspect.Arg{
						str("app", "in"),
						{Name: "position", Type: "i", Direction: "in"},
					}},
				},
				Signals: []introspect.Signal{
					{Name: "Changed", Args: []introspect.Arg{
						{Name: "all", Type: "b"},
						{Name: "apps", Type: "as"},
					}},
				},
			},
		},
	}
}

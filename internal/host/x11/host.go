// Package x11 is the EWMH host. A reader goroutine receives X events and
// posts their handling onto the engine loop, so the cached client state and
// every emitted signal live on the loop goroutine.
package x11

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/bryanchriswhite/taskstrip/internal/scheduler"
	"github.com/rs/zerolog"
)

// Resolver maps a WM_CLASS class to an installed application id.
type Resolver interface {
	ResolveClass(class string) (host.AppID, bool)
}

var atomNames = []string{
	"_NET_CLIENT_LIST",
	"_NET_CURRENT_DESKTOP",
	"_NET_WM_DESKTOP",
	"_NET_WM_WINDOW_TYPE",
	"_NET_WM_STATE",
	"_NET_WM_STATE_MODAL",
	"_NET_WM_STATE_SKIP_TASKBAR",
	"WM_CLASS",
	"WM_TRANSIENT_FOR",
}

// Host is safe to query only from the loop goroutine.
type Host struct {
	*state

	conn     *xgb.Conn
	root     xproto.Window
	loop     *scheduler.Loop
	resolver Resolver
	log      *zerolog.Logger

	atoms map[string]xproto.Atom
	names map[xproto.Atom]string

	closeOnce sync.Once
}

var _ host.Host = (*Host)(nil)

// Open connects to the X server named by $DISPLAY and reads the current
// client list. resolver may be nil.
func Open(loop *scheduler.Loop, resolver Resolver) (*Host, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	h := &Host{
		state:    newState(),
		conn:     conn,
		root:     xproto.Setup(conn).DefaultScreen(conn).Root,
		loop:     loop,
		resolver: resolver,
		log:      logger.WithComponent("x11-host"),
		atoms:    make(map[string]xproto.Atom),
		names:    make(map[xproto.Atom]string),
	}
	if err := h.internAtoms(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := h.selectProperties(h.root); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set event mask: %w", err)
	}

	if v, ok := h.cardinal(h.root, "_NET_CURRENT_DESKTOP"); ok {
		h.current = int(v)
	}
	h.clientList = h.readClientList()
	for _, win := range h.clientList {
		h.add(h.readClient(win), false)
	}

	h.log.Info().
		Int("clients", len(h.clientList)).
		Int("apps", len(h.appOrder)).
		Int("desktop", h.current).
		Msg("Connected to X server")
	return h, nil
}

// Close disconnects from the X server. It may be called more than once.
func (h *Host) Close() error {
	h.closeOnce.Do(h.conn.Close)
	return nil
}

// Run reads X events until ctx is done or the connection closes.
func (h *Host) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		h.Close()
	}()

	for {
		ev, xerr := h.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("X connection closed")
		}
		if xerr != nil {
			h.log.Debug().Str("error", xerr.Error()).Msg("X protocol error")
			continue
		}
		if prop, ok := ev.(xproto.PropertyNotifyEvent); ok {
			h.loop.Post(func() { h.handleProperty(prop) })
		}
	}
}

func (h *Host) handleProperty(ev xproto.PropertyNotifyEvent) {
	name := h.names[ev.Atom]
	if ev.Window == h.root {
		switch name {
		case "_NET_CLIENT_LIST":
			h.refreshClientList()
		case "_NET_CURRENT_DESKTOP":
			if v, ok := h.cardinal(h.root, name); ok && h.switchTo(int(v)) {
				h.log.Debug().Uint32("desktop", v).Msg("Desktop switched")
			}
		}
		return
	}

	win := host.WindowID(ev.Window)
	if _, tracked := h.clients[win]; !tracked {
		return
	}
	switch name {
	case "_NET_WM_DESKTOP":
		h.move(win, h.desktop(ev.Window), true)
	case "_NET_WM_STATE", "_NET_WM_WINDOW_TYPE", "WM_CLASS":
		h.update(h.readClient(win))
	}
}

func (h *Host) refreshClientList() {
	list := h.readClientList()
	add, remove := diffSortedWindowSlice(h.clientList, list)
	h.clientList = list

	for _, win := range remove {
		h.log.Debug().Uint32("window", uint32(win)).Msg("Client list remove")
		h.remove(win)
	}
	for _, win := range add {
		h.log.Debug().Uint32("window", uint32(win)).Msg("Client list add")
		if err := h.selectProperties(xproto.Window(win)); err != nil {
			h.log.Debug().Err(err).Uint32("window", uint32(win)).Msg("Failed to watch client")
		}
		h.add(h.readClient(win), true)
	}
}

func (h *Host) readClient(win host.WindowID) *client {
	xw := xproto.Window(win)
	c := &client{id: win}

	if raw, ok := h.property(xw, "WM_CLASS"); ok {
		c.class = parseWMClass(string(raw))
	}
	c.app = h.resolve(c.class)

	states := h.atomList(xw, "_NET_WM_STATE")
	_, transient := h.property(xw, "WM_TRANSIENT_FOR")
	c.kind = classify(h.atomList(xw, "_NET_WM_WINDOW_TYPE"), states, transient)
	c.skip = hasString(states, "_NET_WM_STATE_SKIP_TASKBAR")
	c.desktop = h.desktop(xw)
	c.onDesktop = true
	return c
}

func (h *Host) resolve(class string) host.AppID {
	if class == "" {
		return ""
	}
	if h.resolver != nil {
		if id, ok := h.resolver.ResolveClass(class); ok {
			return id
		}
	}
	return host.AppID(strings.ToLower(class))
}

// desktop reads _NET_WM_DESKTOP. Every listed client is on some desktop.
func (h *Host) desktop(win xproto.Window) int {
	return clientDesktop(h.cardinal(win, "_NET_WM_DESKTOP"))
}

func (h *Host) readClientList() windowSlice {
	raw, ok := h.property(h.root, "_NET_CLIENT_LIST")
	if !ok {
		return nil
	}
	return sortedWindows(cardinals(raw))
}

func (h *Host) internAtoms() error {
	for _, name := range atomNames {
		reply, err := xproto.InternAtom(h.conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			return fmt.Errorf("failed to intern %s: %w", name, err)
		}
		h.atoms[name] = reply.Atom
		h.names[reply.Atom] = name
	}
	return nil
}

// atomName resolves atoms outside the interned set, caching the answer.
func (h *Host) atomName(atom xproto.Atom) string {
	if name, ok := h.names[atom]; ok {
		return name
	}
	reply, err := xproto.GetAtomName(h.conn, atom).Reply()
	if err != nil {
		return ""
	}
	h.names[atom] = reply.Name
	return reply.Name
}

func (h *Host) selectProperties(win xproto.Window) error {
	return xproto.ChangeWindowAttributesChecked(
		h.conn,
		win,
		xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange},
	).Check()
}

func (h *Host) property(win xproto.Window, name string) ([]byte, bool) {
	reply, err := xproto.GetProperty(
		h.conn,
		false,
		win,
		h.atoms[name],
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil || reply.ValueLen == 0 {
		return nil, false
	}
	return reply.Value, true
}

func (h *Host) cardinal(win xproto.Window, name string) (uint32, bool) {
	raw, ok := h.property(win, name)
	if !ok || len(raw) < 4 {
		return 0, false
	}
	return xgb.Get32(raw), true
}

func (h *Host) atomList(win xproto.Window, name string) []string {
	raw, ok := h.property(win, name)
	if !ok {
		return nil
	}
	var names []string
	for _, v := range cardinals(raw) {
		if n := h.atomName(xproto.Atom(v)); n != "" {
			names = append(names, n)
		}
	}
	return names
}

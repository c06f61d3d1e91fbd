package taskbar

import (
	"fmt"
	"sort"
	"time"

	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/bryanchriswhite/taskstrip/internal/scheduler"
	"github.com/bryanchriswhite/taskstrip/internal/tracker"
	"github.com/rs/zerolog"
)

// Change is the hint passed to client callbacks. Clients re-query rather
// than trust it.
type Change struct {
	// All marks a full resync: every client is notified.
	All bool
	// Apps lists the applications whose windows changed, sorted.
	Apps []host.AppID
}

// Has reports whether app is covered by the change.
func (c Change) Has(app host.AppID) bool {
	if c.All {
		return true
	}
	for _, a := range c.Apps {
		if a == app {
			return true
		}
	}
	return false
}

// Notifier accumulates dirty applications and runs coalesced notification
// passes over the service's clients.
type Notifier struct {
	loop     *scheduler.Loop
	clients  func() []*Client
	log      *zerolog.Logger
	debounce *scheduler.Job
	urgent   *scheduler.Job

	dirty  map[host.AppID]struct{}
	all    bool
	passes int
}

var _ tracker.Notifier = (*Notifier)(nil)

func newNotifier(loop *scheduler.Loop, delay time.Duration, clients func() []*Client) *Notifier {
	n := &Notifier{
		loop:    loop,
		clients: clients,
		log:     logger.WithComponent("notifier"),
		dirty:   make(map[host.AppID]struct{}),
	}
	n.debounce = loop.Prepare(n, scheduler.After(delay))
	n.urgent = loop.Prepare(n, scheduler.Idle)
	return n
}

func (n *Notifier) String() string { return "notifier" }

// MarkDirty records app and re-arms the debounce window.
func (n *Notifier) MarkDirty(app host.AppID) {
	n.dirty[app] = struct{}{}
	n.debounce.Reset().Then(n.pass)
}

// MarkAll requests a full pass. High priority bypasses the debounce delay.
func (n *Notifier) MarkAll(p tracker.Priority) {
	n.all = true
	if p == tracker.High {
		if n.urgent.State() != scheduler.StateScheduled {
			n.urgent.Reset().Then(n.pass)
		}
		return
	}
	n.debounce.Reset().Then(n.pass)
}

// Passes counts the non-empty passes run so far.
func (n *Notifier) Passes() int { return n.passes }

// Pending reports whether a pass is armed.
func (n *Notifier) Pending() bool {
	return n.debounce.State() == scheduler.StateScheduled ||
		n.urgent.State() == scheduler.StateScheduled
}

func (n *Notifier) stop() {
	n.loop.RemoveAll(n)
	n.dirty = make(map[host.AppID]struct{})
	n.all = false
}

func (n *Notifier) pass() error {
	// whichever job did not fire is covered by this pass
	n.debounce.Destroy(nil)
	n.urgent.Destroy(nil)

	change := Change{All: n.all}
	for app := range n.dirty {
		change.Apps = append(change.Apps, app)
	}
	sort.Slice(change.Apps, func(i, j int) bool { return change.Apps[i] < change.Apps[j] })
	n.dirty = make(map[host.AppID]struct{})
	n.all = false

	if !change.All && len(change.Apps) == 0 {
		return nil
	}

	notified := 0
	for _, c := range n.clients() {
		// an earlier callback in this pass may have detached c
		if c.detached || !c.wants(change) {
			continue
		}
		notified++
		n.deliver(c, change)
	}

	n.passes++
	n.log.Debug().
		Bool("all", change.All).
		Int("apps", len(change.Apps)).
		Int("notified", notified).
		Msg("Notification pass")
	return nil
}

func (n *Notifier) deliver(c *Client, change Change) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error().
				Uint64("client", c.id).
				Str("filter", string(c.filter)).
				Str("panic", fmt.Sprint(r)).
				Msg("Client callback failed")
		}
	}()
	if c.callback != nil {
		c.callback(change)
	}
}

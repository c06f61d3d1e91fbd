// Package subscription tracks which owner connected which handler to which
// source, so tearing an owner down detaches every hookup it made.
package subscription

import (
	"fmt"

	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/rs/zerolog"
)

type hookup struct {
	source host.Source
	signal host.Signal
	id     host.HandlerID
}

// Registry maps owners to their hookups. Like the rest of the engine it is
// used from the loop goroutine only.
type Registry struct {
	owners map[any][]hookup
	log    *zerolog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		owners: make(map[any][]hookup),
		log:    logger.WithComponent("subscription"),
	}
}

// Connect hooks fn to sig on source on behalf of owner. A second hookup of
// the same (owner, source, signal) is refused and Connect returns false.
func (r *Registry) Connect(owner any, source host.Source, sig host.Signal, fn host.Handler) bool {
	for _, h := range r.owners[owner] {
		if h.source == source && h.signal == sig {
			r.log.Debug().
				Str("owner", fmt.Sprint(owner)).
				Stringer("signal", sig).
				Msg("Duplicate hookup refused")
			return false
		}
	}
	id := source.Connect(sig, fn)
	r.owners[owner] = append(r.owners[owner], hookup{source: source, signal: sig, id: id})
	return true
}

// RemoveAll disconnects every hookup owner made. A failing disconnect is
// logged and the remaining hookups are still torn down.
func (r *Registry) RemoveAll(owner any) {
	hookups := r.owners[owner]
	delete(r.owners, owner)

	for _, h := range hookups {
		r.disconnect(owner, h)
	}
}

func (r *Registry) disconnect(owner any, h hookup) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn().
				Str("owner", fmt.Sprint(owner)).
				Stringer("signal", h.signal).
				Interface("panic", rec).
				Msg("Disconnect failed")
		}
	}()
	h.source.Disconnect(h.id)
}

// Count reports how many hookups owner holds.
func (r *Registry) Count(owner any) int {
	return len(r.owners[owner])
}

// Owners reports how many owners hold at least one hookup.
func (r *Registry) Owners() int {
	return len(r.owners)
}

package host

import "sort"

// Emitter is a Source implementation hosts embed. It is not safe for concurrent
// use; hosts call Emit from the engine loop.
type Emitter struct {
	next     HandlerID
	handlers map[HandlerID]connection
}

type connection struct {
	sig Signal
	fn  Handler
}

// Connect installs fn for sig. Handlers run in connect order.
func (e *Emitter) Connect(sig Signal, fn Handler) HandlerID {
	if e.handlers == nil {
		e.handlers = make(map[HandlerID]connection)
	}
	e.next++
	e.handlers[e.next] = connection{sig: sig, fn: fn}
	return e.next
}

// Disconnect removes a handler. Unknown ids are ignored.
func (e *Emitter) Disconnect(id HandlerID) {
	delete(e.handlers, id)
}

// Handlers counts the handlers connected to sig.
func (e *Emitter) Handlers(sig Signal) int {
	n := 0
	for _, c := range e.handlers {
		if c.sig == sig {
			n++
		}
	}
	return n
}

// Emit delivers ev to every handler connected to ev.Signal. A handler
// disconnected by an earlier handler during the same emission is skipped.
func (e *Emitter) Emit(ev Event) {
	ids := make([]HandlerID, 0, len(e.handlers))
	for id, c := range e.handlers {
		if c.sig == ev.Signal {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		c, ok := e.handlers[id]
		if !ok {
			continue
		}
		c.fn(ev)
	}
}

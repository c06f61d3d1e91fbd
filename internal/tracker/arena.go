package tracker

// Key addresses a slot in an Arena. The zero Key is never live.
type Key struct {
	slot uint32
	gen  uint32
}

type slot[T any] struct {
	gen   uint32
	used  bool
	value T
}

// Arena is a generational slot map. Freed slots are reused with a bumped
// generation so a Key held across a deferred boundary can tell whether its
// slot still holds the same value.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	n     int
}

func (a *Arena[T]) Insert(v T) Key {
	a.n++
	if len(a.free) > 0 {
		i := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		s := &a.slots[i]
		s.gen++
		s.used = true
		s.value = v
		return Key{slot: i, gen: s.gen}
	}
	a.slots = append(a.slots, slot[T]{gen: 1, used: true, value: v})
	return Key{slot: uint32(len(a.slots) - 1), gen: 1}
}

// Ptr returns the value at k, or nil when k is stale.
func (a *Arena[T]) Ptr(k Key) *T {
	if int(k.slot) >= len(a.slots) {
		return nil
	}
	s := &a.slots[k.slot]
	if !s.used || s.gen != k.gen {
		return nil
	}
	return &s.value
}

func (a *Arena[T]) Get(k Key) (T, bool) {
	if p := a.Ptr(k); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Remove frees k's slot. Stale keys are a no-op.
func (a *Arena[T]) Remove(k Key) bool {
	if a.Ptr(k) == nil {
		return false
	}
	s := &a.slots[k.slot]
	var zero T
	s.used = false
	s.value = zero
	a.free = append(a.free, k.slot)
	a.n--
	return true
}

func (a *Arena[T]) Len() int {
	return a.n
}

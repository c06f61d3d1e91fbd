// Package scheduler is a single-goroutine cooperative event loop with
// owner-scoped, cancellable deferred jobs.
//
// Everything that mutates engine state runs on the loop: jobs fire there and
// foreign goroutines hand work to it with Post or Call. Nothing on the loop
// blocks; the only suspension points are the deferred boundaries of jobs.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/rs/zerolog"
)

// Loop runs posted functions and fires armed jobs.
type Loop struct {
	clock Clock
	log   *zerolog.Logger

	mu     sync.Mutex
	posted []func()
	redraw []entry
	idle   []entry
	timers timerHeap
	owners map[any]map[*Job]struct{}
	seq    uint64

	// idle jobs armed while an idle job runs wait for the next Flush
	idleNext   []entry
	firingIdle bool

	wake chan struct{}
}

type entry struct {
	job *Job
	gen uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the wall clock, typically with a ManualClock.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

func New(opts ...Option) *Loop {
	l := &Loop{
		clock:  realClock{},
		log:    logger.WithComponent("scheduler"),
		owners: make(map[any]map[*Job]struct{}),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// New creates a job for owner and arms it. owner must be comparable.
func (l *Loop) New(owner any, delay Delay) *Job {
	j := l.Prepare(owner, delay)
	l.mu.Lock()
	l.armLocked(j)
	l.mu.Unlock()
	return j
}

// Prepare creates an unarmed job for owner; Reset arms it.
func (l *Loop) Prepare(owner any, delay Delay) *Job {
	return &Job{loop: l, owner: owner, delay: delay, state: StateIdle}
}

// RemoveAll cancels every armed job owned by owner.
func (l *Loop) RemoveAll(owner any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for j := range l.owners[owner] {
		j.gen++
		j.state = StateCancelled
		j.steps = nil
		j.onDestroy = nil
	}
	delete(l.owners, owner)
}

// Jobs counts the armed jobs owned by owner.
func (l *Loop) Jobs(owner any) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.owners[owner])
}

// Pending counts every armed job.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, jobs := range l.owners {
		n += len(jobs)
	}
	return n
}

// Post queues fn to run on the loop. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	l.signal()
}

// Call runs fn on the loop and waits for it to return. It must not be called
// from the loop goroutine itself while Run is driving the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush runs everything that is ready at the current clock instant and
// returns how many functions and jobs it ran. An idle job armed by a running
// idle job is left for the next Flush.
func (l *Loop) Flush() int {
	l.mu.Lock()
	l.idle = append(l.idle, l.idleNext...)
	l.idleNext = nil
	l.mu.Unlock()

	n := 0
	for {
		fn, j, steps, destroy, ok := l.next()
		if !ok {
			return n
		}
		n++
		if fn != nil {
			if err := protect(func() error { fn(); return nil }); err != nil {
				l.log.Error().Err(err).Msg("Posted function failed")
			}
			continue
		}
		l.fire(j, steps, destroy)
	}
}

// Run drives the loop until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Debug().Msg("Event loop started")
	defer l.log.Debug().Msg("Event loop stopped")

	for {
		l.Flush()

		var timerC <-chan time.Time
		var timer *time.Timer
		if wait, ok := l.NextDue(); ok {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-l.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// NextDue reports how long until the earliest armed timer is due.
func (l *Loop) NextDue() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.timers.Len() > 0 {
		top := l.timers[0]
		if top.job.gen != top.gen || top.job.state != StateScheduled {
			heap.Pop(&l.timers)
			continue
		}
		wait := top.due.Sub(l.clock.Now())
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}
	return 0, false
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) armLocked(j *Job) {
	j.gen++
	j.state = StateScheduled

	jobs, ok := l.owners[j.owner]
	if !ok {
		jobs = make(map[*Job]struct{})
		l.owners[j.owner] = jobs
	}
	jobs[j] = struct{}{}

	e := entry{job: j, gen: j.gen}
	switch j.delay.class {
	case classRedraw:
		l.redraw = append(l.redraw, e)
	case classIdle:
		if l.firingIdle {
			l.idleNext = append(l.idleNext, e)
		} else {
			l.idle = append(l.idle, e)
		}
	default:
		l.seq++
		heap.Push(&l.timers, timerEntry{
			entry: e,
			due:   l.clock.Now().Add(j.delay.d),
			seq:   l.seq,
		})
	}
	l.signal()
}

func (l *Loop) cancelLocked(j *Job) {
	j.gen++
	j.state = StateCancelled
	j.steps = nil
	j.onDestroy = nil
	l.releaseLocked(j)
}

func (l *Loop) releaseLocked(j *Job) {
	jobs := l.owners[j.owner]
	delete(jobs, j)
	if len(jobs) == 0 {
		delete(l.owners, j.owner)
	}
}

func (e entry) live() bool {
	return e.job.gen == e.gen && e.job.state == StateScheduled
}

// next pops the next unit of work: posted functions first, then redraw
// jobs, then due timers, then a single idle job.
func (l *Loop) next() (fn func(), j *Job, steps []step, destroy func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.firingIdle = false

	if len(l.posted) > 0 {
		fn = l.posted[0]
		l.posted[0] = nil
		l.posted = l.posted[1:]
		return fn, nil, nil, nil, true
	}

	if e, found := popLive(&l.redraw); found {
		steps, destroy = l.takeLocked(e.job)
		return nil, e.job, steps, destroy, true
	}

	now := l.clock.Now()
	for l.timers.Len() > 0 {
		top := l.timers[0]
		if !top.live() {
			heap.Pop(&l.timers)
			continue
		}
		if top.due.After(now) {
			break
		}
		heap.Pop(&l.timers)
		steps, destroy = l.takeLocked(top.job)
		return nil, top.job, steps, destroy, true
	}

	if e, found := popLive(&l.idle); found {
		l.firingIdle = true
		steps, destroy = l.takeLocked(e.job)
		return nil, e.job, steps, destroy, true
	}
	return nil, nil, nil, nil, false
}

func popLive(q *[]entry) (entry, bool) {
	for len(*q) > 0 {
		e := (*q)[0]
		(*q)[0] = entry{}
		*q = (*q)[1:]
		if e.live() {
			return e, true
		}
	}
	return entry{}, false
}

func (l *Loop) takeLocked(j *Job) ([]step, func()) {
	steps := j.steps
	destroy := j.onDestroy
	j.steps = nil
	j.onDestroy = nil
	if destroy != nil {
		j.gen++
		j.state = StateCancelled
	} else {
		j.state = StateFired
	}
	l.releaseLocked(j)
	return steps, destroy
}

func (l *Loop) fire(j *Job, steps []step, destroy func()) {
	var err error
	for _, s := range steps {
		switch s.kind {
		case stepThen:
			if err == nil {
				err = protect(s.then)
			}
		case stepCatch:
			if err != nil {
				cause := err
				err = protect(func() error { return s.catch(cause) })
			}
		case stepFinally:
			if ferr := protect(func() error { s.finally(); return nil }); ferr != nil {
				l.log.Warn().Err(ferr).Str("owner", fmt.Sprint(j.owner)).Msg("Job finally step failed")
			}
		}
	}
	if err != nil {
		l.log.Warn().Err(err).
			Str("owner", fmt.Sprint(j.owner)).
			Str("delay", j.delay.String()).
			Msg("Job failed")
	}
	if destroy != nil {
		if derr := protect(func() error { destroy(); return nil }); derr != nil {
			l.log.Warn().Err(derr).Str("owner", fmt.Sprint(j.owner)).Msg("Job destroy callback failed")
		}
	}
}

// protect runs fn, converting a panic into an error.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

type timerEntry struct {
	entry
	due time.Time
	seq uint64
}

type timerHeap []timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

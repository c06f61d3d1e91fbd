package scheduler

import "fmt"

// State is a job's lifecycle position.
type State int

const (
	// StateIdle: created but not armed.
	StateIdle State = iota
	// StateScheduled: armed and waiting for its deferred point.
	StateScheduled
	// StateFired: its deferred point was reached and its chain ran.
	StateFired
	// StateCancelled: cancelled by Destroy or its owner's RemoveAll.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateFired:
		return "fired"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type stepKind int

const (
	stepThen stepKind = iota
	stepCatch
	stepFinally
)

type step struct {
	kind    stepKind
	then    func() error
	catch   func(error) error
	finally func()
}

// Job is a cancellable deferred action owned by exactly one owner.
// Its methods must be called from the loop goroutine.
type Job struct {
	loop  *Loop
	owner any
	delay Delay
	state State
	gen   uint64
	steps []step

	onDestroy func()
}

// Owner returns the key the job is registered under.
func (j *Job) Owner() any {
	return j.owner
}

func (j *Job) State() State {
	j.loop.mu.Lock()
	defer j.loop.mu.Unlock()
	return j.state
}

func (j *Job) Delay() Delay {
	j.loop.mu.Lock()
	defer j.loop.mu.Unlock()
	return j.delay
}

// Reset cancels any in-flight timer, drops the pending continuation chain
// without running it, and arms the job again. An optional delay replaces the
// current one. Reset arms the job whatever its state.
func (j *Job) Reset(delay ...Delay) *Job {
	l := j.loop
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(delay) > 0 {
		j.delay = delay[0]
	}
	j.steps = nil
	j.onDestroy = nil
	l.armLocked(j)
	return j
}

// Then runs fn at fire time while no earlier step has failed. Steps pass
// nothing to each other except that failure; fn closes over whatever state
// it needs.
func (j *Job) Then(fn func() error) *Job {
	return j.push(step{kind: stepThen, then: fn})
}

// Catch runs fn at fire time when an earlier step failed. Returning nil
// clears the failure for the steps after it.
func (j *Job) Catch(fn func(error) error) *Job {
	return j.push(step{kind: stepCatch, catch: fn})
}

// Finally always runs at fire time.
func (j *Job) Finally(fn func()) *Job {
	return j.push(step{kind: stepFinally, finally: fn})
}

func (j *Job) push(s step) *Job {
	j.loop.mu.Lock()
	j.steps = append(j.steps, s)
	j.loop.mu.Unlock()
	return j
}

// Destroy without a callback cancels the job now and releases its owner
// bookkeeping. With a callback on an armed job, destruction waits until the
// job fires; the job then destroys itself and calls onDestroy. A job that is
// not armed is destroyed immediately and onDestroy runs right away.
func (j *Job) Destroy(onDestroy func()) {
	l := j.loop
	l.mu.Lock()
	if onDestroy != nil && j.state == StateScheduled {
		j.onDestroy = onDestroy
		l.mu.Unlock()
		return
	}
	l.cancelLocked(j)
	l.mu.Unlock()

	if onDestroy != nil {
		if err := protect(func() error { onDestroy(); return nil }); err != nil {
			l.log.Warn().Err(err).Str("owner", fmt.Sprint(j.owner)).Msg("Job destroy callback failed")
		}
	}
}

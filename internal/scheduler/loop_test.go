package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop() (*Loop, *ManualClock) {
	clock := NewManualClock(time.Unix(1700000000, 0))
	return New(WithClock(clock)), clock
}

func TestDelayClassOrdering(t *testing.T) {
	l, clock := newTestLoop()
	var got []string

	l.New("a", Short).Then(func() error { got = append(got, "timer"); return nil })
	l.New("a", Idle).Then(func() error { got = append(got, "idle"); return nil })
	l.New("a", BeforeRedraw).Then(func() error { got = append(got, "redraw"); return nil })
	l.Post(func() { got = append(got, "posted") })

	assert.Equal(t, 3, l.Flush())
	assert.Equal(t, []string{"posted", "redraw", "idle"}, got)

	clock.Advance(99 * time.Millisecond)
	assert.Equal(t, 0, l.Flush())

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, l.Flush())
	assert.Equal(t, []string{"posted", "redraw", "idle", "timer"}, got)
	assert.Equal(t, 0, l.Pending())
}

func TestTimersFireInDueOrder(t *testing.T) {
	l, clock := newTestLoop()
	var got []int

	l.New(1, After(300*time.Millisecond)).Then(func() error { got = append(got, 3); return nil })
	l.New(1, After(100*time.Millisecond)).Then(func() error { got = append(got, 1); return nil })
	l.New(1, After(100*time.Millisecond)).Then(func() error { got = append(got, 2); return nil })

	wait, ok := l.NextDue()
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, wait)

	clock.Advance(time.Second)
	l.Flush()
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestContinuationChain(t *testing.T) {
	l, _ := newTestLoop()
	var got []string
	boom := errors.New("boom")

	l.New("chain", Idle).
		Then(func() error { got = append(got, "then1"); return boom }).
		Then(func() error { got = append(got, "skipped"); return nil }).
		Catch(func(err error) error {
			assert.ErrorIs(t, err, boom)
			got = append(got, "catch")
			return nil
		}).
		Then(func() error { got = append(got, "then2"); return nil }).
		Finally(func() { got = append(got, "finally") })

	l.Flush()
	assert.Equal(t, []string{"then1", "catch", "then2", "finally"}, got)
}

func TestCatchHandsItsErrorOn(t *testing.T) {
	l, _ := newTestLoop()
	first := errors.New("first")
	second := errors.New("second")
	var seen []error

	l.New("chain", Idle).
		Then(func() error { return first }).
		Catch(func(err error) error {
			seen = append(seen, err)
			return second
		}).
		Then(func() error {
			seen = append(seen, nil)
			return nil
		}).
		Catch(func(err error) error {
			seen = append(seen, err)
			return nil
		})

	l.Flush()
	assert.Equal(t, []error{first, second}, seen)
}

func TestIdleJobArmedByIdleJobWaitsForNextFlush(t *testing.T) {
	l, _ := newTestLoop()
	runs := 0

	var arm func()
	arm = func() {
		l.New("again", Idle).Then(func() error {
			runs++
			arm()
			return nil
		})
	}
	arm()
	l.Post(func() { l.New("posted", Idle).Then(func() error { return nil }) })

	assert.Equal(t, 3, l.Flush())
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, l.Pending())

	assert.Equal(t, 1, l.Flush())
	assert.Equal(t, 2, runs)

	l.RemoveAll("again")
	assert.Equal(t, 0, l.Flush())
	assert.Equal(t, 2, runs)
}

func TestPanickingContinuationIsContained(t *testing.T) {
	l, _ := newTestLoop()
	ran := false

	j := l.New("bad", Idle).
		Then(func() error { panic("malformed") }).
		Finally(func() { ran = true })
	l.New("good", Idle).Then(func() error { return nil })

	assert.NotPanics(t, func() { l.Flush() })
	assert.True(t, ran)
	assert.Equal(t, StateFired, j.State())
	assert.Equal(t, 0, l.Pending())

	// the registry still works after the failure
	fired := false
	l.New("bad", Idle).Then(func() error { fired = true; return nil })
	l.Flush()
	assert.True(t, fired)
}

func TestResetDiscardsChainAndRearms(t *testing.T) {
	l, clock := newTestLoop()
	var got []string

	j := l.New("owner", Short).Then(func() error { got = append(got, "old"); return nil })
	clock.Advance(80 * time.Millisecond)
	l.Flush()

	j.Reset().Then(func() error { got = append(got, "new"); return nil })
	clock.Advance(80 * time.Millisecond)
	l.Flush()
	assert.Empty(t, got, "reset must restart the debounce window")

	clock.Advance(20 * time.Millisecond)
	l.Flush()
	assert.Equal(t, []string{"new"}, got)
	assert.Same(t, j, j.Reset(Idle))
	assert.Equal(t, Idle, j.Delay())
}

func TestRemoveAllCancelsOwnerJobs(t *testing.T) {
	l, clock := newTestLoop()
	fired := 0

	l.New("win-1", Idle).Then(func() error { fired++; return nil })
	l.New("win-1", Long).Then(func() error { fired++; return nil })
	keep := l.New("win-2", Idle).Then(func() error { fired += 10; return nil })

	assert.Equal(t, 2, l.Jobs("win-1"))
	l.RemoveAll("win-1")
	assert.Equal(t, 0, l.Jobs("win-1"))

	clock.Advance(time.Second)
	l.Flush()
	assert.Equal(t, 10, fired)
	assert.Equal(t, StateFired, keep.State())
}

func TestDestroy(t *testing.T) {
	l, _ := newTestLoop()

	t.Run("immediate", func(t *testing.T) {
		ran := false
		j := l.New("d", Idle).Then(func() error { ran = true; return nil })
		j.Destroy(nil)
		l.Flush()
		assert.False(t, ran)
		assert.Equal(t, StateCancelled, j.State())
		assert.Equal(t, 0, l.Jobs("d"))
	})

	t.Run("deferred", func(t *testing.T) {
		var got []string
		j := l.New("d", Idle).Then(func() error { got = append(got, "then"); return nil })
		j.Destroy(func() { got = append(got, "destroyed") })
		assert.Empty(t, got)
		assert.Equal(t, 1, l.Jobs("d"))

		l.Flush()
		assert.Equal(t, []string{"then", "destroyed"}, got)
		assert.Equal(t, StateCancelled, j.State())
		assert.Equal(t, 0, l.Jobs("d"))
	})

	t.Run("unarmed with callback", func(t *testing.T) {
		called := false
		j := l.Prepare("d", Idle)
		j.Destroy(func() { called = true })
		assert.True(t, called)
	})
}

func TestPreparedJobIsIdleUntilReset(t *testing.T) {
	l, _ := newTestLoop()
	j := l.Prepare("p", Idle)
	assert.Equal(t, StateIdle, j.State())
	assert.Equal(t, 0, l.Flush())

	j.Reset()
	assert.Equal(t, StateScheduled, j.State())
	assert.Equal(t, 1, l.Flush())
}

func TestCallRunsOnLoop(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	value := 0
	require.NoError(t, l.Call(ctx, func() { value = 42 }))
	assert.Equal(t, 42, value)

	done := make(chan struct{})
	l.Call(ctx, func() {
		l.New("timer", After(10*time.Millisecond)).Then(func() error {
			close(done)
			return nil
		})
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer job never fired")
	}

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

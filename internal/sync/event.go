package sync

import (
	"context"
	"sync/atomic"

	"github.com/sshmux/sshmux/internal/pragma"
)

// eventSet is the state value of an Event once Set has been called.
// Any other state value is the number of goroutines currently blocked in Wait.
const eventSet = -1

// Event is a single-shot signal that any number of goroutines may wait on.
//
// Only the first call to Set has an effect: it releases every current waiter,
// and makes every later Wait return immediately.
// A waiter may abandon its wait through either of two contexts,
// without disturbing the other waiters.
//
// The zero value is ready to use. An Event must not be copied after first use.
type Event struct {
	noCopy pragma.DoNotCopy

	// state is updated only through compare-and-swap,
	// so that a Set racing with a new waiter never loses the waiter.
	state atomic.Int32

	once Once
	done chan struct{}
}

func (e *Event) doneChan() chan struct{} {
	e.once.Do(func() {
		e.done = make(chan struct{})
	})
	return e.done
}

// Set signals the event, releasing all current waiters.
// It returns the number of waiters that were blocked at the time of the call.
// Calls after the first are no-ops, and return 0.
func (e *Event) Set() int {
	n := e.state.Swap(eventSet)
	if n == eventSet {
		return 0
	}

	close(e.doneChan())
	return int(n)
}

// IsSet reports whether Set has been called.
func (e *Event) IsSet() bool {
	return e.state.Load() == eventSet
}

// Waiters returns the number of goroutines currently blocked in Wait.
// Once the event is set, it returns 0.
func (e *Event) Waiters() int {
	n := e.state.Load()
	if n == eventSet {
		return 0
	}
	return int(n)
}

// Wait blocks until Set has been called, or until either context is done.
// A nil context never cancels.
//
// If the wait is abandoned because of a context, Wait returns that context's error.
// If Set has already been called, Wait returns nil immediately.
func (e *Event) Wait(ctx1, ctx2 context.Context) error {
	for {
		n := e.state.Load()
		if n == eventSet {
			return nil
		}

		if e.state.CompareAndSwap(n, n+1) {
			break
		}
	}

	var cancel1, cancel2 <-chan struct{}
	if ctx1 != nil {
		cancel1 = ctx1.Done()
	}
	if ctx2 != nil {
		cancel2 = ctx2.Done()
	}

	select {
	case <-e.doneChan():
		return nil
	case <-cancel1:
		return e.abandon(ctx1)
	case <-cancel2:
		return e.abandon(ctx2)
	}
}

// abandon removes the calling waiter from the count.
// A Set that won the race still counts as a successful wait.
func (e *Event) abandon(ctx context.Context) error {
	for {
		n := e.state.Load()
		if n == eventSet {
			return nil
		}

		if n <= 0 {
			// unreachable: this waiter incremented the count.
			panic("sshmux: event waiter count underflow")
		}

		if e.state.CompareAndSwap(n, n-1) {
			return ctx.Err()
		}
	}
}

package sync

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/sshmux/sshmux/internal/pragma"
)

// SlicePool is a free list of byte-ish slices that may be individually saved and retrieved.
// It is intended to mirror [sync.Pool], except that it never allocates on a miss,
// and it holds onto at most depth slices.
//
// Packet buffers are rented from a SlicePool and checked back in once their payload is consumed.
//
// A SlicePool is safe for use by multiple goroutines simultaneously.
type SlicePool[S []T, T any] struct {
	noCopy pragma.DoNotCopy

	metrics

	ch     chan S
	length int
}

// NewSlicePool returns a [SlicePool] set to hold onto depth number of items,
// and discard any slice with a capacity greater than the cull length.
//
// It will panic if given a negative depth, the same as making a negative-buffer channel.
// It will also panic if given a zero or negative cull length.
func NewSlicePool[S []T, T any](depth, cullLength int) *SlicePool[S, T] {
	if cullLength <= 0 {
		panic("sshmux: slice pool: cull length must be greater than zero")
	}

	return &SlicePool[S, T]{
		ch:     make(chan S, depth),
		length: cullLength,
	}
}

// Get retrieves a slice from the pool with its length set to zero.
// If the pool is empty, it will return a nil slice,
// leaving it to the caller to allocate the size it actually needs.
//
// A nil SlicePool is treated as an empty pool.
func (p *SlicePool[S, T]) Get() S {
	if p == nil {
		return nil
	}

	select {
	case b := <-p.ch:
		p.hit()
		return b[:0]

	default:
		p.miss()
		return nil
	}
}

// Put adds the slice to the pool, if there is room in the pool,
// and if the capacity of the slice does not exceed the culling length.
//
// A nil SlicePool is treated as a pool with no capacity.
func (p *SlicePool[S, T]) Put(b S) {
	if p == nil || cap(b) == 0 {
		return
	}

	if cap(b) > p.length {
		// Oversized buffers would pin memory forever.
		return
	}

	select {
	case p.ch <- b:
	default:
	}
}

// Pool is a free list of pointers to T.
// Items are zeroed when they are put back.
//
// A Pool is safe for use by multiple goroutines simultaneously.
type Pool[T any] struct {
	noCopy pragma.DoNotCopy

	metrics

	ch chan *T
}

// NewPool returns a [Pool] set to hold onto depth number of pointers to the given type.
func NewPool[T any](depth int) *Pool[T] {
	return &Pool[T]{
		ch: make(chan *T, depth),
	}
}

// Get retrieves an item from the pool,
// or a pointer to a newly allocated item if the pool is empty.
//
// A nil Pool always returns a newly allocated item.
func (p *Pool[T]) Get() *T {
	if p == nil {
		return new(T)
	}

	select {
	case v := <-p.ch:
		p.hit()
		return v

	default:
		p.miss()
		return new(T)
	}
}

// Put zeroes the item, and adds it to the pool if there is room in the pool.
//
// A nil Pool is treated as a pool with no capacity.
func (p *Pool[T]) Put(v *T) {
	if p == nil || v == nil {
		return
	}

	var z T
	*v = z

	select {
	case p.ch <- v:
	default:
	}
}

// WorkPool is a fixed set of single-slot result channels.
// Get blocks once every channel has been handed out,
// which bounds how many requests may be in flight at one time.
//
// Every channel obtained from Get must be returned through Put exactly once,
// and only after any value sent on it has been received.
type WorkPool[T any] struct {
	wg sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	ch chan chan T
}

// NewWorkPool returns a [WorkPool] filled with depth channels of the given type, each with a buffer of 1.
//
// It will panic if given a negative depth, the same as making a negative-buffer channel.
func NewWorkPool[T any](depth int) *WorkPool[T] {
	p := &WorkPool[T]{
		ch: make(chan chan T, depth),
	}

	for len(p.ch) < cap(p.ch) {
		p.ch <- make(chan T, 1)
	}

	return p
}

// Close closes the [WorkPool] to all further Get requests,
// and then waits for all outstanding channels to be returned.
//
// Close will panic if called more than once.
func (p *WorkPool[T]) Close() error {
	if p == nil {
		return errors.New("cannot close nil work pool")
	}

	p.mu.Lock()
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	p.wg.Wait()

	for range p.ch {
		// drain so the channels can be garbage collected.
	}

	return nil
}

// Get retrieves a work channel from the pool,
// or returns a nil channel and false if the [WorkPool] has been closed.
//
// If no work channels are available, Get blocks until one is returned through Put.
//
// A nil WorkPool always returns a new work channel and true.
func (p *WorkPool[T]) Get() (chan T, bool) {
	if p == nil {
		return make(chan T, 1), true
	}

	v, ok := <-p.ch
	if !ok {
		return nil, false
	}

	// Count the channel out under the lock, so Close either waits for it or sees it dropped here.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, false
	}

	p.wg.Add(1)
	return v, true
}

// Put returns the given work channel to the pool.
// Once the pool is closed, returned channels are dropped.
//
// Put panics if more channels are returned than the capacity of the pool.
//
// A nil WorkPool simply discards work channels.
func (p *WorkPool[T]) Put(v chan T) {
	if p == nil {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.wg.Done()
		return
	}

	select {
	case p.ch <- v:
		p.wg.Done()
	default:
		panic("sshmux: work pool overfill")
	}
}

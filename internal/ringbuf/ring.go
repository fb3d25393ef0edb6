// Package ringbuf provides a fixed-capacity circular buffer shared between
// the sample processing worker and its readers. Every operation takes the
// buffer lock with a bounded wait and reports a timeout instead of blocking.
package ringbuf

import (
	"sync/atomic"
	"time"

	"codeberg.org/mutker/acmonitor/internal/errors"
)

// Policy selects what Push does when the ring is full.
type Policy int

const (
	// Overwrite evicts the oldest element.
	Overwrite Policy = iota
	// Reject leaves the ring untouched and returns ErrCapacity.
	Reject
)

func (p Policy) String() string {
	if p == Reject {
		return "reject"
	}
	return "overwrite"
}

const (
	DefaultWait       = 300 * time.Millisecond
	DefaultDeleteWait = 500 * time.Millisecond
)

// Option configures a Ring.
type Option func(*options)

type options struct {
	wait       time.Duration
	deleteWait time.Duration
	onFull     func(count int)
}

// WithWait sets the lock wait for Push, Read and SnapshotInto.
func WithWait(d time.Duration) Option {
	return func(o *options) { o.wait = d }
}

// WithDeleteWait sets the lock wait for Delete and ConsumeWhile.
func WithDeleteWait(d time.Duration) Option {
	return func(o *options) { o.deleteWait = d }
}

// OnFull registers fn to be called once each time a push fills the ring.
// It runs after the lock is released. Only meaningful with Reject.
func OnFull(fn func(count int)) Option {
	return func(o *options) { o.onFull = fn }
}

// Ring is a circular buffer of T with head/tail/count bookkeeping.
type Ring[T any] struct {
	mu     *Mutex
	opts   options
	policy Policy

	items []T
	head  int
	tail  int
	count int

	// mirror of count for lock-free occupancy reads
	size atomic.Int64
}

// New creates a ring holding at most capacity elements.
func New[T any](capacity int, policy Policy, opts ...Option) *Ring[T] {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}

	o := options{wait: DefaultWait, deleteWait: DefaultDeleteWait}
	for _, opt := range opts {
		opt(&o)
	}

	return &Ring[T]{
		mu:     NewMutex(),
		opts:   o,
		policy: policy,
		items:  make([]T, capacity),
	}
}

// Push appends item at the head.
func (r *Ring[T]) Push(item T) error {
	errFactory := errors.New()

	if !r.mu.TryLock(r.opts.wait) {
		return errFactory.WithData(ErrTimeout, "push")
	}

	capacity := len(r.items)
	if r.count == capacity && r.policy == Reject {
		r.mu.Unlock()
		return errFactory.WithData(ErrCapacity, capacity)
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % capacity

	if r.count == capacity {
		r.tail = (r.tail + 1) % capacity
	} else {
		r.count++
	}

	filled := r.policy == Reject && r.count == capacity
	count := r.count
	r.size.Store(int64(count))
	r.mu.Unlock()

	if filled && r.opts.onFull != nil {
		r.opts.onFull(count)
	}

	return nil
}

// Read returns the element index positions after the oldest one.
func (r *Ring[T]) Read(index int) (T, error) {
	var zero T
	errFactory := errors.New()

	if !r.mu.TryLock(r.opts.wait) {
		return zero, errFactory.WithData(ErrTimeout, "read")
	}
	defer r.mu.Unlock()

	if index < 0 || index >= r.count {
		return zero, errFactory.WithData(ErrOutOfRange, struct {
			Index int
			Count int
		}{index, r.count})
	}

	return r.items[(r.tail+index)%len(r.items)], nil
}

// Delete drops the qty oldest elements.
func (r *Ring[T]) Delete(qty int) error {
	errFactory := errors.New()

	if !r.mu.TryLock(r.opts.deleteWait) {
		return errFactory.WithData(ErrTimeout, "delete")
	}
	defer r.mu.Unlock()

	if qty < 0 || qty > r.count {
		return errFactory.WithData(ErrOutOfRange, struct {
			Qty   int
			Count int
		}{qty, r.count})
	}

	var zero T
	for i := 0; i < qty; i++ {
		r.items[(r.tail+i)%len(r.items)] = zero
	}

	r.tail = (r.tail + qty) % len(r.items)
	r.count -= qty
	r.size.Store(int64(r.count))

	return nil
}

// ConsumeWhile pops elements from the tail for as long as accept returns
// true, all under one lock hold. The element accept rejects stays queued.
// It returns the number of elements consumed.
func (r *Ring[T]) ConsumeWhile(accept func(item T) bool) (int, error) {
	if !r.mu.TryLock(r.opts.deleteWait) {
		return 0, errors.New().WithData(ErrTimeout, "consume")
	}
	defer r.mu.Unlock()

	var zero T
	consumed := 0
	for r.count > 0 {
		if !accept(r.items[r.tail]) {
			break
		}
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % len(r.items)
		r.count--
		consumed++
	}
	r.size.Store(int64(r.count))

	return consumed, nil
}

// SnapshotInto copies len(dst) elements starting at the write position,
// wrapping around, without consuming anything. For a full overwrite ring
// this yields the stored elements oldest first.
func (r *Ring[T]) SnapshotInto(dst []T) error {
	errFactory := errors.New()

	if len(dst) > len(r.items) {
		return errFactory.WithData(ErrBadBuffer, struct {
			Requested int
			Capacity  int
		}{len(dst), len(r.items)})
	}

	if !r.mu.TryLock(r.opts.wait) {
		return errFactory.WithData(ErrTimeout, "snapshot")
	}
	defer r.mu.Unlock()

	for i := range dst {
		dst[i] = r.items[(r.head+i)%len(r.items)]
	}

	return nil
}

// Len returns the current occupancy without taking the lock.
func (r *Ring[T]) Len() int {
	return int(r.size.Load())
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Full reports whether Len has reached Cap.
func (r *Ring[T]) Full() bool {
	return r.Len() == len(r.items)
}

// Policy returns the full-ring policy the ring was created with.
func (r *Ring[T]) Policy() Policy {
	return r.policy
}

// Package mailbox implements a single-slot, latest-wins channel.
//
// A Mailbox carries values from one producer goroutine to one consumer
// goroutine. Sending never blocks: an unconsumed value is replaced by the
// newer one and counted as dropped, so the consumer only ever sees the most
// recent value and never a backlog. A producer that fails closes the mailbox
// with a cause, which the consumer observes on its next receive.
package mailbox

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrClosed is reported by receives on a mailbox closed without a cause.
var ErrClosed = errors.New("mailbox closed")

// Mailbox is a capacity-one channel with overwrite-on-send semantics.
// Send must be called from a single goroutine; the receive methods from a
// single (possibly different) goroutine.
type Mailbox[T any] struct {
	slot   chan T
	done   chan struct{}
	closed atomic.Bool
	cause  error

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// New returns an empty, open mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		slot: make(chan T, 1),
		done: make(chan struct{}),
	}
}

// Send stores v, replacing any value the consumer has not taken yet.
// It reports false when the mailbox is closed and v was discarded.
func (m *Mailbox[T]) Send(v T) bool {
	if m.closed.Load() {
		return false
	}
	for {
		select {
		case m.slot <- v:
			m.sent.Add(1)
			return true
		default:
		}
		// Slot full: evict the stale value. The consumer may win the race
		// and take it first, in which case the next send attempt succeeds.
		select {
		case <-m.slot:
			m.dropped.Add(1)
		default:
		}
	}
}

// TryRecv returns the pending value without blocking. ok is false when the
// slot is empty. err is non-nil only once the mailbox is closed and drained.
func (m *Mailbox[T]) TryRecv() (v T, ok bool, err error) {
	select {
	case v = <-m.slot:
		return v, true, nil
	default:
	}
	select {
	case <-m.done:
		// A send may have landed between the two selects
		select {
		case v = <-m.slot:
			return v, true, nil
		default:
		}
		return v, false, m.cause
	default:
		return v, false, nil
	}
}

// Recv blocks until a value is available, the mailbox is closed, or ctx
// ends.
func (m *Mailbox[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case v := <-m.slot:
		return v, nil
	case <-m.done:
		select {
		case v := <-m.slot:
			return v, nil
		default:
		}
		return zero, m.cause
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close poisons the mailbox. A value already in the slot is still
// delivered; afterwards receives report cause, or ErrClosed when cause is
// nil. Only the first call has an effect.
func (m *Mailbox[T]) Close(cause error) {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	if cause == nil {
		cause = ErrClosed
	}
	m.cause = cause
	close(m.done)
}

// Done is closed when the mailbox is closed.
func (m *Mailbox[T]) Done() <-chan struct{} {
	return m.done
}

// Closed reports whether Close has been called.
func (m *Mailbox[T]) Closed() bool {
	return m.closed.Load()
}

// Stats reports how many values were accepted and how many of those were
// replaced before the consumer took them.
func (m *Mailbox[T]) Stats() (sent, dropped uint64) {
	return m.sent.Load(), m.dropped.Load()
}

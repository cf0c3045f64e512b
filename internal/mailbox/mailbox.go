// Package mailbox provides a single-slot, overwrite-on-send handoff between
// any number of producers and one consumer.
package mailbox

import "sync"

// Mailbox holds at most one value. Send replaces an unread value; neither
// Send nor TryReceive blocks.
type Mailbox[T any] struct {
	mu    sync.Mutex
	value T
	dirty bool
}

func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{}
}

func (m *Mailbox[T]) Send(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = v
	m.dirty = true
}

// TryReceive takes the pending value, if any.
func (m *Mailbox[T]) TryReceive() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if !m.dirty {
		return zero, false
	}
	v := m.value
	m.value = zero
	m.dirty = false
	return v, true
}

func (m *Mailbox[T]) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

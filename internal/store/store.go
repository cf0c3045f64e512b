// Package store persists segment lengths across restarts.
package store

import (
	"errors"
	"fmt"
	"sync"
)

var ErrInvalidIndex = errors.New("store: invalid segment index")

// Store is the persistent key/value view of the segment layout. A missing
// key reads as length 0.
type Store interface {
	SegmentLength(index int) (int, error)
	PutSegmentLength(index, length int) error
}

// Closer is implemented by backends holding an open resource.
type Closer interface {
	Close() error
}

func checkIndex(index int) error {
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	return nil
}

// Memory keeps lengths in a map. It is lost on restart.
type Memory struct {
	mu      sync.RWMutex
	lengths map[int]int
}

func NewMemory() *Memory {
	return &Memory{lengths: map[int]int{}}
}

func (m *Memory) SegmentLength(index int) (int, error) {
	if err := checkIndex(index); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lengths[index], nil
}

func (m *Memory) PutSegmentLength(index, length int) error {
	if err := checkIndex(index); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lengths[index] = length
	return nil
}

// Open returns the backend for driver ("file", "bolt" or "memory").
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "file":
		return OpenFile(path)
	case "bolt":
		return OpenBolt(path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}

// Close releases s if it holds a resource.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

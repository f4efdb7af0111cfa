// Package storage persists small client-side records in named slots.
//
// A slot holds one opaque value and is overwritten on every write; there is no
// versioning. The session identity and the feed cache each own one slot.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Well-known slot names.
const (
	SlotIdentity = "user"
	SlotFeed     = "photos"
)

// ErrNotFound is returned by Get when the slot holds no value.
var ErrNotFound = errors.New("storage: slot not found")

// Store is durable slot storage.
type Store interface {
	Get(ctx context.Context, slot string) ([]byte, error)
	Put(ctx context.Context, slot string, value []byte) error
	Delete(ctx context.Context, slot string) error
}

func validateSlot(slot string) error {
	if slot == "" {
		return errors.New("storage: empty slot name")
	}
	if strings.ContainsAny(slot, `/\`) || strings.Contains(slot, "..") {
		return fmt.Errorf("storage: invalid slot name %q", slot)
	}
	return nil
}

// MemoryStore keeps slots in process memory. It is not durable and exists for
// tests and throwaway sessions.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string][]byte)}
}

// Get returns a copy of the slot value.
func (m *MemoryStore) Get(_ context.Context, slot string) ([]byte, error) {
	if err := validateSlot(slot); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.slots[slot]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put overwrites the slot.
func (m *MemoryStore) Put(_ context.Context, slot string, value []byte) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	m.mu.Lock()
	m.slots[slot] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

// Delete clears the slot. Deleting an empty slot is not an error.
func (m *MemoryStore) Delete(_ context.Context, slot string) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.slots, slot)
	m.mu.Unlock()
	return nil
}

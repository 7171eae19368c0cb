package pinstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and ephemeral runs. Reads
// take the read lock so concurrent connection attempts never block each
// other; writes are serialized by the write lock.
type MemoryStore struct {
	mu       sync.RWMutex
	pins     map[string]Pin
	identity Identity
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pins: make(map[string]Pin)}
}

func (m *MemoryStore) LoadFingerprint(_ context.Context, stableID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pins[stableID].Fingerprint, nil
}

func (m *MemoryStore) SaveFingerprint(_ context.Context, stableID, fingerprint string) error {
	stableID = strings.TrimSpace(stableID)
	fingerprint = strings.TrimSpace(fingerprint)
	if stableID == "" {
		return fmt.Errorf("pinstore: save pin: empty stable id")
	}
	if fingerprint == "" {
		return fmt.Errorf("pinstore: save pin %q: empty fingerprint", stableID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	pin, ok := m.pins[stableID]
	if !ok {
		pin = Pin{StableID: stableID, CreatedAt: now}
	}
	pin.Fingerprint = fingerprint
	pin.UpdatedAt = now
	m.pins[stableID] = pin
	return nil
}

func (m *MemoryStore) DeleteFingerprint(_ context.Context, stableID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pins, stableID)
	return nil
}

func (m *MemoryStore) ListPins(_ context.Context) ([]Pin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pins := make([]Pin, 0, len(m.pins))
	for _, pin := range m.pins {
		pins = append(pins, pin)
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i].StableID < pins[j].StableID })
	return pins, nil
}

func (m *MemoryStore) Identity(_ context.Context) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity.InstanceID == "" {
		m.identity.InstanceID = uuid.NewString()
	}
	return m.identity, nil
}

func (m *MemoryStore) SetDisplayName(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity.InstanceID == "" {
		m.identity.InstanceID = uuid.NewString()
	}
	m.identity.DisplayName = strings.TrimSpace(name)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

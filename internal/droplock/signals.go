package droplock

import (
	"fmt"
	"sync"
)

// SignalKey identifies one locker within the signal memory.
type SignalKey struct {
	SectorID string
	LockerID string
}

func (k SignalKey) String() string {
	return fmt.Sprintf("%s:%s", k.SectorID, k.LockerID)
}

// Signal is the last observed {tamper, offline} pair for a locker.
type Signal struct {
	Tamper  bool
	Offline bool
}

// SignalMemory remembers the last observed signal per locker so the
// reconciler can detect rising edges. A never-observed key loads as the
// zero Signal.
type SignalMemory interface {
	Load(key SignalKey) (Signal, error)
	Store(key SignalKey, signal Signal) error
}

// MemorySignals keeps signals for the lifetime of the process. A restart
// forgets them, so a condition still present afterwards is seen as a new
// rising edge; the alert dedup rule keeps that from creating a duplicate
// while the earlier alert is still OPEN or ACKED.
type MemorySignals struct {
	mu      sync.Mutex
	signals map[SignalKey]Signal
}

var _ SignalMemory = (*MemorySignals)(nil)

func NewMemorySignals() *MemorySignals {
	return &MemorySignals{signals: make(map[SignalKey]Signal)}
}

func (m *MemorySignals) Load(key SignalKey) (Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signals[key], nil
}

func (m *MemorySignals) Store(key SignalKey, signal Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[key] = signal
	return nil
}

package broker

import (
	"time"
)

// DefaultLedgerCapacity bounds the operation history kept for prompt context.
const DefaultLedgerCapacity = 20

// OperationLedger records human-readable operation descriptions for prompt
// context. Single writer per process; no concurrency guarantees.
type OperationLedger interface {
	Record(description string) error
	History() ([]OperationRecord, error)
	Clear() error
}

// RingLedger is the in-memory ledger: a bounded ring that drops the oldest
// entry on overflow.
type RingLedger struct {
	capacity int
	nextStep int
	entries  []OperationRecord
}

// NewRingLedger creates a ring ledger with the given capacity.
func NewRingLedger(capacity int) *RingLedger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &RingLedger{
		capacity: capacity,
		nextStep: 1,
		entries:  make([]OperationRecord, 0, capacity),
	}
}

// Record appends an operation, trimming the oldest entry on overflow.
func (l *RingLedger) Record(description string) error {
	l.entries = append(l.entries, OperationRecord{
		Step:        l.nextStep,
		Timestamp:   time.Now(),
		Description: description,
	})
	l.nextStep++

	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
	return nil
}

// History returns the recorded operations, oldest first.
func (l *RingLedger) History() ([]OperationRecord, error) {
	out := make([]OperationRecord, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

// Clear drops all entries and restarts step numbering.
func (l *RingLedger) Clear() error {
	l.entries = l.entries[:0]
	l.nextStep = 1
	return nil
}

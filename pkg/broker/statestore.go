package broker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// StateStore reads and writes the on-disk SessionRecord. All methods are plain
// file I/O; correctness depends on callers holding the broker lock around the
// read-decide-write sequence.
type StateStore struct {
	path string
}

// NewStateStore creates a state store backed by the given file path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Path returns the state file path.
func (s *StateStore) Path() string {
	return s.path
}

// Read returns the persisted record, or ok=false when the file is missing or
// unparseable. A corrupt file is treated as no record, not an error.
func (s *StateStore) Read() (*SessionRecord, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, false
	}

	var record SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false
	}
	if record.Endpoint == "" {
		return nil, false
	}

	return &record, true
}

// Write persists the record, creating the parent directory if needed.
func (s *StateStore) Write(record *SessionRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return &Error{
			Code:    ErrCodeConfiguration,
			Message: fmt.Sprintf("Failed to create state directory: %v", err),
		}
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return &Error{
			Code:    ErrCodeConfiguration,
			Message: fmt.Sprintf("Failed to marshal session record: %v", err),
		}
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return &Error{
			Code:    ErrCodeConfiguration,
			Message: fmt.Sprintf("Failed to write state file: %v", err),
		}
	}

	return nil
}

// Delete removes the state file. Missing file is not an error.
func (s *StateStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// PidAlive reports whether pid maps to a live process, using a no-op signal.
// EPERM still means the process exists.
func PidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

package broker

import (
	"time"
)

// SessionRecord is the persisted description of the active browser session.
// It is the single source of truth for "is there a session, and is it mine to
// reuse". A record whose Pid no longer maps to a live process is stale and is
// discarded before use.
type SessionRecord struct {
	// Endpoint is the browser's websocket debugging endpoint.
	Endpoint string `json:"endpoint"`
	// Pid is the process id of the browser we launched, or 0 when the
	// session was adopted from an externally started browser.
	Pid int `json:"pid"`
	// ContextID tags the browsing context this tool created, so later
	// callers can tell it apart from contexts other tools opened in the
	// same browser. Best effort; may be empty.
	ContextID string `json:"context_id,omitempty"`
	// SessionID is a short id for log correlation across step processes.
	SessionID string `json:"session_id,omitempty"`
}

// Launched reports whether the recorded browser was launched by this tool.
func (r *SessionRecord) Launched() bool {
	return r.Pid > 0
}

// LaunchResult is what ProcessLauncher hands back after a successful spawn.
type LaunchResult struct {
	Pid      int
	Endpoint string
}

// OperationRecord is one entry of the operation ledger.
type OperationRecord struct {
	Step        int       `json:"step"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// Error is the broker error type
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Error codes
const (
	ErrCodeLaunchTimeout      = "LAUNCH_TIMEOUT"
	ErrCodeConnectionRefused  = "CONNECTION_REFUSED"
	ErrCodeStaleSession       = "STALE_SESSION"
	ErrCodeBinaryNotFound     = "BINARY_NOT_FOUND"
	ErrCodeSessionUnavailable = "SESSION_UNAVAILABLE"
	ErrCodeCleanupPartial     = "CLEANUP_PARTIAL"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
)

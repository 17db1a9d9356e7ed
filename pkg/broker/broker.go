// Package broker implements the persistent cross-process browser session
// broker: many short-lived, independently launched step processes share one
// long-running browser. All coordination happens through the filesystem (a
// state file and an advisory lock) and the browser's own debugging endpoint;
// nothing in memory is assumed to survive between calls.
package broker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/pagebroker/pkg/page"
)

// DefaultDebugPort is the well-known remote debugging port.
const DefaultDebugPort = 9222

// Options configures a SessionBroker. All paths are fixed, machine-local
// artifacts; two brokers pointed at the same paths share one session.
type Options struct {
	StateFile      string
	LockFile       string
	ProfileDir     string
	LedgerPath     string
	DebugPort      int
	Headless       bool
	ChromePath     string
	LaunchAttempts int
	LaunchInterval time.Duration
	LedgerCapacity int
}

// DefaultOptions places all artifacts under ~/.pagebroker.
func DefaultOptions() Options {
	base := filepath.Join(os.TempDir(), "pagebroker")
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".pagebroker")
	}
	return Options{
		StateFile:      filepath.Join(base, "state.json"),
		LockFile:       filepath.Join(base, "broker.lock"),
		ProfileDir:     filepath.Join(base, "chrome-profile"),
		LedgerPath:     filepath.Join(base, "ledger.db"),
		DebugPort:      DefaultDebugPort,
		LaunchAttempts: 15,
		LaunchInterval: time.Second,
		LedgerCapacity: DefaultLedgerCapacity,
	}
}

// SessionBroker is the public surface consumed by the automation-code
// executor. Acquire hands back a restricted page handle; Cleanup tears the
// shared session down once the overall task is complete.
type SessionBroker struct {
	opts    Options
	lock    *FileLock
	store   *StateStore
	locator *SessionLocator
	reaper  *Reaper
	ledger  OperationLedger
	logger  zerolog.Logger

	// conn caches this process's connection. The filesystem, not this
	// field, is the real shared state; the cache only serves repeated
	// calls within one step process.
	conn   *Conn
	record *SessionRecord
}

// New creates a broker. The ledger falls back to an in-memory ring when the
// on-disk ledger cannot be opened.
func New(opts Options, logger zerolog.Logger) *SessionBroker {
	if opts.DebugPort == 0 {
		opts.DebugPort = DefaultDebugPort
	}

	store := NewStateStore(opts.StateFile)
	launcher := NewProcessLauncher(LauncherConfig{
		DebugPort:     opts.DebugPort,
		ProfileDir:    opts.ProfileDir,
		ChromePath:    opts.ChromePath,
		Headless:      opts.Headless,
		ReadyAttempts: opts.LaunchAttempts,
		ReadyInterval: opts.LaunchInterval,
	}, logger)
	connector := NewConnector(logger)

	var ledger OperationLedger
	if sl, err := OpenSQLiteLedger(opts.LedgerPath, opts.LedgerCapacity); err == nil {
		ledger = sl
	} else {
		logger.Warn().Err(err).Msg("falling back to in-memory operation ledger")
		ledger = NewRingLedger(opts.LedgerCapacity)
	}

	return &SessionBroker{
		opts:    opts,
		lock:    NewFileLock(opts.LockFile),
		store:   store,
		locator: NewSessionLocator(store, launcher, connector, opts.DebugPort, logger),
		reaper:  NewReaper(store, opts.LockFile, opts.ProfileDir, logger),
		ledger:  ledger,
		logger:  logger,
	}
}

// Acquire obtains the shared session, creating it if needed, and returns a
// restricted handle onto its visible page. The resolve decision runs under
// the cross-process lock; the lock is released before any automation happens
// on the handle. Fails only when every resolution tier fails.
func (b *SessionBroker) Acquire(ctx context.Context) (*page.Handle, error) {
	if b.conn != nil {
		return b.conn.Handle(), nil
	}

	var conn *Conn
	var record *SessionRecord
	err := b.lock.WithLock(func() error {
		var resolveErr error
		conn, record, resolveErr = b.locator.Resolve(ctx)
		return resolveErr
	})
	if err != nil {
		return nil, err
	}

	b.conn = conn
	b.record = record
	return conn.Handle(), nil
}

// Cleanup tears down the session: connection, process, endpoint, orphans,
// and on-disk artifacts. Best effort, idempotent, never returns an error.
func (b *SessionBroker) Cleanup(ctx context.Context) {
	b.reaper.Cleanup(ctx, b.conn)
	b.conn = nil
	b.record = nil
}

// Reset is Cleanup plus clearing the operation history, marking the end of
// the overall task.
func (b *SessionBroker) Reset(ctx context.Context) {
	b.Cleanup(ctx)
	if err := b.ledger.Clear(); err != nil {
		b.logger.Warn().Err(err).Msg("failed to clear operation history")
	}
}

// PageStructure serializes the current page (URL, title, capped HTML and
// text) for prompt context, acquiring the session if this process has not
// connected yet.
func (b *SessionBroker) PageStructure(ctx context.Context) (string, error) {
	handle, err := b.Acquire(ctx)
	if err != nil {
		return "", err
	}
	return PageStructure(handle)
}

// Record appends a human-readable operation description to the ledger.
func (b *SessionBroker) Record(description string) {
	if err := b.ledger.Record(description); err != nil {
		b.logger.Warn().Err(err).Msg("failed to record operation")
	}
}

// History returns the retained operation records, oldest first.
func (b *SessionBroker) History() ([]OperationRecord, error) {
	return b.ledger.History()
}

// Status describes the persisted session for inspection.
type Status struct {
	Active    bool   `json:"active"`
	Endpoint  string `json:"endpoint,omitempty"`
	Pid       int    `json:"pid,omitempty"`
	OwnerLive bool   `json:"owner_live,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Status reports whether a session record exists and whether its owner is
// still alive. Read-only; takes the lock to avoid observing a half-written
// record.
func (b *SessionBroker) Status() (*Status, error) {
	var st Status
	err := b.lock.WithLock(func() error {
		record, ok := b.store.Read()
		if !ok {
			return nil
		}
		st = Status{
			Active:    true,
			Endpoint:  record.Endpoint,
			Pid:       record.Pid,
			OwnerLive: !record.Launched() || PidAlive(record.Pid),
			SessionID: record.SessionID,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read session status: %w", err)
	}
	return &st, nil
}

package broker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Reaper tears a session down: connection, process, protocol endpoint,
// orphans, and on-disk artifacts. Every step is best effort and independently
// wrapped; Cleanup never returns an error and is safe to call twice or when
// nothing was ever launched.
type Reaper struct {
	store      *StateStore
	lockPath   string
	profileDir string
	termWait   time.Duration
	logger     zerolog.Logger
}

// NewReaper creates a reaper over the broker's on-disk artifacts.
func NewReaper(store *StateStore, lockPath, profileDir string, logger zerolog.Logger) *Reaper {
	return &Reaper{
		store:      store,
		lockPath:   lockPath,
		profileDir: profileDir,
		termWait:   5 * time.Second,
		logger:     logger,
	}
}

// Cleanup runs all teardown steps. conn may be nil when this process never
// connected. A failure in one step never skips the rest.
func (r *Reaper) Cleanup(ctx context.Context, conn *Conn) {
	record, _ := r.store.Read()

	r.closeConnection(conn)
	r.terminateProcess(record)
	r.protocolClose(ctx, record)
	r.killOrphans()
	r.removeArtifacts()

	r.logger.Info().Msg("browser session cleaned up")
}

// closeConnection closes the rod connection if one is open.
func (r *Reaper) closeConnection(conn *Conn) {
	if conn == nil || conn.Browser == nil {
		return
	}
	if err := conn.Browser.Close(); err != nil {
		r.warn("close connection", err)
	}
}

// terminateProcess sends SIGTERM to the recorded browser, waits briefly, then
// force-kills. Adopted sessions (pid 0) were not launched by us and are left
// to the protocol and pattern steps.
func (r *Reaper) terminateProcess(record *SessionRecord) {
	if record == nil || !record.Launched() {
		return
	}
	if !PidAlive(record.Pid) {
		return
	}

	if err := syscall.Kill(record.Pid, syscall.SIGTERM); err != nil {
		r.warn("terminate browser", err)
		return
	}

	deadline := time.Now().Add(r.termWait)
	for time.Now().Before(deadline) {
		if !PidAlive(record.Pid) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := syscall.Kill(record.Pid, syscall.SIGKILL); err != nil {
		r.warn("force-kill browser", err)
	}
}

// protocolClose asks the browser to shut itself down over the recorded
// debugging endpoint. This covers the case where the local process handle is
// no longer valid, e.g. a broker restarted after the launch.
func (r *Reaper) protocolClose(ctx context.Context, record *SessionRecord) {
	if record == nil || record.Endpoint == "" {
		return
	}

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, _, err := dialer.DialContext(ctx, record.Endpoint, nil)
	if err != nil {
		// Endpoint already gone; nothing to close.
		return
	}
	defer conn.Close()

	msg := struct {
		ID     int    `json:"id"`
		Method string `json:"method"`
	}{ID: 1, Method: "Browser.close"}

	if err := conn.WriteJSON(msg); err != nil {
		r.warn("protocol close", err)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, _ = conn.ReadMessage()
}

// killOrphans force-kills any process matching this tool's launch signature,
// covering browsers orphaned by a crashed prior run.
func (r *Reaper) killOrphans() {
	if r.profileDir == "" {
		return
	}

	out, err := exec.Command("pgrep", "-f", fmt.Sprintf("user-data-dir=%s", r.profileDir)).Output()
	if err != nil {
		// pgrep exits non-zero when nothing matches.
		return
	}

	self := os.Getpid()
	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid == self {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
			r.warn(fmt.Sprintf("kill orphan %d", pid), err)
		}
	}
}

// removeArtifacts deletes the state file, the lock file, and the reusable
// profile directory.
func (r *Reaper) removeArtifacts() {
	if err := r.store.Delete(); err != nil {
		r.warn("delete state file", err)
	}
	if r.lockPath != "" {
		if err := os.Remove(r.lockPath); err != nil && !os.IsNotExist(err) {
			r.warn("delete lock file", err)
		}
	}
	if r.profileDir != "" {
		if err := os.RemoveAll(r.profileDir); err != nil {
			r.warn("delete profile directory", err)
		}
	}
}

func (r *Reaper) warn(step string, err error) {
	r.logger.Warn().Err(err).Str("code", ErrCodeCleanupPartial).Str("step", step).Msg("cleanup step failed")
}

package broker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		StateFile:      filepath.Join(dir, "state.json"),
		LockFile:       filepath.Join(dir, "broker.lock"),
		ProfileDir:     filepath.Join(dir, "chrome-profile"),
		LedgerPath:     filepath.Join(dir, "ledger.db"),
		DebugPort:      DefaultDebugPort,
		LaunchAttempts: 1,
		LaunchInterval: 10 * time.Millisecond,
		LedgerCapacity: 5,
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, DefaultDebugPort, opts.DebugPort)
	assert.Equal(t, 15, opts.LaunchAttempts)
	assert.Equal(t, time.Second, opts.LaunchInterval)
	assert.Equal(t, DefaultLedgerCapacity, opts.LedgerCapacity)
	assert.NotEmpty(t, opts.StateFile)
	assert.NotEmpty(t, opts.LockFile)
	assert.NotEmpty(t, opts.ProfileDir)
	assert.Equal(t, filepath.Dir(opts.StateFile), filepath.Dir(opts.LockFile))
}

func TestBrokerStatusNoSession(t *testing.T) {
	b := New(newTestOptions(t), zerolog.Nop())

	st, err := b.Status()
	require.NoError(t, err)
	assert.False(t, st.Active)
	assert.Empty(t, st.Endpoint)
	assert.Zero(t, st.Pid)
}

func TestBrokerStatusReportsRecord(t *testing.T) {
	opts := newTestOptions(t)
	b := New(opts, zerolog.Nop())

	store := NewStateStore(opts.StateFile)
	require.NoError(t, store.Write(&SessionRecord{
		Endpoint:  "ws://127.0.0.1:9222/devtools/browser/abc",
		Pid:       0,
		SessionID: "sess-1",
	}))

	st, err := b.Status()
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", st.Endpoint)
	assert.Zero(t, st.Pid)
	assert.True(t, st.OwnerLive, "adopted sessions have no owner process to judge")
	assert.Equal(t, "sess-1", st.SessionID)
}

func TestBrokerStatusDeadOwner(t *testing.T) {
	opts := newTestOptions(t)
	b := New(opts, zerolog.Nop())

	store := NewStateStore(opts.StateFile)
	require.NoError(t, store.Write(&SessionRecord{
		Endpoint: "ws://127.0.0.1:9222/devtools/browser/abc",
		Pid:      1 << 30,
	}))

	st, err := b.Status()
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.False(t, st.OwnerLive)
}

func TestBrokerRecordAndHistory(t *testing.T) {
	b := New(newTestOptions(t), zerolog.Nop())

	b.Record("navigated to https://example.com")
	b.Record("clicked 'Sign in'")

	history, err := b.History()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "navigated to https://example.com", history[0].Description)
	assert.Equal(t, "clicked 'Sign in'", history[1].Description)
}

func TestBrokerHistorySharedAcrossInstances(t *testing.T) {
	opts := newTestOptions(t)

	first := New(opts, zerolog.Nop())
	first.Record("step from first process")

	second := New(opts, zerolog.Nop())
	history, err := second.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "step from first process", history[0].Description)
}

func TestBrokerLedgerFallsBackToRing(t *testing.T) {
	opts := newTestOptions(t)
	// A directory at the ledger path makes the database unopenable.
	opts.LedgerPath = t.TempDir()

	b := New(opts, zerolog.Nop())
	b.Record("still recorded")

	history, err := b.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "still recorded", history[0].Description)
}

func TestBrokerCleanupNothingAcquired(t *testing.T) {
	b := New(newTestOptions(t), zerolog.Nop())

	assert.NotPanics(t, func() {
		b.Cleanup(context.Background())
		b.Cleanup(context.Background())
	})
}

func TestBrokerResetClearsHistory(t *testing.T) {
	b := New(newTestOptions(t), zerolog.Nop())

	b.Record("step one")
	b.Reset(context.Background())

	history, err := b.History()
	require.NoError(t, err)
	assert.Empty(t, history)
}

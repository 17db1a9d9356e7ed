package broker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLauncher struct {
	mu     sync.Mutex
	calls  int
	result *LaunchResult
	err    error
}

func (f *fakeLauncher) Launch(ctx context.Context) (*LaunchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeLauncher) launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDialer struct {
	mu      sync.Mutex
	refused map[string]bool
	dials   []string
}

func (f *fakeDialer) Connect(ctx context.Context, endpoint, taggedContextID string) (*Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials = append(f.dials, endpoint)
	if f.refused[endpoint] {
		return nil, &Error{Code: ErrCodeConnectionRefused, Message: "refused"}
	}
	contextID := taggedContextID
	if contextID == "" {
		contextID = "ctx-new"
	}
	return &Conn{ContextID: contextID}, nil
}

func noProbe(ctx context.Context, port int) (string, error) {
	return "", errors.New("port closed")
}

func newTestLocator(t *testing.T, launcher Launcher, dialer Dialer, probe PortProbe) (*SessionLocator, *StateStore) {
	t.Helper()
	store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
	l := NewSessionLocator(store, launcher, dialer, DefaultDebugPort, zerolog.Nop())
	if probe != nil {
		l.probe = probe
	}
	return l, store
}

func TestResolveReconnectsFromRecord(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("must not launch")}
	dialer := &fakeDialer{}
	locator, store := newTestLocator(t, launcher, dialer, noProbe)

	record := &SessionRecord{
		Endpoint:  "ws://127.0.0.1:9222/devtools/browser/live",
		Pid:       os.Getpid(),
		ContextID: "ctx-1",
		SessionID: "s-1",
	}
	require.NoError(t, store.Write(record))

	conn, got, err := locator.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ctx-1", conn.ContextID)
	assert.Equal(t, record.Endpoint, got.Endpoint)
	assert.Zero(t, launcher.launches())
}

func TestResolveDiscardsStaleRecord(t *testing.T) {
	launcher := &fakeLauncher{result: &LaunchResult{Pid: os.Getpid(), Endpoint: "ws://fresh"}}
	dialer := &fakeDialer{}
	locator, store := newTestLocator(t, launcher, dialer, noProbe)

	// Dead owner: the record must be discarded, not surfaced as an error.
	require.NoError(t, store.Write(&SessionRecord{Endpoint: "ws://dead", Pid: 1 << 30}))

	conn, record, err := locator.Resolve(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 1, launcher.launches())
	assert.Equal(t, "ws://fresh", record.Endpoint)

	// The stale endpoint was never dialed.
	assert.NotContains(t, dialer.dials, "ws://dead")

	persisted, ok := store.Read()
	require.True(t, ok)
	assert.Equal(t, "ws://fresh", persisted.Endpoint)
}

func TestResolveDiscardsUnreachableRecord(t *testing.T) {
	launcher := &fakeLauncher{result: &LaunchResult{Pid: os.Getpid(), Endpoint: "ws://fresh"}}
	dialer := &fakeDialer{refused: map[string]bool{"ws://unreachable": true}}
	locator, store := newTestLocator(t, launcher, dialer, noProbe)

	// Owner alive but endpoint refuses: assume stale and fall through.
	require.NoError(t, store.Write(&SessionRecord{Endpoint: "ws://unreachable", Pid: os.Getpid()}))

	_, record, err := locator.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws://fresh", record.Endpoint)
	assert.Equal(t, 1, launcher.launches())
}

func TestResolveAdoptsBrowserOnWellKnownPort(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("must not launch")}
	dialer := &fakeDialer{}
	probe := func(ctx context.Context, port int) (string, error) {
		return "ws://127.0.0.1:9222/devtools/browser/external", nil
	}
	locator, store := newTestLocator(t, launcher, dialer, probe)

	conn, record, err := locator.Resolve(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Zero(t, launcher.launches())

	// The adopted session is persisted so future callers reconnect via the
	// record, with pid 0 marking a browser we did not launch.
	persisted, ok := store.Read()
	require.True(t, ok)
	assert.Equal(t, record.Endpoint, persisted.Endpoint)
	assert.Zero(t, persisted.Pid)
	assert.NotEmpty(t, persisted.SessionID)
}

func TestResolveAllTiersFail(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("spawn failed")}
	locator, _ := newTestLocator(t, launcher, &fakeDialer{}, noProbe)

	_, _, err := locator.Resolve(context.Background())
	require.Error(t, err)

	var brokerErr *Error
	require.ErrorAs(t, err, &brokerErr)
	assert.Equal(t, ErrCodeSessionUnavailable, brokerErr.Code)
}

func TestResolveConcurrentCallersSingleLaunch(t *testing.T) {
	launcher := &fakeLauncher{result: &LaunchResult{Pid: os.Getpid(), Endpoint: "ws://shared"}}
	dialer := &fakeDialer{}

	dir := t.TempDir()
	store := NewStateStore(filepath.Join(dir, "state.json"))
	lockPath := filepath.Join(dir, "broker.lock")
	locator := NewSessionLocator(store, launcher, dialer, DefaultDebugPort, zerolog.Nop())
	locator.probe = noProbe

	const callers = 8
	endpoints := make([]string, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Each caller takes its own lock handle, as separate
			// processes would.
			fl := NewFileLock(lockPath)
			err := fl.WithLock(func() error {
				_, record, err := locator.Resolve(context.Background())
				if err != nil {
					return err
				}
				endpoints[i] = record.Endpoint
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, launcher.launches(), "exactly one launch for N concurrent callers")
	for i := 0; i < callers; i++ {
		assert.Equal(t, "ws://shared", endpoints[i], fmt.Sprintf("caller %d", i))
	}
}

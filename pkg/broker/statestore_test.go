package broker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStoreReadMissing(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))

	record, ok := store.Read()
	assert.False(t, ok)
	assert.Nil(t, record)
}

func TestStateStoreReadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "not json at all"},
		{"empty file", ""},
		{"missing endpoint", `{"pid": 1234}`},
		{"wrong shape", `[1, 2, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			record, ok := NewStateStore(path).Read()
			assert.False(t, ok, "corrupt state must read as no record")
			assert.Nil(t, record)
		})
	}
}

func TestStateStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewStateStore(path)

	record := &SessionRecord{
		Endpoint:  "ws://127.0.0.1:9222/devtools/browser/abc",
		Pid:       4321,
		ContextID: "ctx-1",
		SessionID: "s-1",
	}
	require.NoError(t, store.Write(record))

	got, ok := store.Read()
	require.True(t, ok)
	assert.Equal(t, record, got)
}

func TestStateStoreDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStateStore(path)

	require.NoError(t, store.Write(&SessionRecord{Endpoint: "ws://x", Pid: 1}))
	require.NoError(t, store.Delete())

	_, ok := store.Read()
	assert.False(t, ok)

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete())
}

func TestPidAlive(t *testing.T) {
	assert.True(t, PidAlive(os.Getpid()))
	assert.False(t, PidAlive(0))
	assert.False(t, PidAlive(-5))
	// Max pid on Linux is bounded well below this.
	assert.False(t, PidAlive(1<<30))
}

func TestSessionRecordLaunched(t *testing.T) {
	assert.True(t, (&SessionRecord{Pid: 10}).Launched())
	assert.False(t, (&SessionRecord{Pid: 0}).Launched())
}

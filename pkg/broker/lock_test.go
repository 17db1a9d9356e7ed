package broker

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLockLockUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.lock")
	fl := NewFileLock(path)

	require.NoError(t, fl.Lock())
	require.NoError(t, fl.Unlock())

	// Reusable after unlock.
	require.NoError(t, fl.Lock())
	require.NoError(t, fl.Unlock())
}

func TestFileLockUnlockWithoutLock(t *testing.T) {
	fl := NewFileLock(filepath.Join(t.TempDir(), "broker.lock"))
	assert.NoError(t, fl.Unlock())
}

func TestFileLockTryLockContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.lock")

	fl1 := NewFileLock(path)
	require.NoError(t, fl1.Lock())

	// flock is per open file description, so a second handle contends even
	// within one process.
	fl2 := NewFileLock(path)
	acquired, err := fl2.TryLock()
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, fl1.Unlock())

	acquired, err = fl2.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, fl2.Unlock())
}

func TestFileLockWithLockReleasesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.lock")

	wantErr := errors.New("boom")
	err := NewFileLock(path).WithLock(func() error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	// Lock must be free again despite the error.
	acquired, err := NewFileLock(path).TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestFileLockSerializesCriticalSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.lock")

	var inSection int
	var maxInSection int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fl := NewFileLock(path)
			err := fl.WithLock(func() error {
				mu.Lock()
				inSection++
				if inSection > maxInSection {
					maxInSection = inSection
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inSection--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInSection, "critical section must never overlap")
}

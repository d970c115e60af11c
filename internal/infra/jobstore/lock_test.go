package jobstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagefeed/internal/domain/entity"
)

func TestAcquireLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh.lock")

	first, err := AcquireLock(path)
	require.NoError(t, err)

	_, err = AcquireLock(path)
	assert.ErrorIs(t, err, entity.ErrLockHeld)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release(), "release is idempotent")

	again, err := AcquireLock(path)
	require.NoError(t, err)
	assert.NoError(t, again.Release())
}

func TestAcquireLock_BadPath(t *testing.T) {
	_, err := AcquireLock(filepath.Join(t.TempDir(), "missing", "refresh.lock"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, entity.ErrLockHeld)
}

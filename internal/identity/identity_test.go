package identity

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.FixedZone("x", -7200))
}

func TestEnsure_FirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "container_state", "system_identity.json")

	id, created, err := Ensure(path, fixedClock)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, ledger.IsGeneratedID(id.UserID))
	assert.Equal(t, time.Date(2025, 6, 1, 14, 30, 45, 0, time.UTC), id.InstalledAt)

	// File shape: {"user_id": ..., "installed_at": ISO-8601 UTC}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]string
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, id.UserID, raw["user_id"])
	assert.Equal(t, "2025-06-01T14:30:45Z", raw["installed_at"])
}

func TestEnsure_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system_identity.json")

	first, created, err := Ensure(path, fixedClock)
	require.NoError(t, err)
	require.True(t, created)

	before, err := os.Stat(path)
	require.NoError(t, err)

	laterClock := func() time.Time { return fixedClock().Add(48 * time.Hour) }
	second, created, err := Ensure(path, laterClock)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime(), "second call must not rewrite the file")
}

func TestEnsure_CorruptFileIsNotOverwritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system_identity.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, created, err := Ensure(path, fixedClock)
	require.Error(t, err)
	assert.False(t, created)
	assert.True(t, errors.Is(err, ErrStorage))

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "decode", storageErr.Op)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

func TestEnsure_RejectsUnknownPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system_identity.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"user_id":"unknown","installed_at":"2025-01-01T00:00:00Z"}`), 0o644))

	_, _, err := Ensure(path, fixedClock)
	assert.True(t, errors.Is(err, ErrStorage))
}

func TestEnsure_UnwritableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	dir := filepath.Join(t.TempDir(), "ro")
	require.NoError(t, os.Mkdir(dir, 0o555))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	path := filepath.Join(dir, "system_identity.json")
	_, created, err := Ensure(path, fixedClock)
	require.Error(t, err)
	assert.False(t, created)
	assert.True(t, errors.Is(err, ErrStorage))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial identity may be left behind")
}

func TestEnsure_PathIsFile(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0o644))

	_, _, err := Ensure(filepath.Join(parent, "system_identity.json"), fixedClock)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorage))
}

func TestLoad(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("reads legacy id", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "system_identity.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"user_id":"legacy-user","installed_at":"2024-02-03T04:05:06Z"}`), 0o644))

		id, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "legacy-user", id.UserID)
		assert.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), id.InstalledAt.UTC())
	})
}

package progress

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCursor(jobID string, position uint64) Cursor {
	now := Now()

	return Cursor{
		JobID:            jobID,
		Position:         position,
		FileSize:         4096,
		FileMtime:        1756000000.25,
		Status:           StatusInProgress,
		CreatedAt:        now,
		LastCheckpointAt: now,
	}
}

func TestStore_SaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "events.progress"))

	done := Now()
	completed := sampleCursor("done", 100)
	completed.Status = StatusCompleted
	completed.CompletedAt = &done

	jobs := map[string]Cursor{
		"etl":  sampleCursor("etl", 42),
		"done": completed,
	}

	require.NoError(t, store.Save(jobs))

	got, ok := store.Load()
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, jobs["etl"], got["etl"])
	assert.Equal(t, jobs["done"], got["done"])
	assert.Equal(t, "etl", got["etl"].JobID)
}

func TestStore_Load_Missing(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "absent.progress"))

	_, ok := store.Load()
	assert.False(t, ok)
}

func TestStore_Load_Garbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.progress")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0o600))

	_, ok := NewStore(path).Load()
	assert.False(t, ok)
}

func TestStore_Load_VersionMismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "old.progress")
	require.NoError(t, os.WriteFile(path, []byte(`{"format_version":"0.1","jobs":{}}`), 0o600))

	_, ok := NewStore(path).Load()
	assert.False(t, ok)
}

func TestStore_Load_MissingFields(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "partial.progress")
	payload := `{"format_version":"1.0","jobs":{"etl":{"position":5}}}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	_, ok := NewStore(path).Load()
	assert.False(t, ok)
}

func TestStore_Update_PreservesOtherJobs(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "multi.progress"))

	require.NoError(t, store.Update(sampleCursor("a", 1)))
	require.NoError(t, store.Update(sampleCursor("b", 2)))

	updated := sampleCursor("a", 10)
	require.NoError(t, store.Update(updated))

	jobs, ok := store.Load()
	require.True(t, ok)
	require.Len(t, jobs, 2)
	assert.Equal(t, uint64(10), jobs["a"].Position)
	assert.Equal(t, uint64(2), jobs["b"].Position)
}

func TestStore_Update_StartsEmptyOnMissingFile(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "fresh.progress"))

	require.NoError(t, store.Update(sampleCursor("solo", 0)))

	jobs, ok := store.Load()
	require.True(t, ok)
	require.Len(t, jobs, 1)
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "del.progress"))

	require.NoError(t, store.Update(sampleCursor("keep", 1)))
	require.NoError(t, store.Update(sampleCursor("drop", 2)))

	deleted, err := store.Delete("drop")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete("drop")
	require.NoError(t, err)
	assert.False(t, deleted)

	jobs, ok := store.Load()
	require.True(t, ok)
	require.Len(t, jobs, 1)
	assert.Contains(t, jobs, "keep")
}

func TestStore_Delete_NoFile(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "none.progress"))

	deleted, err := store.Delete("ghost")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCursor_IsStale(t *testing.T) {
	t.Parallel()

	c := Cursor{FileSize: 100, FileMtime: 7.125}

	assert.False(t, c.IsStale(100, 7.125))
	assert.True(t, c.IsStale(99, 7.125))
	assert.True(t, c.IsStale(100, 7.0))
}

func TestCompressedStore_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.progress")
	store := NewCompressedStore(path)

	require.NoError(t, store.Update(sampleCursor("etl", 7)))

	jobs, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, uint64(7), jobs["etl"].Position)

	// A plain store cannot read the compressed frame and soft-fails.
	_, ok = NewStore(path).Load()
	assert.False(t, ok)
}

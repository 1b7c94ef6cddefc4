// Package progress persists per-job cursor state to a companion file. One
// progress file holds the cursors of every job running against the same
// source file; updates are whole-file read-modify-write, so concurrent
// writers to the same path must be serialized by the caller.
package progress

import (
	"fmt"
	"time"

	"github.com/linedex/linedex/pkg/persist"
)

// FormatVersion is the current progress file format version. Files carrying
// any other version are treated as absent.
const FormatVersion = "1.0"

// Status is the lifecycle state of a job cursor.
type Status string

// Job cursor lifecycle states.
const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Cursor is the durable state of one batch-processing job. Position is the
// next unprocessed line number, i.e. the count of lines already consumed
// and checkpointed.
type Cursor struct {
	// JobID is the cursor's key in the progress file; it is not stored
	// inside the record.
	JobID string `json:"-"`

	Position         uint64  `json:"position"`
	FileSize         uint64  `json:"file_size"`
	FileMtime        float64 `json:"file_mtime"`
	Status           Status  `json:"status"`
	CreatedAt        string  `json:"created_at"`
	LastCheckpointAt string  `json:"last_checkpoint_at"`
	CompletedAt      *string `json:"completed_at"`
}

// IsStale reports whether the source file no longer matches the fingerprint
// recorded at the last checkpoint.
func (c Cursor) IsStale(size uint64, mtime float64) bool {
	return c.FileSize != size || c.FileMtime != mtime
}

// Now returns the current time formatted for cursor timestamps.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// envelope is the serialized progress file layout.
type envelope struct {
	FormatVersion string            `json:"format_version"`
	Jobs          map[string]Cursor `json:"jobs"`
}

// Store serializes job cursors to one progress file.
type Store struct {
	path      string
	codec     persist.Codec
	container persist.Container
}

// NewStore creates a store bound to the given progress file path.
func NewStore(path string) *Store {
	return &Store{
		path:      path,
		codec:     persist.NewCompactJSONCodec(),
		container: persist.NopContainer{},
	}
}

// NewCompressedStore creates a store that wraps the progress file in an
// LZ4 frame.
func NewCompressedStore(path string) *Store {
	return &Store{
		path:      path,
		codec:     persist.NewCompactJSONCodec(),
		container: persist.LZ4Container{},
	}
}

// Path returns the progress file location.
func (s *Store) Path() string {
	return s.path
}

// Save fully overwrites the progress file with the given job set. The
// replacement is atomic from the reader's point of view.
func (s *Store) Save(jobs map[string]Cursor) error {
	if jobs == nil {
		jobs = make(map[string]Cursor)
	}

	env := envelope{
		FormatVersion: FormatVersion,
		Jobs:          jobs,
	}

	err := persist.SaveState(s.path, s.codec, s.container, env)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}

	return nil
}

// Load reads all job cursors. The boolean is false, never an error, for
// a missing file, unparsable content, a format version mismatch, or missing
// required fields. Callers start from an empty job set in that case.
func (s *Store) Load() (map[string]Cursor, bool) {
	raw, err := persist.ReadState(s.path, s.container)
	if err != nil {
		return nil, false
	}

	if !validEnvelope(raw) {
		return nil, false
	}

	var env envelope

	decodeErr := s.codec.Unmarshal(raw, &env)
	if decodeErr != nil {
		return nil, false
	}

	if env.FormatVersion != FormatVersion {
		return nil, false
	}

	jobs := make(map[string]Cursor, len(env.Jobs))

	for id, cursor := range env.Jobs {
		cursor.JobID = id
		jobs[id] = cursor
	}

	return jobs, true
}

// Update inserts or replaces one cursor, preserving all other jobs in the
// file: load the whole map (or start empty), mutate one entry, save the
// whole map.
func (s *Store) Update(c Cursor) error {
	jobs, ok := s.Load()
	if !ok {
		jobs = make(map[string]Cursor)
	}

	jobs[c.JobID] = c

	return s.Save(jobs)
}

// Delete removes one job's cursor. It returns true iff the job existed.
func (s *Store) Delete(jobID string) (bool, error) {
	jobs, ok := s.Load()
	if !ok {
		return false, nil
	}

	_, exists := jobs[jobID]
	if !exists {
		return false, nil
	}

	delete(jobs, jobID)

	err := s.Save(jobs)
	if err != nil {
		return false, err
	}

	return true, nil
}

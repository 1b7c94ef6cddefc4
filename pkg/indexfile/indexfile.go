// Package indexfile defines the on-disk format for persisted line indexes:
// a format-versioned JSON envelope carrying index metadata and the line
// table as (offset, length) pairs. Line numbers are implicit in sequence
// position and reconstructed on load.
package indexfile

import (
	"time"

	"github.com/linedex/linedex/pkg/linetab"
	"github.com/linedex/linedex/pkg/persist"
)

// FormatVersion is the current index file format version. Files carrying
// any other version are treated as absent and trigger a rebuild.
const FormatVersion = "1.0"

// entryFields is the number of values per serialized line entry.
const entryFields = 2

// Meta describes an indexed source file.
type Meta struct {
	// FilePath is the absolute path of the indexed file.
	FilePath string `json:"file_path"`

	// FileSize is the source size in bytes at index time.
	FileSize uint64 `json:"file_size"`

	// FileMtime is the source modification time at index time, as
	// fractional Unix seconds.
	FileMtime float64 `json:"file_mtime"`

	// TotalLines is the number of indexed lines.
	TotalLines uint64 `json:"total_lines"`

	// CheckpointInterval is the line spacing of sparse offset checkpoints.
	CheckpointInterval uint32 `json:"checkpoint_interval"`

	// Checkpoints maps line numbers to byte offsets every
	// CheckpointInterval lines. Kept for accelerated seeking; full random
	// access does not depend on it since the whole table stays in memory.
	Checkpoints map[uint64]uint64 `json:"checkpoints"`

	// IndexedAt is the RFC3339 timestamp of the last build or extension.
	IndexedAt string `json:"indexed_at"`

	// Version is the index layout version.
	Version string `json:"version"`
}

// IsFresh reports whether the persisted index still matches the live file.
// The (size, mtime) pair is the fingerprint; matching it means the index
// is adopted as-is without re-reading file contents.
func (m Meta) IsFresh(size uint64, mtime float64) bool {
	return m.FileSize == size && m.FileMtime == mtime
}

// Now returns the current time formatted for Meta.IndexedAt.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// envelope is the serialized index file layout.
type envelope struct {
	FormatVersion string     `json:"format_version"`
	Meta          Meta       `json:"meta"`
	Lines         [][]uint64 `json:"lines"`
}

// Store serializes and deserializes (Meta, Table) pairs.
type Store struct {
	codec     persist.Codec
	container persist.Container
}

// NewStore creates a store with compact JSON encoding and no compression.
func NewStore() *Store {
	return &Store{
		codec:     persist.NewCompactJSONCodec(),
		container: persist.NopContainer{},
	}
}

// NewCompressedStore creates a store that wraps the JSON envelope in an
// LZ4 frame.
func NewCompressedStore() *Store {
	return &Store{
		codec:     persist.NewCompactJSONCodec(),
		container: persist.LZ4Container{},
	}
}

// Save fully overwrites path with the serialized envelope. The replacement
// is atomic from the reader's point of view.
func (s *Store) Save(path string, meta Meta, table *linetab.Table) error {
	entries := table.Entries()
	lines := make([][]uint64, len(entries))

	for i, e := range entries {
		lines[i] = []uint64{e.Offset, e.Length}
	}

	if meta.Checkpoints == nil {
		meta.Checkpoints = make(map[uint64]uint64)
	}

	env := envelope{
		FormatVersion: FormatVersion,
		Meta:          meta,
		Lines:         lines,
	}

	return persist.SaveState(path, s.codec, s.container, env)
}

// Load reads a persisted index. The boolean is false, never an error,
// for a missing file, unparsable content, a format version mismatch,
// missing metadata fields, or malformed table entries. Callers fall back
// to a full rebuild in that case.
func (s *Store) Load(path string) (Meta, *linetab.Table, bool) {
	raw, err := persist.ReadState(path, s.container)
	if err != nil {
		return Meta{}, nil, false
	}

	if !validEnvelope(raw) {
		return Meta{}, nil, false
	}

	var env envelope

	decodeErr := s.codec.Unmarshal(raw, &env)
	if decodeErr != nil {
		return Meta{}, nil, false
	}

	if env.FormatVersion != FormatVersion {
		return Meta{}, nil, false
	}

	if env.Meta.TotalLines != uint64(len(env.Lines)) {
		return Meta{}, nil, false
	}

	table := linetab.New(len(env.Lines))

	for _, pair := range env.Lines {
		if len(pair) != entryFields {
			return Meta{}, nil, false
		}

		table.Append(pair[0], pair[1])
	}

	// Serialized order must equal line order; a reordered table is
	// corruption, not a layout choice.
	validateErr := table.Validate()
	if validateErr != nil {
		return Meta{}, nil, false
	}

	if env.Meta.Checkpoints == nil {
		env.Meta.Checkpoints = make(map[uint64]uint64)
	}

	return env.Meta, table, true
}

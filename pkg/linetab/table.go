// Package linetab holds the in-memory line table: one (offset, length)
// entry per line, indexed by line number. The table is pure data; all file
// I/O lives in the owning index.
package linetab

import (
	"errors"
	"fmt"
)

// ErrNotContiguous is returned by Validate when entries do not form an
// unbroken byte range.
var ErrNotContiguous = errors.New("line table entries are not contiguous")

// Entry describes one line in the source file. Length includes the
// trailing newline byte(s) when present.
type Entry struct {
	Offset uint64
	Length uint64
}

// Table is an ordered sequence of line entries. The line number of an
// entry is its position in the sequence; it is never stored explicitly.
type Table struct {
	entries []Entry
}

// New creates an empty table with the given capacity hint.
func New(capacity int) *Table {
	return &Table{entries: make([]Entry, 0, capacity)}
}

// FromEntries wraps an existing entry slice. The slice is not copied.
func FromEntries(entries []Entry) *Table {
	return &Table{entries: entries}
}

// Append adds an entry for the next line.
func (t *Table) Append(offset, length uint64) {
	t.entries = append(t.entries, Entry{Offset: offset, Length: length})
}

// Len returns the number of indexed lines.
func (t *Table) Len() int {
	return len(t.entries)
}

// At returns the entry for the given position and whether it exists.
func (t *Table) At(i int) (Entry, bool) {
	if i < 0 || i >= len(t.entries) {
		return Entry{}, false
	}

	return t.entries[i], true
}

// Entries exposes the backing slice for serialization. Callers must not
// mutate it.
func (t *Table) Entries() []Entry {
	return t.entries
}

// EndOffset returns the byte offset one past the last indexed line, which
// equals the indexed portion of the file size.
func (t *Table) EndOffset() uint64 {
	if len(t.entries) == 0 {
		return 0
	}

	last := t.entries[len(t.entries)-1]

	return last.Offset + last.Length
}

// Truncate drops all entries at position n and beyond.
func (t *Table) Truncate(n int) {
	if n < 0 || n >= len(t.entries) {
		return
	}

	t.entries = t.entries[:n]
}

// Validate checks the contiguity invariant: the first entry starts at
// offset zero and every entry begins where the previous one ended.
func (t *Table) Validate() error {
	if len(t.entries) == 0 {
		return nil
	}

	if t.entries[0].Offset != 0 {
		return fmt.Errorf("%w: first entry starts at %d", ErrNotContiguous, t.entries[0].Offset)
	}

	for i := 1; i < len(t.entries); i++ {
		prev := t.entries[i-1]

		want := prev.Offset + prev.Length
		if t.entries[i].Offset != want {
			return fmt.Errorf("%w: entry %d starts at %d, want %d",
				ErrNotContiguous, i, t.entries[i].Offset, want)
		}
	}

	return nil
}

package lineindex

import "errors"

// Sentinel errors for index operations.
var (
	// ErrSourceNotFound is returned when the source file is absent at
	// build or open time.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrShrunkFile is returned by Extend when the live file is smaller
	// than the indexed size. Shrink is never resolved incrementally; the
	// caller must Rebuild.
	ErrShrunkFile = errors.New("file shrunk since indexing")

	// ErrOutOfRange is returned for line numbers outside [0, TotalLines).
	ErrOutOfRange = errors.New("line number out of range")

	// ErrCorruptedLine is returned when fewer bytes are available at an
	// indexed offset than the index promised: the file shrank or was
	// rewritten without the index noticing.
	ErrCorruptedLine = errors.New("line data shorter than indexed length")
)

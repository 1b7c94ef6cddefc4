package lineindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/linedex/linedex/pkg/safeconv"
)

// Lookup returns the byte offset and length of the given line. Line
// numbers outside [0, TotalLines) yield ErrOutOfRange.
func (ix *Index) Lookup(line uint64) (uint64, uint64, error) {
	entry, ok := ix.table.At(safeconv.MustUint64ToInt(line))
	if !ok {
		return 0, 0, fmt.Errorf("%w: line %d, total %d", ErrOutOfRange, line, ix.meta.TotalLines)
	}

	return entry.Offset, entry.Length, nil
}

// readerAt is the positional read surface shared by one-shot and keep-open
// handles.
type readerAt interface {
	io.ReaderAt
}

// acquire returns a positional reader for the source file and a release
// function. In keep-open mode the shared handle is reused and release is a
// no-op; otherwise a fresh handle is opened per call.
func (ix *Index) acquire() (readerAt, func() error, error) {
	if ix.file != nil {
		return ix.file, func() error { return nil }, nil
	}

	f, err := os.Open(ix.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrSourceNotFound, ix.path)
		}

		return nil, nil, fmt.Errorf("open source: %w", err)
	}

	return f, f.Close, nil
}

// readLineAt reads exactly one indexed line through r and strips the
// trailing terminator bytes. Results pass through the LRU line cache when
// one is configured.
func (ix *Index) readLineAt(r readerAt, line uint64) (string, error) {
	if ix.lines != nil {
		if text, ok := ix.lines.Get(line); ok {
			return text, nil
		}
	}

	offset, length, err := ix.Lookup(line)
	if err != nil {
		return "", err
	}

	buf := make([]byte, length)

	_, readErr := r.ReadAt(buf, safeconv.MustUint64ToInt64(offset))
	if readErr != nil {
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			return "", fmt.Errorf("%w: line %d at offset %d", ErrCorruptedLine, line, offset)
		}

		return "", fmt.Errorf("read line %d: %w", line, readErr)
	}

	text := trimTerminator(buf)

	if ix.lines != nil {
		ix.lines.Put(line, text)
	}

	return text, nil
}

// trimTerminator drops the trailing "\n" or "\r\n" from a raw line.
func trimTerminator(raw []byte) string {
	n := len(raw)

	if n > 0 && raw[n-1] == '\n' {
		n--
	}

	if n > 0 && raw[n-1] == '\r' {
		n--
	}

	return string(raw[:n])
}

// ReadLine reads one line by number, returning its text without the
// trailing terminator. A short read at the indexed offset yields
// ErrCorruptedLine rather than a silently truncated value.
func (ix *Index) ReadLine(line uint64) (string, error) {
	r, release, err := ix.acquire()
	if err != nil {
		return "", err
	}
	defer release()

	return ix.readLineAt(r, line)
}

// ReadJSON reads one line and unmarshals it into v. Decode errors
// propagate unmodified.
func (ix *Index) ReadJSON(line uint64, v any) error {
	text, err := ix.ReadLine(line)
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(text), v)
}

// ReadMany reads the requested lines in the caller-specified order with a
// single file open. It is a batching optimization over repeated ReadLine
// calls, nothing more.
func (ix *Index) ReadMany(lines []uint64) ([]string, error) {
	r, release, err := ix.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]string, len(lines))

	for i, line := range lines {
		text, readErr := ix.readLineAt(r, line)
		if readErr != nil {
			return nil, readErr
		}

		out[i] = text
	}

	ix.metrics.RecordReads(len(lines))

	return out, nil
}

// ReadJSONMany reads the requested lines as raw JSON records with a single
// file open. A line that is not valid JSON fails the whole call.
func (ix *Index) ReadJSONMany(lines []uint64) ([]json.RawMessage, error) {
	texts, err := ix.ReadMany(lines)
	if err != nil {
		return nil, err
	}

	out := make([]json.RawMessage, len(texts))

	for i, text := range texts {
		raw := json.RawMessage(text)
		if !json.Valid(raw) {
			return nil, fmt.Errorf("line %d: %w", lines[i], errInvalidJSON(text))
		}

		out[i] = raw
	}

	return out, nil
}

// errInvalidJSON produces the decode error for a non-JSON line by running
// the stdlib decoder, so callers see the standard *json.SyntaxError.
func errInvalidJSON(text string) error {
	var v any

	return json.Unmarshal([]byte(text), &v)
}

package lineindex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/linedex/linedex/pkg/safeconv"
)

// Iterator streams lines sequentially from a start position. It seeks once
// to the starting offset and reads forward through a buffered reader; no
// per-line re-seeking happens. Each IterFrom call produces an independent
// iterator with its own file handle, so concurrent iterations are safe.
//
// Usage follows the bufio.Scanner shape:
//
//	it, err := ix.IterFrom(1000)
//	...
//	defer it.Close()
//	for it.Next() {
//		use(it.LineNumber(), it.Text())
//	}
//	err = it.Err()
type Iterator struct {
	ix     *Index
	f      *os.File
	r      *bufio.Reader
	next   uint64
	total  uint64
	text   string
	err    error
	closed bool
}

// IterFrom returns an iterator over lines starting at start. Negative
// starts clamp to zero; a start at or past the end yields an immediately
// exhausted iterator.
func (ix *Index) IterFrom(start int64) (*Iterator, error) {
	if start < 0 {
		start = 0
	}

	it := &Iterator{
		ix:    ix,
		next:  uint64(start),
		total: ix.meta.TotalLines,
	}

	if it.next >= it.total {
		it.closed = true

		return it, nil
	}

	offset, _, err := ix.Lookup(it.next)
	if err != nil {
		return nil, err
	}

	f, openErr := os.Open(ix.path)
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, ix.path)
		}

		return nil, fmt.Errorf("open source: %w", openErr)
	}

	_, seekErr := f.Seek(safeconv.MustUint64ToInt64(offset), io.SeekStart)
	if seekErr != nil {
		f.Close()

		return nil, fmt.Errorf("seek to line %d: %w", it.next, seekErr)
	}

	it.f = f
	it.r = bufio.NewReaderSize(f, ix.opts.readBufferSize)

	return it, nil
}

// Next advances to the following line. It returns false at exhaustion or
// on error; consult Err after the loop.
func (it *Iterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}

	if it.next >= it.total {
		it.Close()

		return false
	}

	_, length, err := it.ix.Lookup(it.next)
	if err != nil {
		it.err = err
		it.Close()

		return false
	}

	buf := make([]byte, length)

	_, readErr := io.ReadFull(it.r, buf)
	if readErr != nil {
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			it.err = fmt.Errorf("%w: line %d", ErrCorruptedLine, it.next)
		} else {
			it.err = fmt.Errorf("read line %d: %w", it.next, readErr)
		}

		it.Close()

		return false
	}

	it.text = trimTerminator(buf)
	it.next++

	return true
}

// LineNumber returns the number of the line most recently produced by Next.
func (it *Iterator) LineNumber() uint64 {
	return it.next - 1
}

// Text returns the line most recently produced by Next, terminator
// stripped.
func (it *Iterator) Text() string {
	return it.text
}

// Err returns the first error encountered, if any. Exhaustion is not an
// error.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the iterator's file handle. It is idempotent and is
// called automatically at exhaustion or on error.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}

	it.closed = true

	if it.f == nil {
		return nil
	}

	f := it.f
	it.f = nil
	it.r = nil

	return f.Close()
}

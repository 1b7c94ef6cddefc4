package lineindex

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/linedex/linedex/pkg/indexfile"
	"github.com/linedex/linedex/pkg/linetab"
	"github.com/linedex/linedex/pkg/safeconv"
)

// lineTerminator is the byte the scanner splits on. A preceding carriage
// return is part of the line's byte length and stripped only when reading.
const lineTerminator = '\n'

// scanState accumulates entries during a sequential scan.
type scanState struct {
	table       *linetab.Table
	checkpoints map[uint64]uint64
	interval    uint64
	nextLine    uint64
	lineStart   uint64
	bytesRead   uint64
}

// emit records one line ending at end (exclusive, terminator included).
func (s *scanState) emit(end uint64) {
	if s.nextLine%s.interval == 0 {
		s.checkpoints[s.nextLine] = s.lineStart
	}

	s.table.Append(s.lineStart, end-s.lineStart)
	s.nextLine++
	s.lineStart = end
}

// scan reads r in fixed-size chunks starting at absolute offset start,
// splitting on terminator bytes. Whatever remains at EOF without a
// terminator becomes one final entry.
func (s *scanState) scan(r io.Reader, start uint64, bufSize int) error {
	buf := make([]byte, bufSize)
	pos := start
	s.lineStart = start

	for {
		n, readErr := r.Read(buf)

		chunk := buf[:n]
		rel := 0

		for {
			i := bytes.IndexByte(chunk[rel:], lineTerminator)
			if i < 0 {
				break
			}

			s.emit(pos + uint64(rel+i) + 1)
			rel += i + 1
		}

		pos += uint64(n)
		s.bytesRead += uint64(n)

		if readErr == io.EOF {
			if s.lineStart < pos {
				s.emit(pos)
			}

			return nil
		}

		if readErr != nil {
			return fmt.Errorf("scan source: %w", readErr)
		}
	}
}

// build scans the whole file once and replaces the table and metadata.
// The fingerprint is taken after the scan completes.
func (ix *Index) build() error {
	started := time.Now()

	f, err := os.Open(ix.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, ix.path)
		}

		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	state := &scanState{
		table:       linetab.New(0),
		checkpoints: make(map[uint64]uint64),
		interval:    uint64(ix.opts.checkpointInterval),
	}

	scanErr := state.scan(f, 0, ix.opts.readBufferSize)
	if scanErr != nil {
		return scanErr
	}

	fp, statErr := Stat(ix.path)
	if statErr != nil {
		return statErr
	}

	ix.table = state.table
	ix.meta = indexfile.Meta{
		FilePath:           ix.path,
		FileSize:           fp.Size,
		FileMtime:          fp.Mtime,
		TotalLines:         safeconv.MustIntToUint64(state.table.Len()),
		CheckpointInterval: ix.opts.checkpointInterval,
		Checkpoints:        state.checkpoints,
		IndexedAt:          indexfile.Now(),
		Version:            indexfile.FormatVersion,
	}

	elapsed := time.Since(started)
	ix.logBuild("index built", ix.meta.TotalLines, state.bytesRead, elapsed)
	ix.metrics.RecordBuild(ix.meta.TotalLines, state.bytesRead, elapsed)

	return nil
}

// Rebuild discards the current table and rebuilds it from scratch,
// persisting the result when auto-save is enabled.
func (ix *Index) Rebuild() error {
	err := ix.build()
	if err != nil {
		return err
	}

	if ix.lines != nil {
		ix.lines.Clear()
	}

	if ix.opts.autoSave {
		return ix.Save()
	}

	return nil
}

// Extend incrementally indexes bytes appended since the last build or
// extension, reading only the range [oldSize, newSize). It returns the
// number of new lines indexed. A shrunken file yields ErrShrunkFile; an
// unchanged size is a no-op returning zero.
func (ix *Index) Extend() (uint64, error) {
	started := time.Now()

	fp, err := Stat(ix.path)
	if err != nil {
		return 0, err
	}

	oldSize := ix.meta.FileSize

	if fp.Size == oldSize {
		return 0, nil
	}

	if fp.Size < oldSize {
		return 0, fmt.Errorf("%w: indexed %d bytes, file now %d bytes; rebuild required",
			ErrShrunkFile, oldSize, fp.Size)
	}

	f, openErr := os.Open(ix.path)
	if openErr != nil {
		return 0, fmt.Errorf("open source: %w", openErr)
	}
	defer f.Close()

	section := io.NewSectionReader(f,
		safeconv.MustUint64ToInt64(oldSize),
		safeconv.MustUint64ToInt64(fp.Size-oldSize))

	state := &scanState{
		table:       ix.table,
		checkpoints: ix.meta.Checkpoints,
		interval:    uint64(ix.opts.checkpointInterval),
		nextLine:    ix.meta.TotalLines,
	}

	scanErr := state.scan(section, oldSize, ix.opts.readBufferSize)
	if scanErr != nil {
		return 0, scanErr
	}

	added := state.nextLine - ix.meta.TotalLines

	ix.meta.TotalLines = state.nextLine
	ix.meta.FileSize = fp.Size
	ix.meta.FileMtime = fp.Mtime
	ix.meta.IndexedAt = indexfile.Now()

	elapsed := time.Since(started)
	ix.logBuild("index extended", added, state.bytesRead, elapsed)
	ix.metrics.RecordExtend(added, state.bytesRead, elapsed)

	if ix.opts.autoSave {
		saveErr := ix.Save()
		if saveErr != nil {
			return 0, saveErr
		}
	}

	return added, nil
}

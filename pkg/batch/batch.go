// Package batch drives resumable iteration over an indexed file, bound to
// one job id. Progress becomes durable only at explicit Checkpoint calls;
// items consumed but not checkpointed are reprocessed after a crash, so
// processing is at-least-once.
//
// One job id has exactly one writer at a time. The package does no
// internal locking; callers running the same job id from multiple
// processes must provide their own mutual exclusion.
package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/linedex/linedex/pkg/lineindex"
	"github.com/linedex/linedex/pkg/observability"
	"github.com/linedex/linedex/pkg/progress"
	"github.com/linedex/linedex/pkg/safeconv"
)

// progressSuffix is the default companion progress file extension.
const progressSuffix = ".progress"

// fullProgress is the percentage reported for an empty file.
const fullProgress = 100.0

// Sentinel errors for session validation.
var (
	// ErrStaleCheckpoint is returned when the stored cursor's fingerprint
	// no longer matches the live file. The job must be reset explicitly
	// before the id can be reused.
	ErrStaleCheckpoint = errors.New("file changed since last checkpoint")

	// ErrInvalidCheckpoint is returned when the stored position exceeds
	// the current index bounds, which means the checkpoint is corrupted
	// or belongs to a different file.
	ErrInvalidCheckpoint = errors.New("checkpoint position exceeds file bounds")

	// ErrSessionClosed is returned by Checkpoint after Close.
	ErrSessionClosed = errors.New("batch session is closed")
)

// Decoder turns one raw line into the record handed to the caller. Decode
// failures propagate through Err; the session never skips silently.
type Decoder func(line string) (any, error)

// DecodeJSON is the default decoder: it validates the line as JSON and
// returns it as a json.RawMessage.
func DecodeJSON(line string) (any, error) {
	var raw json.RawMessage

	err := json.Unmarshal([]byte(line), &raw)
	if err != nil {
		return nil, err
	}

	return raw, nil
}

// DecodeRaw returns the line text unchanged.
func DecodeRaw(line string) (any, error) {
	return line, nil
}

// Option configures a session.
type Option func(*options)

type options struct {
	progressPath string
	decode       Decoder
	logger       *slog.Logger
	metrics      *observability.IndexMetrics
}

// WithProgressPath overrides the progress file location. The default
// replaces the source extension with ".progress".
func WithProgressPath(path string) Option {
	return func(o *options) { o.progressPath = path }
}

// WithDecoder replaces the JSON decoder applied to each line.
func WithDecoder(d Decoder) Option {
	return func(o *options) { o.decode = d }
}

// WithRaw disables decoding; records are raw line strings.
func WithRaw() Option {
	return func(o *options) { o.decode = DecodeRaw }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics attaches OpenTelemetry instruments for checkpoint saves.
func WithMetrics(m *observability.IndexMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// defaultProgressPath derives the progress file path from a source path.
func defaultProgressPath(sourcePath string) string {
	return strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + progressSuffix
}

// Session is one resumable pass over a job. It is not safe for concurrent
// use.
type Session struct {
	ix       *lineindex.Index
	jobID    string
	store    *progress.Store
	cursor   progress.Cursor
	position uint64
	decode   Decoder
	log      *slog.Logger
	metrics  *observability.IndexMetrics

	it        *lineindex.Iterator
	record    any
	line      uint64
	err       error
	exhausted bool
	closed    bool
}

// Open loads or creates the cursor for jobID and validates it against the
// live file. A stored cursor whose fingerprint differs from the file
// yields ErrStaleCheckpoint; a position beyond the index bounds yields
// ErrInvalidCheckpoint. A brand-new job is persisted at position zero
// immediately, so the id is durably claimed before the first checkpoint.
func Open(ix *lineindex.Index, jobID string, opts ...Option) (*Session, error) {
	o := options{decode: DecodeJSON}

	for _, opt := range opts {
		opt(&o)
	}

	if o.progressPath == "" {
		o.progressPath = defaultProgressPath(ix.Path())
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	fp, err := ix.Fingerprint()
	if err != nil {
		return nil, err
	}

	s := &Session{
		ix:      ix,
		jobID:   jobID,
		store:   progress.NewStore(o.progressPath),
		decode:  o.decode,
		log:     o.logger.With(slog.String("job_id", jobID)),
		metrics: o.metrics,
	}

	jobs, ok := s.store.Load()

	cursor, exists := jobs[jobID]
	if ok && exists {
		if cursor.IsStale(fp.Size, fp.Mtime) {
			return nil, fmt.Errorf(
				"%w: job %q expected size=%d mtime=%v, got size=%d mtime=%v; reset the job to restart",
				ErrStaleCheckpoint, jobID,
				cursor.FileSize, cursor.FileMtime, fp.Size, fp.Mtime)
		}

		if cursor.Position > ix.TotalLines() {
			return nil, fmt.Errorf("%w: job %q at position %d, file has %d lines",
				ErrInvalidCheckpoint, jobID, cursor.Position, ix.TotalLines())
		}

		s.cursor = cursor
		s.position = cursor.Position

		if cursor.Status == progress.StatusCompleted {
			// Re-running a finished job yields nothing, never an error.
			s.exhausted = true
		}

		s.log.Debug("job resumed", slog.Uint64("position", s.position))

		return s, nil
	}

	now := progress.Now()
	s.cursor = progress.Cursor{
		JobID:            jobID,
		Position:         0,
		FileSize:         fp.Size,
		FileMtime:        fp.Mtime,
		Status:           progress.StatusInProgress,
		CreatedAt:        now,
		LastCheckpointAt: now,
	}

	updateErr := s.store.Update(s.cursor)
	if updateErr != nil {
		return nil, updateErr
	}

	s.log.Debug("job created")

	return s, nil
}

// Next advances to the following item. It returns false at exhaustion, on
// a read or decode failure (see Err), or after Close.
func (s *Session) Next() bool {
	if s.closed || s.err != nil || s.exhausted {
		return false
	}

	if s.it == nil {
		it, err := s.ix.IterFrom(safeconv.MustUint64ToInt64(s.position))
		if err != nil {
			s.err = err

			return false
		}

		s.it = it
	}

	if !s.it.Next() {
		iterErr := s.it.Err()
		if iterErr != nil {
			s.err = iterErr

			return false
		}

		s.exhausted = true

		return false
	}

	record, decodeErr := s.decode(s.it.Text())
	if decodeErr != nil {
		s.err = decodeErr
		s.it.Close()

		return false
	}

	s.line = s.position
	s.position++
	s.record = record

	return true
}

// LineNumber returns the line number of the item most recently produced by
// Next.
func (s *Session) LineNumber() uint64 {
	return s.line
}

// Record returns the decoded record most recently produced by Next.
func (s *Session) Record() any {
	return s.record
}

// Err returns the first read or decode error encountered, if any.
func (s *Session) Err() error {
	return s.err
}

// Checkpoint persists the current in-memory position. This is the only
// point at which progress becomes durable.
func (s *Session) Checkpoint() error {
	if s.closed {
		return ErrSessionClosed
	}

	s.cursor.Position = s.position
	s.cursor.LastCheckpointAt = progress.Now()

	err := s.store.Update(s.cursor)
	if err != nil {
		return err
	}

	s.metrics.RecordCheckpointSave()
	s.log.Debug("checkpoint saved", slog.Uint64("position", s.position))

	return nil
}

// Close ends the session. If iteration drained naturally with no error,
// the job is marked completed and persisted even without an explicit
// Checkpoint. An early break or an error leaves the last durable
// checkpoint untouched. Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	if s.it != nil {
		s.it.Close()
	}

	if !s.exhausted || s.err != nil || s.cursor.Status == progress.StatusCompleted {
		return nil
	}

	now := progress.Now()
	s.cursor.Position = s.position
	s.cursor.Status = progress.StatusCompleted
	s.cursor.LastCheckpointAt = now
	s.cursor.CompletedAt = &now

	err := s.store.Update(s.cursor)
	if err != nil {
		return err
	}

	s.metrics.RecordCheckpointSave()
	s.log.Debug("job completed", slog.Uint64("position", s.position))

	return nil
}

// JobID returns the job identifier.
func (s *Session) JobID() string {
	return s.jobID
}

// Position returns the next unprocessed line number.
func (s *Session) Position() uint64 {
	return s.position
}

// TotalLines returns the bound index's line count.
func (s *Session) TotalLines() uint64 {
	return s.ix.TotalLines()
}

// Progress returns the completion percentage. An empty file reports 100.
func (s *Session) Progress() float64 {
	total := s.TotalLines()
	if total == 0 {
		return fullProgress
	}

	return float64(s.position) / float64(total) * fullProgress
}

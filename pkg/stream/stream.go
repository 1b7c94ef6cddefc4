// Package stream is a cooperative wrapper over an index for callers that
// drive iteration from a scheduler: reads happen in bounded batches so no
// single hop blocks unboundedly, cancellation is honored between hops, and
// the underlying file handle is released on every exit path, whether a
// normal drain, an early break, or an error.
package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/linedex/linedex/pkg/batch"
	"github.com/linedex/linedex/pkg/lineindex"
)

// DefaultBatchSize is the number of items produced per hop between
// cancellation checks.
const DefaultBatchSize = 100

// Sentinel errors for entry validation.
var (
	// ErrSourceGone is returned when the source file no longer exists.
	ErrSourceGone = errors.New("source file deleted")

	// ErrTruncated is returned when the source file is smaller than the
	// indexed size.
	ErrTruncated = errors.New("source file truncated below indexed size")
)

// DecodeErrorPolicy selects how decode failures are handled mid-stream.
type DecodeErrorPolicy int

// Decode failure policies.
const (
	// Raise stops the stream and surfaces the decode error.
	Raise DecodeErrorPolicy = iota

	// Skip drops undecodable lines silently and continues.
	Skip

	// Raw yields the undecoded line text instead of a decoded record.
	Raw
)

// Record is one streamed item.
type Record struct {
	// Line is the 0-indexed line number.
	Line uint64

	// Value is the decoded record, or the raw line under the Raw policy.
	Value any
}

// Option configures a stream.
type Option func(*options)

type options struct {
	start     int64
	skip      uint64
	limit     int64
	batchSize int
	policy    DecodeErrorPolicy
	decode    batch.Decoder
}

// WithStart sets the first line to stream. Negative values clamp to zero.
func WithStart(line int64) Option {
	return func(o *options) { o.start = line }
}

// WithSkip skips additional lines past the start.
func WithSkip(n uint64) Option {
	return func(o *options) { o.skip = n }
}

// WithLimit caps the number of items yielded. Negative means unlimited.
func WithLimit(n int64) Option {
	return func(o *options) { o.limit = n }
}

// WithBatchSize sets how many items are produced per hop before the
// context is consulted.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithDecodeErrorPolicy selects the decode failure handling.
func WithDecodeErrorPolicy(p DecodeErrorPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithDecoder replaces the JSON decoder applied to each line.
func WithDecoder(d batch.Decoder) Option {
	return func(o *options) { o.decode = d }
}

// Stream is one configured pass over an index. Progress counters are
// updated as the sequence is consumed; a Stream is not safe for concurrent
// use.
type Stream struct {
	ix       *lineindex.Index
	opts     options
	position uint64
	yielded  uint64
}

// New validates the source against the index and returns a stream. A
// deleted source yields ErrSourceGone; a source smaller than the indexed
// size yields ErrTruncated.
func New(ix *lineindex.Index, opts ...Option) (*Stream, error) {
	o := options{
		limit:     -1,
		batchSize: DefaultBatchSize,
		decode:    batch.DecodeJSON,
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.batchSize <= 0 {
		o.batchSize = DefaultBatchSize
	}

	fp, err := ix.Fingerprint()
	if err != nil {
		if errors.Is(err, lineindex.ErrSourceNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSourceGone, ix.Path())
		}

		return nil, err
	}

	if fp.Size < ix.FileSize() {
		return nil, fmt.Errorf("%w: indexed %d bytes, file now %d bytes",
			ErrTruncated, ix.FileSize(), fp.Size)
	}

	return &Stream{ix: ix, opts: o}, nil
}

// Records returns the lazy record sequence. The sequence stops at context
// cancellation (yielding ctx.Err()), at the configured limit, at
// exhaustion, or on the first read error; under the Raise policy a decode
// failure also stops it. The file handle is closed on every exit path.
func (s *Stream) Records(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		start := s.opts.start
		if start < 0 {
			start = 0
		}

		startLine := uint64(start) + s.opts.skip
		s.position = startLine

		it, err := s.ix.IterFrom(safeInt64(startLine))
		if err != nil {
			yield(Record{}, err)

			return
		}
		defer it.Close()

		var produced int64

		sinceHop := 0

		for it.Next() {
			if s.opts.limit >= 0 && produced >= s.opts.limit {
				return
			}

			if sinceHop >= s.opts.batchSize {
				sinceHop = 0

				if ctx.Err() != nil {
					yield(Record{}, ctx.Err())

					return
				}
			}

			sinceHop++

			line := it.LineNumber()
			s.position = line + 1

			value, cont := s.decodeOne(it.Text(), line, yield)
			if !cont {
				return
			}

			if value == nil {
				continue // Skipped line.
			}

			produced++
			s.yielded++

			if !yield(Record{Line: line, Value: *value}, nil) {
				return
			}
		}

		iterErr := it.Err()
		if iterErr != nil {
			yield(Record{}, iterErr)
		}
	}
}

// decodeOne applies the decoder and failure policy to one line. The
// returned pointer is nil when the line is skipped; cont is false when the
// sequence must stop.
func (s *Stream) decodeOne(text string, line uint64, yield func(Record, error) bool) (value *any, cont bool) {
	decoded, err := s.opts.decode(text)
	if err == nil {
		return &decoded, true
	}

	switch s.opts.policy {
	case Skip:
		return nil, true
	case Raw:
		var raw any = text

		return &raw, true
	case Raise:
		fallthrough
	default:
		yield(Record{Line: line}, fmt.Errorf("decode line %d: %w", line, err))

		return nil, false
	}
}

// Position returns the next line number the stream would produce.
func (s *Stream) Position() uint64 {
	return s.position
}

// Yielded returns how many items the stream has produced.
func (s *Stream) Yielded() uint64 {
	return s.yielded
}

// safeInt64 converts a line number for IterFrom; line counts never exceed
// int64 range in practice.
func safeInt64(v uint64) int64 {
	if v > uint64(1)<<62 {
		panic("stream: line number overflow")
	}

	return int64(v)
}

// Package lineindex maintains a byte-offset index over a line-delimited
// record file, giving O(1) random access to any line without parsing the
// whole file. The index persists to a companion file and is adopted on
// open as long as its (size, mtime) fingerprint matches the live file.
//
// Read-only operations (Lookup, ReadLine, ReadMany, IterFrom, Sample) are
// safe to run concurrently. Extend and Rebuild mutate index state with no
// internal locking; callers must serialize them against everything else.
package lineindex

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/linedex/linedex/pkg/cache"
	"github.com/linedex/linedex/pkg/indexfile"
	"github.com/linedex/linedex/pkg/linetab"
	"github.com/linedex/linedex/pkg/observability"
)

const (
	// DefaultCheckpointInterval is the line spacing of sparse offset
	// checkpoints recorded in the index metadata.
	DefaultCheckpointInterval = 100

	// DefaultReadBufferSize is the fixed read size used when scanning the
	// source file.
	DefaultReadBufferSize = 256 * 1024

	// indexSuffix is the default companion file extension.
	indexSuffix = ".idx"
)

// Option configures an Index.
type Option func(*options)

type options struct {
	indexPath          string
	checkpointInterval uint32
	readBufferSize     int
	autoSave           bool
	keepOpen           bool
	compression        bool
	cacheSize          int64
	logger             *slog.Logger
	metrics            *observability.IndexMetrics
}

// WithIndexPath overrides the companion index file location. The default
// replaces the source extension with ".idx".
func WithIndexPath(path string) Option {
	return func(o *options) { o.indexPath = path }
}

// WithCheckpointInterval sets the sparse checkpoint spacing in lines.
func WithCheckpointInterval(interval uint32) Option {
	return func(o *options) { o.checkpointInterval = interval }
}

// WithReadBufferSize sets the fixed read size for index scans.
func WithReadBufferSize(size int) Option {
	return func(o *options) { o.readBufferSize = size }
}

// WithAutoSave controls whether the index persists itself after builds and
// extensions. Enabled by default.
func WithAutoSave(enabled bool) Option {
	return func(o *options) { o.autoSave = enabled }
}

// WithKeepOpen keeps one file handle open across the index lifetime for
// repeated-read efficiency. Reads go through positional ReadAt calls, so
// concurrent readers can share the handle.
func WithKeepOpen(enabled bool) Option {
	return func(o *options) { o.keepOpen = enabled }
}

// WithCompression wraps the persisted index in an LZ4 frame.
func WithCompression(enabled bool) Option {
	return func(o *options) { o.compression = enabled }
}

// WithCacheSize enables an in-memory LRU line cache with the given byte
// budget. Zero disables caching.
func WithCacheSize(bytes int64) Option {
	return func(o *options) { o.cacheSize = bytes }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics attaches OpenTelemetry instruments for index operations.
func WithMetrics(m *observability.IndexMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// Index is the authoritative byte-offset map for one source file.
type Index struct {
	path      string
	indexPath string
	opts      options
	store     *indexfile.Store
	meta      indexfile.Meta
	table     *linetab.Table
	file      *os.File
	lines     *cache.LRULineCache
	log       *slog.Logger
	metrics   *observability.IndexMetrics
}

// Open loads the persisted index for path if its fingerprint matches the
// live file, and builds it from scratch otherwise. A fresh build is saved
// to the companion file unless auto-save is disabled.
func Open(path string, opts ...Option) (*Index, error) {
	o := options{
		checkpointInterval: DefaultCheckpointInterval,
		readBufferSize:     DefaultReadBufferSize,
		autoSave:           true,
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.checkpointInterval == 0 {
		o.checkpointInterval = DefaultCheckpointInterval
	}

	if o.readBufferSize <= 0 {
		o.readBufferSize = DefaultReadBufferSize
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}

	if o.indexPath == "" {
		o.indexPath = defaultIndexPath(abs)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	store := indexfile.NewStore()
	if o.compression {
		store = indexfile.NewCompressedStore()
	}

	ix := &Index{
		path:      abs,
		indexPath: o.indexPath,
		opts:      o,
		store:     store,
		log:       o.logger.With(slog.String("source", abs)),
		metrics:   o.metrics,
	}

	if o.cacheSize > 0 {
		ix.lines = cache.NewLRULineCache(o.cacheSize)
	}

	loadErr := ix.loadOrBuild()
	if loadErr != nil {
		return nil, loadErr
	}

	if o.keepOpen {
		f, openErr := os.Open(abs)
		if openErr != nil {
			return nil, fmt.Errorf("open source: %w", openErr)
		}

		ix.file = f
	}

	return ix, nil
}

// defaultIndexPath replaces the source extension with the index suffix.
func defaultIndexPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + indexSuffix
}

// loadOrBuild adopts a persisted index with a matching fingerprint and
// falls back to a full build otherwise. A matching fingerprint is the
// trust boundary: contents are not re-verified byte for byte.
func (ix *Index) loadOrBuild() error {
	fp, err := Stat(ix.path)
	if err != nil {
		return err
	}

	meta, table, ok := ix.store.Load(ix.indexPath)
	if ok && meta.IsFresh(fp.Size, fp.Mtime) {
		ix.meta = meta
		ix.table = table

		ix.log.Debug("index loaded",
			slog.Uint64("total_lines", meta.TotalLines),
			slog.String("index_path", ix.indexPath))

		return nil
	}

	buildErr := ix.build()
	if buildErr != nil {
		return buildErr
	}

	if ix.opts.autoSave {
		return ix.Save()
	}

	return nil
}

// TotalLines returns the number of indexed lines.
func (ix *Index) TotalLines() uint64 {
	return ix.meta.TotalLines
}

// FileSize returns the source size in bytes recorded at the last build or
// extension.
func (ix *Index) FileSize() uint64 {
	return ix.meta.FileSize
}

// Path returns the absolute source file path.
func (ix *Index) Path() string {
	return ix.path
}

// IndexPath returns the companion index file location.
func (ix *Index) IndexPath() string {
	return ix.indexPath
}

// Meta returns a copy of the index metadata.
func (ix *Index) Meta() indexfile.Meta {
	return ix.meta
}

// CacheStats reports line cache counters. The zero value is returned when
// caching is disabled.
func (ix *Index) CacheStats() cache.LRUStats {
	if ix.lines == nil {
		return cache.LRUStats{}
	}

	return ix.lines.Stats()
}

// Fingerprint reads the live file's current fingerprint.
func (ix *Index) Fingerprint() (Fingerprint, error) {
	return Stat(ix.path)
}

// Save persists the index to its companion file, fully replacing any
// previous contents.
func (ix *Index) Save() error {
	err := ix.store.Save(ix.indexPath, ix.meta, ix.table)
	if err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	return nil
}

// Close releases the keep-open file handle, if any.
func (ix *Index) Close() error {
	if ix.file == nil {
		return nil
	}

	f := ix.file
	ix.file = nil

	return f.Close()
}

// logBuild emits a structured record for a completed scan.
func (ix *Index) logBuild(op string, lines, bytes uint64, elapsed time.Duration) {
	ix.log.Info(op,
		slog.Uint64("lines", lines),
		slog.String("bytes", humanize.Bytes(bytes)),
		slog.Duration("elapsed", elapsed))
}

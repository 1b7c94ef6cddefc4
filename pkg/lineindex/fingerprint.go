package lineindex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/linedex/linedex/pkg/safeconv"
)

// nanosPerSecond converts between time.Time nanoseconds and fractional
// Unix seconds.
const nanosPerSecond = 1e9

// Fingerprint is the (size, mtime) pair that decides whether a persisted
// index or checkpoint still matches its source file. Matching fingerprints
// are trusted; file contents are not re-verified.
type Fingerprint struct {
	Size  uint64
	Mtime float64
}

// Stat reads the current fingerprint of the file at path. A missing file
// yields ErrSourceNotFound.
func Stat(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Fingerprint{}, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}

		return Fingerprint{}, fmt.Errorf("stat source: %w", err)
	}

	return Fingerprint{
		Size:  safeconv.MustInt64ToUint64(info.Size()),
		Mtime: mtimeSeconds(info.ModTime()),
	}, nil
}

// mtimeSeconds converts a modification time to fractional Unix seconds,
// preserving sub-millisecond precision.
func mtimeSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / nanosPerSecond
}

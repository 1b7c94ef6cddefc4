package batch

import (
	"sort"
	"time"

	"github.com/linedex/linedex/pkg/lineindex"
	"github.com/linedex/linedex/pkg/progress"
)

// JobInfo is the read-only view of one job exposed to callers.
type JobInfo struct {
	JobID            string
	Position         uint64
	Status           progress.Status
	TotalLines       uint64
	ProgressPct      float64
	CreatedAt        time.Time
	LastCheckpointAt time.Time
	CompletedAt      *time.Time
	IsStale          bool
}

// resolvePath applies the default progress path when none is given.
func resolvePath(ix *lineindex.Index, path string) string {
	if path == "" {
		return defaultProgressPath(ix.Path())
	}

	return path
}

// ListJobs returns every known job for the index's source file, sorted by
// job id. A missing or malformed progress file yields an empty list.
func ListJobs(ix *lineindex.Index, path string) ([]JobInfo, error) {
	store := progress.NewStore(resolvePath(ix, path))

	jobs, ok := store.Load()
	if !ok {
		return []JobInfo{}, nil
	}

	fp, err := ix.Fingerprint()
	if err != nil {
		return nil, err
	}

	out := make([]JobInfo, 0, len(jobs))
	for _, cursor := range jobs {
		out = append(out, toJobInfo(ix, cursor, fp))
	}

	sort.Slice(out, func(a, b int) bool { return out[a].JobID < out[b].JobID })

	return out, nil
}

// GetJob returns one job's info and whether it exists.
func GetJob(ix *lineindex.Index, jobID, path string) (JobInfo, bool, error) {
	store := progress.NewStore(resolvePath(ix, path))

	jobs, ok := store.Load()
	if !ok {
		return JobInfo{}, false, nil
	}

	cursor, exists := jobs[jobID]
	if !exists {
		return JobInfo{}, false, nil
	}

	fp, err := ix.Fingerprint()
	if err != nil {
		return JobInfo{}, false, err
	}

	return toJobInfo(ix, cursor, fp), true, nil
}

// ResetJob deletes the job's cursor entirely; a subsequent Open behaves as
// if the job never existed. It returns true iff the job was found.
func ResetJob(ix *lineindex.Index, jobID, path string) (bool, error) {
	store := progress.NewStore(resolvePath(ix, path))

	return store.Delete(jobID)
}

// DeleteCompleted removes every completed job for the index's source file
// and returns how many were deleted.
func DeleteCompleted(ix *lineindex.Index, path string) (int, error) {
	store := progress.NewStore(resolvePath(ix, path))

	jobs, ok := store.Load()
	if !ok {
		return 0, nil
	}

	deleted := 0

	for id, cursor := range jobs {
		if cursor.Status == progress.StatusCompleted {
			delete(jobs, id)
			deleted++
		}
	}

	if deleted == 0 {
		return 0, nil
	}

	err := store.Save(jobs)
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// toJobInfo converts a stored cursor into the exposed view, computing
// staleness against the live fingerprint.
func toJobInfo(ix *lineindex.Index, cursor progress.Cursor, fp lineindex.Fingerprint) JobInfo {
	total := ix.TotalLines()

	pct := fullProgress
	if total > 0 {
		pct = float64(cursor.Position) / float64(total) * fullProgress
	}

	info := JobInfo{
		JobID:            cursor.JobID,
		Position:         cursor.Position,
		Status:           cursor.Status,
		TotalLines:       total,
		ProgressPct:      pct,
		CreatedAt:        parseTime(cursor.CreatedAt),
		LastCheckpointAt: parseTime(cursor.LastCheckpointAt),
		IsStale:          cursor.IsStale(fp.Size, fp.Mtime),
	}

	if cursor.CompletedAt != nil {
		t := parseTime(*cursor.CompletedAt)
		info.CompletedAt = &t
	}

	return info
}

// parseTime reads a stored timestamp, returning the zero time for
// unparsable values rather than failing a listing.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}

	return t
}

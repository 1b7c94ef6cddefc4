package lineindex

import (
	"encoding/json"
	"math/rand/v2"
	"sort"

	"github.com/linedex/linedex/pkg/safeconv"
)

// SampleOption configures one Sample call.
type SampleOption func(*sampleOptions)

type sampleOptions struct {
	seed   uint64
	seeded bool
}

// WithSeed makes the draw deterministic: the same seed on an unchanged
// file returns bit-identical output, order included.
func WithSeed(seed uint64) SampleOption {
	return func(o *sampleOptions) {
		o.seed = seed
		o.seeded = true
	}
}

// Sample returns n records drawn uniformly without replacement, in random
// draw order. The draw is clamped to TotalLines. The selected lines are
// read in ascending order for sequential disk access, then permuted back
// into draw order before returning.
func (ix *Index) Sample(n int, opts ...SampleOption) ([]json.RawMessage, error) {
	var o sampleOptions

	for _, opt := range opts {
		opt(&o)
	}

	total := ix.meta.TotalLines
	if total == 0 || n <= 0 {
		return []json.RawMessage{}, nil
	}

	if safeconv.MustIntToUint64(n) > total {
		n = safeconv.MustUint64ToInt(total)
	}

	var rng *rand.Rand
	if o.seeded {
		rng = rand.New(rand.NewPCG(o.seed, o.seed))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	draws := drawWithoutReplacement(rng, total, n)

	// Phase one: read in ascending line order.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	sort.Slice(order, func(a, b int) bool {
		return draws[order[a]] < draws[order[b]]
	})

	sorted := make([]uint64, n)
	for i, idx := range order {
		sorted[i] = draws[idx]
	}

	records, err := ix.ReadJSONMany(sorted)
	if err != nil {
		return nil, err
	}

	// Phase two: restore the original draw order.
	out := make([]json.RawMessage, n)
	for i, idx := range order {
		out[idx] = records[i]
	}

	return out, nil
}

// drawWithoutReplacement selects n distinct values from [0, total) in draw
// order using a sparse partial Fisher–Yates shuffle, so memory stays O(n)
// even for very large files.
func drawWithoutReplacement(rng *rand.Rand, total uint64, n int) []uint64 {
	draws := make([]uint64, n)
	swapped := make(map[uint64]uint64, n)

	for i := range n {
		pos := safeconv.MustIntToUint64(i)
		j := pos + rng.Uint64N(total-pos)

		vj, ok := swapped[j]
		if !ok {
			vj = j
		}

		vi, ok := swapped[pos]
		if !ok {
			vi = pos
		}

		draws[i] = vj
		swapped[j] = vi
	}

	return draws
}

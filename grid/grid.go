// Package grid implements the sampling grid: a regular time axis (start, step,
// count) plus the dropped and cropped exceptions that mark indices without data.
//
// # Index spaces
//
// A logical index addresses every nominal sample in [0, Count). Some logical
// indices are invalid:
//
//   - Dropped: the acquisition hardware skipped the sample, nothing was recorded.
//   - Cropped: the user excluded a range after the fact.
//
// Files never store invalid samples, so the physical position of logical index i is
// its recorded index: the number of valid indices strictly below i.
//
//	logical:   0  1  2  3  4  5  6
//	dropped:         x
//	cropped:                  [5, 7)
//	recorded:  0  1  -  2  3  -  -
//
// Grid is a value type. Methods with pointer receivers mutate the exception sets;
// everything else is pure.
package grid

import (
	"fmt"
	"iter"
	"slices"
	"sort"

	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/timebase"
)

// Range is a half-open range [Lo, Hi) of logical indices.
type Range struct {
	Lo uint64 `yaml:"lo"`
	Hi uint64 `yaml:"hi"`
}

// Len returns the number of indices in the range.
func (r Range) Len() uint64 {
	if r.Hi <= r.Lo {
		return 0
	}

	return r.Hi - r.Lo
}

// Contains reports whether i lies in [Lo, Hi).
func (r Range) Contains(i uint64) bool {
	return i >= r.Lo && i < r.Hi
}

// Grid is a sampling grid.
type Grid struct {
	// Start is the start time of sample 0's window.
	Start timebase.Time `yaml:"start"`
	// Step is the fixed sampling period.
	Step timebase.Duration `yaml:"step"`
	// Count is the nominal number of samples, valid or not.
	Count uint64 `yaml:"count"`
	// Dropped holds the sorted dropped indices.
	Dropped []uint64 `yaml:"dropped,flow"`
	// Cropped holds sorted, non-overlapping cropped ranges.
	Cropped []Range `yaml:"cropped"`
}

// New returns a grid without exceptions.
func New(start timebase.Time, step timebase.Duration, count uint64) Grid {
	return Grid{Start: start, Step: step, Count: count}
}

// Clone returns a deep copy of g.
func (g Grid) Clone() Grid {
	g.Dropped = slices.Clone(g.Dropped)
	g.Cropped = slices.Clone(g.Cropped)

	return g
}

// Duration returns Step*Count.
func (g Grid) Duration() timebase.Duration {
	return g.Step.MulUint(g.Count)
}

// End returns the end of the last sample's window.
func (g Grid) End() timebase.Time {
	return g.Start.Add(g.Duration())
}

func (g Grid) clamp(i uint64) uint64 {
	if g.Count == 0 {
		return 0
	}

	return min(i, g.Count-1)
}

// TimeToIndex returns the index whose window centre is closest to t.
//
// Ties resolve to the larger index. Times before Start clamp to 0 and times after
// the last window clamp to Count-1. Returns 0 for an empty grid.
func (g Grid) TimeToIndex(t timebase.Time) uint64 {
	if g.Count == 0 || g.Step.Sign() <= 0 {
		return 0
	}

	// Centre k sits at k+1/2 steps, so the nearest centre with ties going up
	// is floor((t-start)/step).
	k := t.Sub(g.Start).FloorDiv(g.Step)
	if k < 0 {
		return 0
	}

	return g.clamp(uint64(k))
}

// IndexToStartTime returns the start of window i, with i clamped to the grid.
func (g Grid) IndexToStartTime(i uint64) timebase.Time {
	return g.Start.Add(g.Step.MulUint(g.clamp(i)))
}

// IndexToMidTime returns the centre of window i, with i clamped to the grid.
func (g Grid) IndexToMidTime(i uint64) timebase.Time {
	return g.IndexToStartTime(i).Add(g.Step.Half())
}

// IsDropped reports whether i is a dropped index.
func (g Grid) IsDropped(i uint64) bool {
	_, found := slices.BinarySearch(g.Dropped, i)
	return found
}

// IsCropped reports whether i is covered by a cropped range.
func (g Grid) IsCropped(i uint64) bool {
	k := sort.Search(len(g.Cropped), func(n int) bool { return g.Cropped[n].Hi > i })
	return k < len(g.Cropped) && g.Cropped[k].Contains(i)
}

// IsValid reports whether i is inside the grid and neither dropped nor cropped.
func (g Grid) IsValid(i uint64) bool {
	return i < g.Count && !g.IsDropped(i) && !g.IsCropped(i)
}

// invalidBelow returns the number of invalid indices strictly below i.
func (g Grid) invalidBelow(i uint64) uint64 {
	n, _ := slices.BinarySearch(g.Dropped, i)
	invalid := uint64(n)

	for _, r := range g.Cropped {
		if r.Lo >= i {
			break
		}
		invalid += min(r.Hi, i) - r.Lo
	}

	return invalid
}

// ValidCount returns the number of valid indices.
func (g Grid) ValidCount() uint64 {
	return g.Count - g.invalidBelow(g.Count)
}

// RecordedIndex returns the number of valid indices strictly below i, which is the
// physical position of logical index i in a file that skips invalid samples.
//
// i must be valid. Under the debug build tag an invalid i panics; otherwise the
// result is clamped to the last recorded position.
func (g Grid) RecordedIndex(i uint64) uint64 {
	if !g.IsValid(i) {
		if debugAssertions {
			panic(fmt.Sprintf("grid: RecordedIndex(%d) called on an invalid index", i))
		}

		i = min(i, g.Count)
		rank := i - g.invalidBelow(i)
		if valid := g.ValidCount(); valid > 0 && rank >= valid {
			return valid - 1
		}

		return rank
	}

	return i - g.invalidBelow(i)
}

// ValidIndices iterates over valid indices in ascending order.
func (g Grid) ValidIndices() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		d, c := 0, 0
		for i := uint64(0); i < g.Count; i++ {
			for d < len(g.Dropped) && g.Dropped[d] < i {
				d++
			}
			for c < len(g.Cropped) && g.Cropped[c].Hi <= i {
				c++
			}
			if d < len(g.Dropped) && g.Dropped[d] == i {
				continue
			}
			if c < len(g.Cropped) && g.Cropped[c].Contains(i) {
				continue
			}
			if !yield(i) {
				return
			}
		}
	}
}

// SetDropped replaces the dropped set with newDropped minus every index already
// covered by a cropped range. Cropping takes precedence so a sample is never
// counted twice. Indices outside the grid are discarded.
func (g *Grid) SetDropped(newDropped []uint64) {
	dropped := make([]uint64, 0, len(newDropped))
	for _, i := range newDropped {
		if i < g.Count && !g.IsCropped(i) {
			dropped = append(dropped, i)
		}
	}
	slices.Sort(dropped)
	g.Dropped = slices.Compact(dropped)
}

// SetCropped replaces the cropped ranges. Ranges are clipped to the grid, sorted
// and merged; dropped indices now covered by a crop are removed.
func (g *Grid) SetCropped(ranges []Range) {
	clipped := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		r.Hi = min(r.Hi, g.Count)
		if r.Len() > 0 {
			clipped = append(clipped, r)
		}
	}
	slices.SortFunc(clipped, func(a, b Range) int {
		switch {
		case a.Lo < b.Lo:
			return -1
		case a.Lo > b.Lo:
			return 1
		default:
			return 0
		}
	})

	merged := clipped[:0]
	for _, r := range clipped {
		if n := len(merged); n > 0 && r.Lo <= merged[n-1].Hi {
			merged[n-1].Hi = max(merged[n-1].Hi, r.Hi)
			continue
		}
		merged = append(merged, r)
	}
	g.Cropped = merged

	g.SetDropped(g.Dropped)
}

// Equal reports whether g and o are exactly equal: start, step, count and both
// exception sets.
func (g Grid) Equal(o Grid) bool {
	if g.Count != o.Count || !g.Start.Equal(o.Start) || !g.Step.Equal(o.Step) {
		return false
	}

	return slices.Equal(g.Dropped, o.Dropped) && slices.Equal(g.Cropped, o.Cropped)
}

// OverlapsWith reports whether the time spans of g and o intersect.
func (g Grid) OverlapsWith(o Grid) bool {
	return !(g.Start.Cmp(o.End()) >= 0 || g.End().Cmp(o.Start) <= 0)
}

// Validate checks the grid invariants.
func (g Grid) Validate() error {
	if g.Count > 0 && g.Step.Sign() <= 0 {
		return fmt.Errorf("%w: step %s must be positive", errs.ErrInvalidGrid, g.Step)
	}

	for k, i := range g.Dropped {
		if i >= g.Count {
			return fmt.Errorf("%w: dropped index %d outside [0, %d)", errs.ErrInvalidGrid, i, g.Count)
		}
		if k > 0 && g.Dropped[k-1] >= i {
			return fmt.Errorf("%w: dropped indices not strictly sorted at %d", errs.ErrInvalidGrid, k)
		}
	}

	for k, r := range g.Cropped {
		if r.Len() == 0 || r.Hi > g.Count {
			return fmt.Errorf("%w: cropped range [%d, %d) outside [0, %d)", errs.ErrInvalidGrid, r.Lo, r.Hi, g.Count)
		}
		if k > 0 && g.Cropped[k-1].Hi > r.Lo {
			return fmt.Errorf("%w: cropped ranges overlap or are unsorted at %d", errs.ErrInvalidGrid, k)
		}
	}

	for _, i := range g.Dropped {
		if g.IsCropped(i) {
			return fmt.Errorf("%w: index %d is both dropped and cropped", errs.ErrInvalidGrid, i)
		}
	}

	return nil
}

// String returns a short description for logs.
func (g Grid) String() string {
	return fmt.Sprintf("grid{start=%s step=%s count=%d dropped=%d cropped=%d}",
		g.Start, g.Step, g.Count, len(g.Dropped), len(g.Cropped))
}

// Package series maps indices and times across an ordered list of sampling grids
// and decides whether a new member may join an existing series.
//
// A series is a list of grids, one per file, ordered by start time and pairwise
// non-overlapping. A global index addresses the concatenation of every segment's
// nominal samples, valid or not:
//
//	segment:   0        1           2
//	counts:    3        4           5
//	global:    0 1 2    3 4 5 6     7 8 9 10 11
//
// Out-of-range global indices clamp to TotalCount-1, the last nominal sample of the
// last segment. That sample may itself be invalid; callers that need data check
// validity on the owning segment's grid.
package series

import (
	"github.com/arloliu/tracefile/grid"
	"github.com/arloliu/tracefile/timebase"
)

// Position addresses one sample of one segment.
type Position struct {
	Segment int
	Local   uint64
}

// TotalCount returns the sum of all segment counts.
func TotalCount(segs []grid.Grid) uint64 {
	var total uint64
	for i := range segs {
		total += segs[i].Count
	}

	return total
}

// TotalDuration returns the sum of Step*Count over all segments, excluding the
// wall-clock gaps between them.
func TotalDuration(segs []grid.Grid) timebase.Duration {
	var total timebase.Duration
	for i := range segs {
		total = total.Add(segs[i].Duration())
	}

	return total
}

// Offsets returns the global index of each segment's first sample.
func Offsets(segs []grid.Grid) []uint64 {
	offsets := make([]uint64, len(segs))

	var acc uint64
	for i := range segs {
		offsets[i] = acc
		acc += segs[i].Count
	}

	return offsets
}

// Locate resolves a global index to its segment and local index.
//
// Global indices at or beyond TotalCount clamp to TotalCount-1. Empty segments
// never own an index. An empty series returns the zero Position.
func Locate(segs []grid.Grid, global uint64) Position {
	total := TotalCount(segs)
	if total == 0 {
		return Position{}
	}
	global = min(global, total-1)

	var before uint64
	for i := range segs {
		if global < before+segs[i].Count {
			return Position{Segment: i, Local: global - before}
		}
		before += segs[i].Count
	}

	// unreachable: global < total
	return Position{Segment: len(segs) - 1, Local: segs[len(segs)-1].Count - 1}
}

// LocateTime resolves an absolute time to a segment and local index.
//
// Times before the first segment clamp to it, times after the last segment clamp
// to it. A time falling in the gap between two segments belongs to the earlier
// one and clamps to its last sample. Empty segments never own a time, matching
// Locate. A series with no samples returns the zero Position.
func LocateTime(segs []grid.Grid, t timebase.Time) Position {
	seg := -1
	for i := range segs {
		if segs[i].Count == 0 {
			continue
		}
		if seg >= 0 && t.Cmp(segs[i].Start) < 0 {
			break
		}
		seg = i
	}
	if seg < 0 {
		return Position{}
	}

	return Position{Segment: seg, Local: segs[seg].TimeToIndex(t)}
}

// GlobalIndex is the inverse of Locate. The segment is clamped to the series and
// the local index to the segment.
func GlobalIndex(segs []grid.Grid, segment int, local uint64) uint64 {
	if len(segs) == 0 {
		return 0
	}
	segment = max(0, min(segment, len(segs)-1))

	var before uint64
	for i := 0; i < segment; i++ {
		before += segs[i].Count
	}

	if c := segs[segment].Count; c > 0 {
		local = min(local, c-1)
	} else {
		local = 0
	}

	return before + local
}

// GlobalIndexAt returns the global index of the sample nearest to t.
func GlobalIndexAt(segs []grid.Grid, t timebase.Time) uint64 {
	pos := LocateTime(segs, t)
	return GlobalIndex(segs, pos.Segment, pos.Local)
}

// GaplessGrid returns one synthetic grid covering the series without wall-clock
// gaps: start and step come from the first segment and count is TotalCount.
// Each segment's dropped indices and cropped ranges are carried over, shifted by
// the segment's global offset.
func GaplessGrid(segs []grid.Grid) grid.Grid {
	if len(segs) == 0 {
		return grid.Grid{}
	}

	g := grid.New(segs[0].Start, segs[0].Step, TotalCount(segs))

	var dropped []uint64
	var cropped []grid.Range
	for i, off := range Offsets(segs) {
		for _, d := range segs[i].Dropped {
			dropped = append(dropped, off+d)
		}
		for _, r := range segs[i].Cropped {
			cropped = append(cropped, grid.Range{Lo: off + r.Lo, Hi: off + r.Hi})
		}
	}
	g.SetCropped(cropped)
	g.SetDropped(dropped)

	return g
}

package series

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/grid"
	"github.com/arloliu/tracefile/internal/hash"
	"github.com/arloliu/tracefile/timebase"
)

// Shape is the spatial shape of the imaging data behind a member.
type Shape struct {
	Width      uint32  `yaml:"width"`
	Height     uint32  `yaml:"height"`
	PixelSizeX float64 `yaml:"pixel_size_x"` // micrometres per pixel
	PixelSizeY float64 `yaml:"pixel_size_y"`
}

// Equal reports exact equality.
func (s Shape) Equal(o Shape) bool {
	return s.Width == o.Width && s.Height == o.Height &&
		floatBitsEqual(s.PixelSizeX, o.PixelSizeX) && floatBitsEqual(s.PixelSizeY, o.PixelSizeY)
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d px @ %gx%g um", s.Width, s.Height, s.PixelSizeX, s.PixelSizeY)
}

func floatBitsEqual(a, b float64) bool {
	return math.Float64bits(a) == math.Float64bits(b)
}

// History is the ordered list of processing steps that produced a member.
type History []string

// Signature returns the lineage hash of the history.
func (h History) Signature() uint64 {
	return hash.Signature(h)
}

// Member describes one file of a series for compatibility checks.
type Member struct {
	Name    string
	Grid    grid.Grid
	Shape   Shape
	Kind    format.DataKind
	History History
}

// Rule names the compatibility check that rejected a candidate.
type Rule string

const (
	RuleKind    Rule = "kind"
	RuleShape   Rule = "shape"
	RuleHistory Rule = "history"
	RuleOverlap Rule = "overlap"
	// RuleCount rejects members whose record or channel count differs from the
	// series. It is checked by the stores that know their counts.
	RuleCount Rule = "count"
)

// IncompatibleError is returned by CanAppend. It wraps errs.ErrSeriesIncompatible.
type IncompatibleError struct {
	Rule     Rule
	Reason   string
	Existing int // index of the conflicting existing member
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("%s: %s rule: %s", errs.ErrSeriesIncompatible, e.Rule, e.Reason)
}

func (e *IncompatibleError) Unwrap() error {
	return errs.ErrSeriesIncompatible
}

// CanAppend reports whether candidate may join the series made of existing.
//
// existing need not be sorted. Checks run in order and stop at the first failure:
//
//  1. candidate's kind matches every existing member's kind
//  2. candidate's shape equals the first existing member's shape
//  3. candidate's history signature matches every existing member's
//  4. candidate's grid does not overlap any existing member's grid. An empty grid
//     occupies the instant at its start, so it collides with a grid starting at
//     the same time or spanning that instant.
func CanAppend(existing []Member, candidate Member) error {
	for i := range existing {
		if existing[i].Kind != candidate.Kind {
			return &IncompatibleError{
				Rule:     RuleKind,
				Existing: i,
				Reason: fmt.Sprintf("%s has kind %s, series member %s has kind %s",
					label(candidate), candidate.Kind, label(existing[i]), existing[i].Kind),
			}
		}
	}

	if len(existing) > 0 && !existing[0].Shape.Equal(candidate.Shape) {
		return &IncompatibleError{
			Rule:     RuleShape,
			Existing: 0,
			Reason: fmt.Sprintf("%s has shape %s, series shape is %s",
				label(candidate), candidate.Shape, existing[0].Shape),
		}
	}

	sig := candidate.History.Signature()
	for i := range existing {
		if existing[i].History.Signature() != sig {
			return &IncompatibleError{
				Rule:     RuleHistory,
				Existing: i,
				Reason: fmt.Sprintf("%s was processed by %v, series member %s by %v",
					label(candidate), []string(candidate.History), label(existing[i]), []string(existing[i].History)),
			}
		}
	}

	for i := range existing {
		if collides(candidate.Grid, existing[i].Grid) {
			return &IncompatibleError{
				Rule:     RuleOverlap,
				Existing: i,
				Reason: fmt.Sprintf("%s spans [%s, %s), overlapping %s [%s, %s)",
					label(candidate), candidate.Grid.Start, candidate.Grid.End(),
					label(existing[i]), existing[i].Grid.Start, existing[i].Grid.End()),
			}
		}
	}

	return nil
}

// SortMembers orders members by grid start time. The sort is stable.
func SortMembers(members []Member) {
	slices.SortStableFunc(members, func(a, b Member) int {
		return cmp.Compare(a.Grid.Start.Cmp(b.Grid.Start), 0)
	})
}

// Grids returns the grids of members in order.
func Grids(members []Member) []grid.Grid {
	grids := make([]grid.Grid, len(members))
	for i := range members {
		grids[i] = members[i].Grid
	}

	return grids
}

func label(m Member) string {
	if m.Name == "" {
		return "member"
	}

	return fmt.Sprintf("%q", m.Name)
}

// collides reports whether two member grids claim the same time.
func collides(a, b grid.Grid) bool {
	if a.OverlapsWith(b) {
		return true
	}

	switch {
	case empty(a):
		return within(a.Start, b)
	case empty(b):
		return within(b.Start, a)
	default:
		return false
	}
}

func empty(g grid.Grid) bool {
	return g.End().Cmp(g.Start) == 0
}

// within reports whether t equals g's start or lies inside g's span.
func within(t timebase.Time, g grid.Grid) bool {
	return t.Cmp(g.Start) == 0 || (t.Cmp(g.Start) > 0 && t.Cmp(g.End()) < 0)
}

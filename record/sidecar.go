package record

import (
	"fmt"
	"slices"

	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/footer"
	"github.com/arloliu/tracefile/format"
)

// Sidecar attributes live in the footer, index-aligned with the records. They
// are mutable in memory until CloseForWriting and never touch the payload region.

func defaultActivity() []bool {
	return []bool{true}
}

func (s *Store) appendSidecar() {
	m := &s.meta
	m.Names = append(m.Names, "")
	m.Status = append(m.Status, format.StatusUndecided)
	m.Activity = append(m.Activity, defaultActivity())
	m.Colors = append(m.Colors, footer.White)
	if m.Metrics != nil {
		m.Metrics = append(m.Metrics, footer.ImageMetrics{})
	}

	a := &m.Alignment
	if a.MatchIndices != nil {
		a.MatchIndices = append(a.MatchIndices, -1)
		a.PairwiseScores = append(a.PairwiseScores, 0)
		a.CentroidDistances = append(a.CentroidDistances, 0)
	}
}

func (s *Store) resetSidecar(i int) {
	m := &s.meta
	m.Names[i] = ""
	m.Status[i] = format.StatusUndecided
	m.Activity[i] = defaultActivity()
	m.Colors[i] = footer.White
	if m.Metrics != nil {
		m.Metrics[i] = footer.ImageMetrics{}
	}

	a := &m.Alignment
	if a.MatchIndices != nil {
		a.MatchIndices[i] = -1
		a.PairwiseScores[i] = 0
		a.CentroidDistances[i] = 0
	}
}

// mutate runs fn on record i after the lifecycle and bounds checks.
func (s *Store) mutate(i uint64, fn func(i int)) error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	if err := s.checkWritable(); err != nil {
		return err
	}
	if count := s.count(); i >= count {
		return fmt.Errorf("%w: record %d of %d", errs.ErrRecordOutOfRange, i, count)
	}
	fn(int(i))

	return nil
}

// view runs fn on record i after the bounds check.
func (s *Store) view(i uint64, fn func(i int)) error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	if count := s.count(); i >= count {
		return fmt.Errorf("%w: record %d of %d", errs.ErrRecordOutOfRange, i, count)
	}
	fn(int(i))

	return nil
}

// SetName sets the name of record i.
func (s *Store) SetName(i uint64, name string) error {
	return s.mutate(i, func(i int) { s.meta.Names[i] = name })
}

// SetStatus sets the curation status of record i.
func (s *Store) SetStatus(i uint64, status format.Status) error {
	return s.mutate(i, func(i int) { s.meta.Status[i] = status })
}

// SetColor sets the color of record i.
func (s *Store) SetColor(i uint64, c footer.Color) error {
	return s.mutate(i, func(i int) { s.meta.Colors[i] = c })
}

// SetActive sets the activity flag of record i in series segment seg. Flags of
// segments not yet set default to true.
func (s *Store) SetActive(i uint64, seg int, active bool) error {
	if seg < 0 {
		return fmt.Errorf("%w: segment %d", errs.ErrSegmentOutOfRange, seg)
	}

	return s.mutate(i, func(i int) {
		flags := s.meta.Activity[i]
		for len(flags) <= seg {
			flags = append(flags, true)
		}
		flags[seg] = active
		s.meta.Activity[i] = flags
	})
}

// SetActivity replaces every activity flag of record i.
func (s *Store) SetActivity(i uint64, flags []bool) error {
	return s.mutate(i, func(i int) { s.meta.Activity[i] = slices.Clone(flags) })
}

// SetMetrics sets the image metrics of record i. Records without metrics store
// zero values.
func (s *Store) SetMetrics(i uint64, m footer.ImageMetrics) error {
	return s.mutate(i, func(i int) {
		if s.meta.Metrics == nil {
			s.meta.Metrics = make([]footer.ImageMetrics, s.count())
		}
		s.meta.Metrics[i] = m
	})
}

// SetAlignment replaces the series alignment. Its per-record arrays must have one
// entry per record.
func (s *Store) SetAlignment(a footer.Alignment) error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	if err := s.checkWritable(); err != nil {
		return err
	}

	n := int(s.count())
	if a.MatchIndices != nil &&
		(len(a.MatchIndices) != n || len(a.PairwiseScores) != n || len(a.CentroidDistances) != n) {
		return fmt.Errorf("%w: alignment arrays must have %d entries", errs.ErrInvalidIndex, n)
	}

	s.meta.Alignment = footer.Alignment{
		Size:              a.Size,
		MatchIndices:      slices.Clone(a.MatchIndices),
		PairwiseScores:    slices.Clone(a.PairwiseScores),
		CentroidDistances: slices.Clone(a.CentroidDistances),
	}

	return nil
}

// Name returns the name of record i.
func (s *Store) Name(i uint64) (name string, err error) {
	err = s.view(i, func(i int) { name = s.meta.Names[i] })
	return name, err
}

// Status returns the curation status of record i.
func (s *Store) Status(i uint64) (status format.Status, err error) {
	err = s.view(i, func(i int) { status = s.meta.Status[i] })
	return status, err
}

// Color returns the color of record i.
func (s *Store) Color(i uint64) (c footer.Color, err error) {
	err = s.view(i, func(i int) { c = s.meta.Colors[i] })
	return c, err
}

// Activity returns a copy of the activity flags of record i.
func (s *Store) Activity(i uint64) (flags []bool, err error) {
	err = s.view(i, func(i int) { flags = slices.Clone(s.meta.Activity[i]) })
	return flags, err
}

// Active reports the activity of record i in segment seg. Segments beyond the
// stored flags are active.
func (s *Store) Active(i uint64, seg int) (active bool, err error) {
	err = s.view(i, func(i int) {
		flags := s.meta.Activity[i]
		active = seg < 0 || seg >= len(flags) || flags[seg]
	})

	return active, err
}

// Metrics returns the image metrics of record i, zero when the file has none.
func (s *Store) Metrics(i uint64) (m footer.ImageMetrics, err error) {
	err = s.view(i, func(i int) {
		if s.meta.Metrics != nil {
			m = s.meta.Metrics[i]
		}
	})

	return m, err
}

// Alignment returns a copy of the series alignment.
func (s *Store) Alignment() footer.Alignment {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	a := s.meta.Alignment
	a.MatchIndices = slices.Clone(a.MatchIndices)
	a.PairwiseScores = slices.Clone(a.PairwiseScores)
	a.CentroidDistances = slices.Clone(a.CentroidDistances)

	return a
}

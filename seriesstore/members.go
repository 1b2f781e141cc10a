package seriesstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arloliu/tracefile/catalog"
	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/series"
)

// opener adapts one store package to the shared member loading code.
type opener[S io.Closer] struct {
	open      func(path string) (S, error)
	summarize func(store S) catalog.Summary
}

type entry[S io.Closer] struct {
	sum    catalog.Summary
	store  S
	loaded bool
}

// openMembers summarizes every path, sorts the members by start time, validates
// them and opens the stores. The context is checked between files. On failure
// every store opened so far is closed.
func openMembers[S io.Closer](ctx context.Context, c *config, paths []string, o opener[S]) (stores []S, err error) {
	if len(paths) == 0 {
		return nil, errs.ErrEmptySeries
	}

	entries := make([]entry[S], 0, len(paths))
	defer func() {
		if err == nil {
			return
		}
		for i := range entries {
			if entries[i].loaded {
				err = multierr.Append(err, entries[i].store.Close())
			}
		}
	}()

	load := func(e *entry[S]) error {
		return c.run(ctx, func() error {
			s, err := o.open(e.sum.Path)
			if err != nil {
				return err
			}
			e.store = s
			e.loaded = true

			return nil
		})
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if sum, ok := c.lookup(path); ok {
			entries = append(entries, entry[S]{sum: sum})
			continue
		}

		entries = append(entries, entry[S]{sum: catalog.Summary{Path: path}})
		e := &entries[len(entries)-1]
		if err := load(e); err != nil {
			return nil, err
		}
		e.sum = o.summarize(e.store)
		c.remember(e.sum)
	}

	slices.SortStableFunc(entries, func(a, b entry[S]) int {
		return a.sum.Grid.Start.Cmp(b.sum.Grid.Start)
	})

	sums := make([]catalog.Summary, len(entries))
	for i := range entries {
		sums[i] = entries[i].sum
	}
	if err := validate(sums, false); err != nil {
		c.rejected(err)
		return nil, err
	}

	stores = make([]S, len(entries))
	for i := range entries {
		if !entries[i].loaded {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := load(&entries[i]); err != nil {
				return nil, err
			}
		}
		stores[i] = entries[i].store
	}

	c.logger.Debug("series opened", zap.Int("members", len(stores)))

	return stores, nil
}

// validate checks sorted member summaries pairwise. When growing is set the last
// member is still being written and its count is not compared.
func validate(sums []catalog.Summary, growing bool) error {
	members := make([]series.Member, 0, len(sums))
	for i := range sums {
		m := sums[i].Member()
		if err := series.CanAppend(members, m); err != nil {
			return err
		}

		last := i == len(sums)-1
		if i > 0 && !(growing && last) && sums[i].Count != sums[0].Count {
			return &series.IncompatibleError{
				Rule:     series.RuleCount,
				Existing: 0,
				Reason: fmt.Sprintf("%s holds %d %s, series member %s holds %d",
					sums[i].Path, sums[i].Count, unit(sums[i].File), sums[0].Path, sums[0].Count),
			}
		}
		members = append(members, m)
	}

	return nil
}

func unit(file string) string {
	if file == "channels" {
		return "channels"
	}

	return "records"
}

func (c *config) rejected(err error) {
	var ie *series.IncompatibleError
	if errors.As(err, &ie) {
		c.metrics.Rejected(string(ie.Rule))
		c.logger.Warn("series member rejected", zap.String("rule", string(ie.Rule)), zap.String("reason", ie.Reason))
	}
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arloliu/tracefile/channel"
	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/internal/footerio"
	"github.com/arloliu/tracefile/record"
	"github.com/arloliu/tracefile/series"
	"github.com/arloliu/tracefile/seriesstore"
)

func oneArg(c *cli.Context) (string, error) {
	if c.Args().Len() != 1 {
		return "", fmt.Errorf("%s: expected exactly one FILE", c.Command.Name)
	}

	return c.Args().First(), nil
}

// footerAction prints the footer text of any closed file.
func (e *env) footerAction(c *cli.Context) (err error) {
	path, err := oneArg(c)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errs.IO("open", err)
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	info, err := f.Stat()
	if err != nil {
		return errs.IO("stat", err)
	}
	t, err := footerio.ReadTrailer(f, info.Size())
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	block, err := footerio.Load(f, info.Size(), t.Flag.FileKind())
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "# %s file, schema v%d, %s footer of %d bytes at offset %d\n",
		t.Flag.FileKind(), t.SchemaVersion, t.Flag.Compression(), t.FooterLength, t.FooterOffset)
	_, err = w.Write(block.Footer)

	return err
}

func (e *env) recordOptions() ([]record.Option, error) {
	return e.cfg.ToRecordOptions(e.logger, e.metrics)
}

func (e *env) recordsAction(c *cli.Context) (err error) {
	path, err := oneArg(c)
	if err != nil {
		return err
	}
	opts, err := e.recordOptions()
	if err != nil {
		return err
	}

	s, err := record.Open(path, opts...)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.Close()) }()

	w := c.App.Writer
	g := s.Grid()
	fmt.Fprintf(w, "kind:     %s\n", s.Kind())
	fmt.Fprintf(w, "records:  %d\n", s.Count())
	fmt.Fprintf(w, "grid:     %s, %d valid\n", g, g.ValidCount())
	fmt.Fprintf(w, "span:     %s to %s\n", g.Start, g.End())
	fmt.Fprintf(w, "shape:    %s\n", s.Shape())
	fmt.Fprintf(w, "layout:   %d image + %d trace bytes\n", s.Layout().ImageBytes, s.Layout().TraceBytes)
	fmt.Fprintf(w, "history:  %s\n", strings.Join(s.History(), " > "))
	fmt.Fprintf(w, "schema:   v%d\n", s.SchemaVersion())
	if d := s.Defaulted(); len(d) > 0 {
		fmt.Fprintf(w, "defaults: %s\n", strings.Join(d, ", "))
	}

	if !c.Bool(flagRecords) {
		return nil
	}
	for i := range s.Count() {
		name, _ := s.Name(i)
		status, _ := s.Status(i)
		color, _ := s.Color(i)
		fmt.Fprintf(w, "%6d  %-10s  %s  %s\n", i, status, color, name)
	}

	return nil
}

func (e *env) channelsAction(c *cli.Context) (err error) {
	path, err := oneArg(c)
	if err != nil {
		return err
	}
	opts, err := e.cfg.ToChannelOptions(e.logger, e.metrics)
	if err != nil {
		return err
	}

	s, err := channel.Open(path, opts...)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.Close()) }()

	w := c.App.Writer
	fmt.Fprintf(w, "start:    %s\n", s.Start())
	fmt.Fprintf(w, "end:      %s\n", s.End())
	fmt.Fprintf(w, "format:   %s\n", s.PacketFormat())
	fmt.Fprintf(w, "packets:  %d\n", s.PacketCount())
	for _, ch := range s.Channels() {
		step := "-"
		if ch.Kind == format.ChannelDense {
			step = ch.Step.String()
		}
		fmt.Fprintf(w, "%-16s %-6s step=%-8s first=%dus samples=%d\n",
			ch.Name, ch.Kind, step, ch.StartOffsetMicros, ch.SampleCount)
	}

	return nil
}

func (e *env) seriesAction(c *cli.Context) (err error) {
	opts, res, err := e.cfg.ToSeriesOptions(e.logger, e.metrics)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, res.Close()) }()

	if c.Bool(flagChannels) {
		return e.channelSeries(c, opts)
	}

	return e.recordSeries(c, opts)
}

func (e *env) recordSeries(c *cli.Context, opts []seriesstore.Option) (err error) {
	s, err := seriesstore.OpenRecordSeries(c.Context, c.Args().Slice(), opts...)
	if err != nil {
		return e.explain(err)
	}
	defer func() { err = multierr.Append(err, s.Close()) }()

	w := c.App.Writer
	g := s.Grid()
	fmt.Fprintf(w, "members:  %d\nrecords:  %d\nsamples:  %d (%d valid)\nduration: %.3fs\n",
		s.Len(), s.NumRecords(), g.Count, g.ValidCount(), s.Duration().Float64())
	for i, mg := range s.Grids() {
		m, _ := s.Member(i)
		fmt.Fprintf(w, "%3d  %s  %s, %d samples\n", i, m.Path(), mg.Start, mg.Count)
	}

	return nil
}

func (e *env) channelSeries(c *cli.Context, opts []seriesstore.Option) (err error) {
	s, err := seriesstore.OpenChannelSeries(c.Context, c.Args().Slice(), opts...)
	if err != nil {
		return e.explain(err)
	}
	defer func() { err = multierr.Append(err, s.Close()) }()

	w := c.App.Writer
	fmt.Fprintf(w, "members:  %d\nchannels: %s\n", s.Len(), strings.Join(s.ChannelNames(), ", "))
	for i, g := range s.Grids() {
		m, _ := s.Member(i)
		fmt.Fprintf(w, "%3d  %s  %s to %s\n", i, m.Path(), g.Start, g.End())
	}

	return nil
}

// explain turns a validator rejection into a message naming the rule.
func (e *env) explain(err error) error {
	var ie *series.IncompatibleError
	if errors.As(err, &ie) {
		e.logger.Debug("series rejected", zap.Error(err))
		return fmt.Errorf("files do not form one series (%s rule): %s", ie.Rule, ie.Reason)
	}

	return err
}

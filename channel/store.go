package channel

import (
	"fmt"
	"math"
	"os"
	"slices"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/footer"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/internal/footerio"
	"github.com/arloliu/tracefile/internal/pool"
	"github.com/arloliu/tracefile/internal/storeopt"
	"github.com/arloliu/tracefile/section"
	"github.com/arloliu/tracefile/timebase"
)

const metricKind = "channels"

// Store is a packet channel file.
type Store struct {
	path  string
	file  *os.File
	state format.State
	cfg   *storeopt.Config
	meta  footer.Channels
	ids   map[string]uint32

	// pending holds encoded packets not yet written to the file.
	pending *pool.ByteBuffer
	// flushed is the number of packets already in the file.
	flushed uint64
}

// Create creates or truncates path. Packet offsets are relative to start.
func Create(path string, start timebase.Time, opts ...Option) (*Store, error) {
	sc, err := storeopt.Resolve(opts...)
	if err != nil {
		return nil, err
	}

	sc.Lock.Lock()
	defer sc.Lock.Unlock()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errs.IO("create", err)
	}

	s := &Store{
		path:  path,
		file:  f,
		state: format.StateWriteOpen,
		cfg:   sc,
		meta: footer.Channels{
			SchemaVersion: footer.ChannelSchemaVersion,
			Start:         start,
			PacketFormat:  sc.PacketFormat,
			Channels:      []footer.Channel{},
		},
		ids:     make(map[string]uint32),
		pending: pool.GetPacketBuffer(),
	}

	sc.Metrics.StoreOpened(metricKind)
	sc.Logger.Debug("channel store created",
		zap.String("path", path),
		zap.Stringer("start", start),
		zap.Stringer("packet_format", sc.PacketFormat))

	return s, nil
}

// Open opens a closed channel file read-only.
func Open(path string, opts ...Option) (*Store, error) {
	sc, err := storeopt.Resolve(opts...)
	if err != nil {
		return nil, err
	}

	sc.Lock.Lock()
	defer sc.Lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IO("open", err)
	}

	meta, err := readFooter(f)
	var defaulted []string
	if meta != nil {
		defaulted = meta.Defaulted
	}
	sc.Metrics.FooterDecoded(metricKind, err, defaulted)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &Store{
		path:    path,
		file:    f,
		state:   format.StateReadOpen,
		cfg:     sc,
		meta:    *meta,
		ids:     make(map[string]uint32, len(meta.Channels)),
		flushed: meta.PacketCount,
	}
	for id, ch := range meta.Channels {
		s.ids[ch.Name] = uint32(id)
	}

	sc.Metrics.StoreOpened(metricKind)
	sc.Logger.Debug("channel store opened",
		zap.String("path", path),
		zap.Int("channels", len(meta.Channels)),
		zap.Uint64("packets", meta.PacketCount),
		zap.Int("schema_version", meta.SchemaVersion))
	if len(meta.Defaulted) > 0 {
		sc.Logger.Warn("footer predates current schema, defaults applied",
			zap.String("path", path),
			zap.Int("schema_version", meta.SchemaVersion),
			zap.Strings("keys", meta.Defaulted))
	}

	return s, nil
}

func readFooter(f *os.File) (*footer.Channels, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errs.IO("stat", err)
	}

	block, err := footerio.Load(f, info.Size(), format.FileChannels)
	if err != nil {
		return nil, err
	}

	meta, err := footer.DecodeChannels(block.Footer)
	if err != nil {
		return nil, err
	}
	if int(block.Trailer.SchemaVersion) != meta.SchemaVersion {
		return nil, fmt.Errorf("%w: trailer version %d, footer version %d",
			errs.ErrMalformedFooter, block.Trailer.SchemaVersion, meta.SchemaVersion)
	}
	if want := meta.PacketCount * section.PacketSize; block.Trailer.FooterOffset != want {
		return nil, fmt.Errorf("%w: footer at %d, %d packets end at %d",
			errs.ErrMalformedFooter, block.Trailer.FooterOffset, meta.PacketCount, want)
	}

	return meta, nil
}

// Path returns the file path.
func (s *Store) Path() string {
	return s.path
}

// State returns the lifecycle state.
func (s *Store) State() format.State {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.state
}

// Start returns the time packet offsets are relative to.
func (s *Store) Start() timebase.Time {
	return s.meta.Start
}

// PacketFormat returns the packet layout.
func (s *Store) PacketFormat() format.PacketFormat {
	return s.meta.PacketFormat
}

// PacketCount returns the number of packets written.
func (s *Store) PacketCount() uint64 {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.meta.PacketCount
}

// LastOffsetMicros returns the largest packet offset written.
func (s *Store) LastOffsetMicros() uint64 {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.meta.LastOffsetMicros
}

// End returns the time of the latest packet.
func (s *Store) End() timebase.Time {
	return s.meta.Start.Add(timebase.MicrosDuration(int64(s.LastOffsetMicros())))
}

// Channels returns the channel table ordered by id.
func (s *Store) Channels() []footer.Channel {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return slices.Clone(s.meta.Channels)
}

// Channel returns the metadata of the named channel.
func (s *Store) Channel(name string) (footer.Channel, error) {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	id, err := s.lookup(name)
	if err != nil {
		return footer.Channel{}, err
	}

	return s.meta.Channels[id], nil
}

// ChannelNames returns the channel names ordered by id.
func (s *Store) ChannelNames() []string {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	names := make([]string, len(s.meta.Channels))
	for i, ch := range s.meta.Channels {
		names[i] = ch.Name
	}

	return names
}

func (s *Store) lookup(name string) (uint32, error) {
	id, ok := s.ids[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", errs.ErrUnknownChannel, name)
	}

	return id, nil
}

// AddChannel registers a channel and returns its id. Dense channels need a
// positive step; sparse channels must have a zero step. A legacy file holds one
// channel.
func (s *Store) AddChannel(name string, kind format.ChannelKind, step timebase.Duration) (uint32, error) {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	if err := s.checkWritable(); err != nil {
		return 0, err
	}
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", errs.ErrInvalidChannel)
	}
	if _, dup := s.ids[name]; dup {
		return 0, fmt.Errorf("%w: %q", errs.ErrDuplicateChannel, name)
	}
	switch kind {
	case format.ChannelDense:
		if step.Sign() <= 0 {
			return 0, fmt.Errorf("%w: dense channel %q needs a positive step", errs.ErrInvalidChannel, name)
		}
	case format.ChannelSparse:
		if !step.IsZero() {
			return 0, fmt.Errorf("%w: sparse channel %q has step %s", errs.ErrInvalidChannel, name, step)
		}
	default:
		return 0, fmt.Errorf("%w: unknown kind %v", errs.ErrInvalidChannel, kind)
	}
	if s.meta.PacketFormat == format.PacketLegacy && len(s.meta.Channels) > 0 {
		return 0, fmt.Errorf("%w: legacy packet files hold a single channel", errs.ErrInvalidChannel)
	}

	id := uint32(len(s.meta.Channels))
	s.meta.Channels = append(s.meta.Channels, footer.Channel{Name: name, Kind: kind, Step: step})
	s.ids[name] = id

	return id, nil
}

// WritePacket appends one packet for channel id.
func (s *Store) WritePacket(id uint32, offsetMicros uint64, value float32) error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.writePacket(section.Packet{OffsetMicros: offsetMicros, ChannelID: id, Value: value})
}

// WriteState appends a packet carrying a boolean state. The state is only stored
// by the legacy layout.
func (s *Store) WriteState(id uint32, offsetMicros uint64, value float32, state bool) error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.writePacket(section.Packet{OffsetMicros: offsetMicros, ChannelID: id, Value: value, State: state})
}

// WriteSample appends one packet for the named channel.
func (s *Store) WriteSample(name string, offsetMicros uint64, value float32) error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	id, err := s.lookup(name)
	if err != nil {
		return err
	}

	return s.writePacket(section.Packet{OffsetMicros: offsetMicros, ChannelID: id, Value: value})
}

func (s *Store) writePacket(p section.Packet) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if int(p.ChannelID) >= len(s.meta.Channels) {
		return fmt.Errorf("%w: id %d", errs.ErrUnknownChannel, p.ChannelID)
	}
	if p.OffsetMicros > math.MaxInt64 {
		return fmt.Errorf("%w: %dus", errs.ErrOffsetOutOfRange, p.OffsetMicros)
	}

	s.pending.B = section.AppendPacket(s.pending.B, p, s.meta.PacketFormat)

	ch := &s.meta.Channels[p.ChannelID]
	if ch.SampleCount == 0 {
		ch.StartOffsetMicros = p.OffsetMicros
	}
	ch.SampleCount++
	s.meta.PacketCount++
	s.meta.LastOffsetMicros = max(s.meta.LastOffsetMicros, p.OffsetMicros)

	s.cfg.Metrics.PacketWritten(section.PacketSize)

	if s.pending.Len() >= pool.PacketBufferDefaultSize {
		return s.flush()
	}

	return nil
}

// flush writes pending packets after the ones already in the file.
func (s *Store) flush() error {
	if s.pending == nil || s.pending.Len() == 0 {
		return nil
	}

	if _, err := s.file.WriteAt(s.pending.Bytes(), int64(s.flushed*section.PacketSize)); err != nil {
		return errs.IO("write packets", err)
	}
	s.flushed += uint64(s.pending.Len() / section.PacketSize)
	s.pending.Reset()

	return nil
}

// CloseForWriting flushes pending packets and commits the footer.
func (s *Store) CloseForWriting() error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.closeForWriting()
}

func (s *Store) closeForWriting() error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.flush(); err != nil {
		return err
	}

	data, err := footer.EncodeChannels(&s.meta)
	if err != nil {
		return err
	}

	offset := int64(s.flushed * section.PacketSize)
	stored, err := footerio.Commit(s.file, offset, format.FileChannels, footer.ChannelSchemaVersion, s.cfg.Compression, data)
	if err != nil {
		return err
	}
	s.state = format.StateClosed
	pool.PutPacketBuffer(s.pending)
	s.pending = nil

	s.cfg.Metrics.FooterWritten(metricKind, stored)
	s.cfg.Logger.Debug("channel footer committed",
		zap.String("path", s.path),
		zap.Int("channels", len(s.meta.Channels)),
		zap.Uint64("packets", s.meta.PacketCount),
		zap.Int("footer_bytes", stored))

	return nil
}

// Close releases the file, closing it for writing first when still WriteOpen.
func (s *Store) Close() error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	if s.file == nil {
		return nil
	}

	var err error
	if s.state == format.StateWriteOpen {
		err = s.closeForWriting()
		s.state = format.StateClosed
	}
	err = multierr.Append(err, errs.IO("close", s.file.Close()))
	s.file = nil

	s.cfg.Metrics.StoreClosed(metricKind)

	return err
}

func (s *Store) checkWritable() error {
	switch {
	case s.state == format.StateReadOpen:
		return errs.ErrReadOnly
	case s.state == format.StateClosed || s.file == nil:
		return errs.ErrAlreadyClosed
	default:
		return nil
	}
}

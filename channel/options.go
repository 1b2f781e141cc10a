package channel

import (
	"sync"

	"go.uber.org/zap"

	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/internal/storeopt"
	"github.com/arloliu/tracefile/metrics"
)

// Option configures a Store. Options are shared with the record package.
type Option = storeopt.Option

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return storeopt.WithLogger(logger)
}

// WithIOLock sets the lock held for the duration of every store operation.
func WithIOLock(lock sync.Locker) Option {
	return storeopt.WithIOLock(lock)
}

// WithCompression sets the footer compression.
func WithCompression(comp format.CompressionType) Option {
	return storeopt.WithCompression(comp)
}

// WithMetrics records store activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return storeopt.WithMetrics(m)
}

// WithPacketFormat selects the packet layout of a new file. Legacy files hold a
// single channel. Ignored by Open, which reads the layout from the footer.
func WithPacketFormat(pf format.PacketFormat) Option {
	return storeopt.WithPacketFormat(pf)
}

package record

import (
	"sync"

	"go.uber.org/zap"

	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/internal/storeopt"
	"github.com/arloliu/tracefile/metrics"
)

// Option configures a Store. Options are shared with the channel package.
type Option = storeopt.Option

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return storeopt.WithLogger(logger)
}

// WithIOLock sets the lock held for the duration of every store operation.
// Stores on one drive may share a lock to serialize their I/O.
func WithIOLock(lock sync.Locker) Option {
	return storeopt.WithIOLock(lock)
}

// WithCompression sets the footer compression. The default stores plain text.
func WithCompression(comp format.CompressionType) Option {
	return storeopt.WithCompression(comp)
}

// WithMetrics records store activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return storeopt.WithMetrics(m)
}

package forest

import (
	"runtime"

	"go.uber.org/zap"
)

const defaultTreeCount = 10

// Option configures a Forest.
type Option func(*Forest)

// WithTreeCount sets the number of trees built per Build. Default: 10.
func WithTreeCount(n int) Option {
	return func(f *Forest) { f.treeCount = n }
}

// WithMaxDepth bounds the depth of every tree. Zero means "same as the tree
// count", so a single knob controls both.
func WithMaxDepth(d int) Option {
	return func(f *Forest) { f.maxDepth = d }
}

// WithSeed makes builds reproducible. Without it the master generator is seeded
// from the clock.
func WithSeed(seed int64) Option {
	return func(f *Forest) {
		f.seed = seed
		f.seeded = true
	}
}

// WithWorkers limits how many trees are constructed concurrently. Default: GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(f *Forest) { f.workers = n }
}

// WithLogger sets a logger for build events.
func WithLogger(l *zap.Logger) Option {
	return func(f *Forest) { f.logger = l }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(f *Forest) { f.observer = o }
}

func (f *Forest) applyDefaults() {
	if f.treeCount == 0 {
		f.treeCount = defaultTreeCount
	}
	if f.maxDepth == 0 {
		f.maxDepth = f.treeCount
	}
	if f.workers <= 0 {
		f.workers = runtime.GOMAXPROCS(0)
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if f.observer == nil {
		f.observer = NoopObserver{}
	}
}

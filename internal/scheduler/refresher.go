// Package scheduler rebuilds the neighbor index on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// BuildFunc rebuilds the index.
type BuildFunc func(ctx context.Context) error

// Refresher runs a BuildFunc on a cron schedule. Runs never overlap: a tick
// that fires while a build is still running is skipped.
type Refresher struct {
	spec    string
	build   BuildFunc
	timeout time.Duration
	logger  *zap.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	runMu   sync.Mutex
	mu      sync.Mutex
	started bool
	runs    int
	lastRun time.Time
	lastErr error
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithLogger sets a logger for scheduled runs.
func WithLogger(l *zap.Logger) Option {
	return func(r *Refresher) { r.logger = l }
}

// WithTimeout bounds each scheduled build.
func WithTimeout(d time.Duration) Option {
	return func(r *Refresher) { r.timeout = d }
}

// NewRefresher parses spec (standard five-field cron or a descriptor such as
// "@every 15m") and returns a stopped Refresher.
func NewRefresher(spec string, build BuildFunc, opts ...Option) (*Refresher, error) {
	r := &Refresher{spec: spec, build: build, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	cl := cronLogger{r.logger}
	r.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := r.cron.AddFunc(spec, func() { _ = r.run(context.Background(), "schedule") })
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	r.entryID = id
	return r, nil
}

// Start begins scheduling.
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.cron.Start()
	r.started = true
	r.logger.Info("index refresh scheduled",
		zap.String("spec", r.spec),
		zap.Time("next", r.cron.Entry(r.entryID).Next))
}

// Stop stops scheduling and waits for a running build to finish or ctx to end.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	r.mu.Unlock()

	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow builds immediately, waiting for any build already in progress.
func (r *Refresher) RunNow(ctx context.Context) error {
	return r.run(ctx, "manual")
}

func (r *Refresher) run(ctx context.Context, trigger string) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	err := r.build(ctx)

	r.mu.Lock()
	r.runs++
	r.lastRun = start
	r.lastErr = err
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("index refresh failed", zap.String("trigger", trigger), zap.Error(err))
		return err
	}
	r.logger.Debug("index refreshed", zap.String("trigger", trigger), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Stats reports how many builds ran, when the last one started, and its error.
func (r *Refresher) Stats() (runs int, lastRun time.Time, lastErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, r.lastRun, r.lastErr
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

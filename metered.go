package metered

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/metered/plugin"
	"github.com/xraph/metered/store"
	"github.com/xraph/metered/types"
)

// Config carries the tunable parameters of the engine. All deployments
// should start from DefaultConfig and override selectively.
type Config struct {
	// MaxIncrementAmount is the hard ceiling on a single increment.
	MaxIncrementAmount int64

	// RateLimitWindow and RateLimitMax bound increment calls per
	// (scope, feature): at most RateLimitMax calls per window.
	RateLimitWindow time.Duration
	RateLimitMax    int64

	// MinuteBucketSlack extends a minute bucket's expiry past the end of the
	// hour containing it. It must exceed the hourly rollup's scheduling
	// delay plus the worst-case clock skew the deployment tolerates, or the
	// rollup fires after the buckets it aggregates have expired and
	// undercounts.
	MinuteBucketSlack time.Duration

	// LockTTL bounds the short-lived locks collapsing concurrent duplicate
	// calls that share an idempotency key.
	LockTTL time.Duration

	// IdempotencyTTL bounds how long a stored increment result is replayed
	// for its idempotency key.
	IdempotencyTTL time.Duration

	// HourlyRollupSpec and DailyRollupSpec are cron expressions for the
	// scheduled rollups, used when WithScheduledRollups is set. They run a
	// few minutes into the window so that the previous window is complete.
	HourlyRollupSpec string
	DailyRollupSpec  string
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		MaxIncrementAmount: 1_000_000,
		RateLimitWindow:    60 * time.Second,
		RateLimitMax:       100,
		MinuteBucketSlack:  10 * time.Minute,
		LockTTL:            5 * time.Second,
		IdempotencyTTL:     5 * time.Minute,
		HourlyRollupSpec:   "5 * * * *",
		DailyRollupSpec:    "15 0 * * *",
	}
}

// Engine is the usage metering and credits engine. It coordinates the
// windowed counters, the rate-limit guard, the rollup pipeline and the
// credits ledger over the two store capabilities.
type Engine struct {
	counters   store.CounterStore
	aggregates store.AggregateStore
	plugins    *plugin.Registry
	logger     *slog.Logger
	cfg        Config

	now func() time.Time

	scheduled bool
	cron      *cron.Cron
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithScheduledRollups enables the cron-driven hourly and daily rollups.
// Rollup jobs must run as singletons; enable this on exactly one process
// per deployment.
func WithScheduledRollups() Option {
	return func(e *Engine) {
		e.scheduled = true
	}
}

// WithClock replaces the engine's time source. Tests use this to pin window
// boundaries without sleeping.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates a new Engine over the two store capabilities.
func New(counters store.CounterStore, aggregates store.AggregateStore, opts ...Option) *Engine {
	e := &Engine{
		counters:   counters,
		aggregates: aggregates,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		cfg:        DefaultConfig(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start prepares the stores and begins scheduled work.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.aggregates.Migrate(ctx); err != nil {
		return fmt.Errorf("metered: migrate aggregate store: %w", err)
	}
	if err := e.counters.Ping(ctx); err != nil {
		return fmt.Errorf("metered: counter store unavailable: %w", err)
	}

	e.plugins.EmitInit(ctx, e)

	if e.scheduled {
		if err := e.startScheduler(ctx); err != nil {
			return err
		}
	}

	e.logger.Info("metered started",
		"rate_limit_max", e.cfg.RateLimitMax,
		"rate_limit_window", e.cfg.RateLimitWindow,
		"scheduled_rollups", e.scheduled,
	)

	return nil
}

// startScheduler registers and starts the rollup cron jobs. Each job targets
// the window preceding the one it fires in, so the rolled-up window is
// always complete.
func (e *Engine) startScheduler(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))

	if _, err := c.AddFunc(e.cfg.HourlyRollupSpec, func() {
		at := e.now().Add(-time.Hour)
		if _, err := e.RollupHour(ctx, at); err != nil {
			e.logger.Error("scheduled hourly rollup failed", "at", at, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("metered: bad hourly rollup spec %q: %w", e.cfg.HourlyRollupSpec, err)
	}

	if _, err := c.AddFunc(e.cfg.DailyRollupSpec, func() {
		at := e.now().Add(-24 * time.Hour)
		if _, err := e.RollupDay(ctx, at); err != nil {
			e.logger.Error("scheduled daily rollup failed", "at", at, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("metered: bad daily rollup spec %q: %w", e.cfg.DailyRollupSpec, err)
	}

	c.Start()
	e.cron = c
	return nil
}

// Stop shuts down the Engine and closes both stores.
func (e *Engine) Stop() error {
	if e.cron != nil {
		// Wait for a running rollup to finish.
		<-e.cron.Stop().Done()
	}

	e.plugins.EmitShutdown(context.Background())

	if err := e.counters.Close(); err != nil {
		return err
	}
	return e.aggregates.Close()
}

// PurgeSamples removes persisted samples of the given granularity older than
// before and reports how many were removed. Deployments typically purge hour
// samples after their day has been rolled up and retained long enough for
// audits.
func (e *Engine) PurgeSamples(ctx context.Context, window types.Window, before time.Time) (int64, error) {
	if !window.Valid() || window == types.WindowMinute {
		return 0, &ValidationError{Field: "window", Message: "purge applies to hour and day samples"}
	}
	return e.aggregates.PurgeSamples(ctx, window, before)
}

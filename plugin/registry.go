package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/usage"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onUsageIncremented  []OnUsageIncremented
	onRateLimitExceeded []OnRateLimitExceeded
	onRollupCompleted   []OnRollupCompleted
	onCreditsGranted    []OnCreditsGranted
	onCreditsBurned     []OnCreditsBurned
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	var interfaces []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		interfaces = append(interfaces, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		interfaces = append(interfaces, "OnShutdown")
	}
	if v, ok := p.(OnUsageIncremented); ok {
		r.onUsageIncremented = append(r.onUsageIncremented, v)
		interfaces = append(interfaces, "OnUsageIncremented")
	}
	if v, ok := p.(OnRateLimitExceeded); ok {
		r.onRateLimitExceeded = append(r.onRateLimitExceeded, v)
		interfaces = append(interfaces, "OnRateLimitExceeded")
	}
	if v, ok := p.(OnRollupCompleted); ok {
		r.onRollupCompleted = append(r.onRollupCompleted, v)
		interfaces = append(interfaces, "OnRollupCompleted")
	}
	if v, ok := p.(OnCreditsGranted); ok {
		r.onCreditsGranted = append(r.onCreditsGranted, v)
		interfaces = append(interfaces, "OnCreditsGranted")
	}
	if v, ok := p.(OnCreditsBurned); ok {
		r.onCreditsBurned = append(r.onCreditsBurned, v)
		interfaces = append(interfaces, "OnCreditsBurned")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", interfaces,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns the names of all registered plugins.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		names[i] = p.Name()
	}
	return names
}

// ──────────────────────────────────────────────────
// Emitters
// ──────────────────────────────────────────────────

// EmitInit notifies plugins that the engine has started.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitShutdown notifies plugins that the engine is stopping.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitUsageIncremented emits a usage.incremented event.
func (r *Registry) EmitUsageIncremented(ctx context.Context, scopeID, feature string, amount, total int64) {
	r.mu.RLock()
	plugins := r.onUsageIncremented
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUsageIncremented(ctx, scopeID, feature, amount, total)
		}); err != nil {
			r.logger.Warn("plugin OnUsageIncremented failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitRateLimitExceeded emits a rate_limit.exceeded event.
func (r *Registry) EmitRateLimitExceeded(ctx context.Context, scopeID, feature string, count int64, retryAfter time.Duration) {
	r.mu.RLock()
	plugins := r.onRateLimitExceeded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRateLimitExceeded(ctx, scopeID, feature, count, retryAfter)
		}); err != nil {
			r.logger.Warn("plugin OnRateLimitExceeded failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitRollupCompleted emits a rollup.completed event.
func (r *Registry) EmitRollupCompleted(ctx context.Context, report usage.RollupReport) {
	r.mu.RLock()
	plugins := r.onRollupCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRollupCompleted(ctx, report)
		}); err != nil {
			r.logger.Warn("plugin OnRollupCompleted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitCreditsGranted emits a credits.granted event.
func (r *Registry) EmitCreditsGranted(ctx context.Context, entry *credits.Entry) {
	r.mu.RLock()
	plugins := r.onCreditsGranted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsGranted(ctx, entry)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsGranted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitCreditsBurned emits a credits.burned event.
func (r *Registry) EmitCreditsBurned(ctx context.Context, entry *credits.Entry) {
	r.mu.RLock()
	plugins := r.onCreditsBurned
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsBurned(ctx, entry)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsBurned failed", "plugin", p.Name(), "error", err)
		}
	}
}

// callWithTimeout runs fn, bounding a misbehaving plugin to 5 seconds.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}

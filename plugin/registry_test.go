package plugin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/metered/credits"
	"github.com/xraph/metered/types"
	"github.com/xraph/metered/usage"
)

type recorderPlugin struct {
	name       string
	increments int
	grants     int
	burns      int
	rollups    int
	limited    int
	failWith   error
}

func (p *recorderPlugin) Name() string { return p.name }

func (p *recorderPlugin) OnUsageIncremented(_ context.Context, _, _ string, _, _ int64) error {
	p.increments++
	return p.failWith
}

func (p *recorderPlugin) OnRateLimitExceeded(_ context.Context, _, _ string, _ int64, _ time.Duration) error {
	p.limited++
	return p.failWith
}

func (p *recorderPlugin) OnCreditsGranted(_ context.Context, _ *credits.Entry) error {
	p.grants++
	return p.failWith
}

func (p *recorderPlugin) OnCreditsBurned(_ context.Context, _ *credits.Entry) error {
	p.burns++
	return p.failWith
}

func (p *recorderPlugin) OnRollupCompleted(_ context.Context, _ usage.RollupReport) error {
	p.rollups++
	return p.failWith
}

func TestRegisterAndDispatch(t *testing.T) {
	r := NewRegistry()
	p := &recorderPlugin{name: "recorder"}
	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	r.EmitUsageIncremented(ctx, "t1", "api.calls", 1, 5)
	r.EmitRateLimitExceeded(ctx, "t1", "api.calls", 101, 30*time.Second)
	r.EmitCreditsGranted(ctx, &credits.Entry{})
	r.EmitCreditsBurned(ctx, &credits.Entry{})
	r.EmitRollupCompleted(ctx, usage.RollupReport{Window: types.WindowHour})

	if p.increments != 1 || p.limited != 1 || p.grants != 1 || p.burns != 1 || p.rollups != 1 {
		t.Errorf("dispatch counts: %+v", p)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&recorderPlugin{name: "dup"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&recorderPlugin{name: "dup"}); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestFailingPluginDoesNotBlockOthers(t *testing.T) {
	r := NewRegistry()
	failing := &recorderPlugin{name: "failing", failWith: errors.New("boom")}
	healthy := &recorderPlugin{name: "healthy"}
	if err := r.Register(failing); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(healthy); err != nil {
		t.Fatal(err)
	}

	r.EmitUsageIncremented(context.Background(), "t1", "api.calls", 1, 1)

	if failing.increments != 1 || healthy.increments != 1 {
		t.Errorf("both plugins should have run: failing=%d healthy=%d",
			failing.increments, healthy.increments)
	}
}

func TestGetAndList(t *testing.T) {
	r := NewRegistry()
	p := &recorderPlugin{name: "one"}
	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}

	if got := r.Get("one"); got != p {
		t.Error("Get should return the registered plugin")
	}
	if got := r.Get("absent"); got != nil {
		t.Error("Get of unknown plugin should return nil")
	}
	if names := r.List(); len(names) != 1 || names[0] != "one" {
		t.Errorf("List: got %v", names)
	}
}

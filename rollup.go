package metered

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/metered/id"
	"github.com/xraph/metered/types"
	"github.com/xraph/metered/usage"
)

// RollupHour folds the minute buckets of the hour containing at into durable
// hour samples, one per (scope, feature) pair. A completion marker makes the
// operation run-once per hour: the first run to claim the marker performs the
// work, later runs report Skipped and write nothing.
//
// Minute buckets outlive their hour by a slack interval, so the intended
// schedule is a few minutes past the hour, targeting the previous hour.
func (e *Engine) RollupHour(ctx context.Context, at time.Time) (usage.RollupReport, error) {
	start := e.now()
	hour := types.WindowHour.Truncate(at)
	runID := id.NewRollupRunID()

	claimed, err := e.aggregates.MarkRollup(ctx, types.WindowHour, hour, runID)
	if err != nil {
		return usage.RollupReport{}, fmt.Errorf("claim hour rollup %s: %w", hour.Format(time.RFC3339), err)
	}
	if !claimed {
		report := usage.RollupReport{RunID: runID, Window: types.WindowHour, At: hour, Skipped: true}
		e.plugins.EmitRollupCompleted(ctx, report)
		e.logger.Debug("hour rollup already claimed", "at", hour)
		return report, nil
	}

	keys, err := e.counters.Scan(ctx, types.HourPattern(hour))
	if err != nil {
		return usage.RollupReport{}, fmt.Errorf("scan minute buckets for %s: %w", hour.Format(time.RFC3339), err)
	}

	groups := make(map[usage.Key]int64)
	if len(keys) > 0 {
		values, err := e.counters.MultiGet(ctx, keys)
		if err != nil {
			return usage.RollupReport{}, fmt.Errorf("read minute buckets for %s: %w", hour.Format(time.RFC3339), err)
		}
		for key, raw := range values {
			scopeID, feature, _, err := types.ParseMinuteKey(key)
			if err != nil {
				e.logger.Warn("skipping malformed minute bucket", "key", key, "error", err)
				continue
			}
			count, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				e.logger.Warn("skipping non-numeric minute bucket", "key", key, "value", raw)
				continue
			}
			groups[usage.Key{ScopeID: scopeID, Feature: feature}] += count
		}
	}

	var total int64
	for key, count := range groups {
		if err := e.aggregates.UpsertSampleIncrement(ctx, key.ScopeID, key.Feature, types.WindowHour, hour, count); err != nil {
			return usage.RollupReport{}, fmt.Errorf("upsert hour sample %s/%s: %w", key.ScopeID, key.Feature, err)
		}
		total += count
	}

	report := usage.RollupReport{
		RunID:   runID,
		Window:  types.WindowHour,
		At:      hour,
		Groups:  len(groups),
		Total:   total,
		Elapsed: e.now().Sub(start),
	}

	e.plugins.EmitRollupCompleted(ctx, report)
	e.logger.Info("hour rollup completed",
		"at", hour,
		"groups", report.Groups,
		"total", report.Total,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// RollupDay folds the hour samples of the day containing at into durable day
// samples. Like RollupHour it is run-once per day via a completion marker.
// The intended schedule is shortly after midnight UTC, targeting the previous
// day, after that day's final hour rollup has landed.
func (e *Engine) RollupDay(ctx context.Context, at time.Time) (usage.RollupReport, error) {
	start := e.now()
	day := types.WindowDay.Truncate(at)
	runID := id.NewRollupRunID()

	claimed, err := e.aggregates.MarkRollup(ctx, types.WindowDay, day, runID)
	if err != nil {
		return usage.RollupReport{}, fmt.Errorf("claim day rollup %s: %w", day.Format(time.RFC3339), err)
	}
	if !claimed {
		report := usage.RollupReport{RunID: runID, Window: types.WindowDay, At: day, Skipped: true}
		e.plugins.EmitRollupCompleted(ctx, report)
		e.logger.Debug("day rollup already claimed", "at", day)
		return report, nil
	}

	samples, err := e.aggregates.RangeSamples(ctx, types.WindowHour, day, day.Add(24*time.Hour))
	if err != nil {
		return usage.RollupReport{}, fmt.Errorf("range hour samples for %s: %w", day.Format(time.RFC3339), err)
	}

	groups := make(map[usage.Key]int64)
	for _, s := range samples {
		groups[usage.Key{ScopeID: s.ScopeID, Feature: s.Feature}] += s.Count
	}

	var total int64
	for key, count := range groups {
		if err := e.aggregates.UpsertSampleIncrement(ctx, key.ScopeID, key.Feature, types.WindowDay, day, count); err != nil {
			return usage.RollupReport{}, fmt.Errorf("upsert day sample %s/%s: %w", key.ScopeID, key.Feature, err)
		}
		total += count
	}

	report := usage.RollupReport{
		RunID:   runID,
		Window:  types.WindowDay,
		At:      day,
		Groups:  len(groups),
		Total:   total,
		Elapsed: e.now().Sub(start),
	}

	e.plugins.EmitRollupCompleted(ctx, report)
	e.logger.Info("day rollup completed",
		"at", day,
		"groups", report.Groups,
		"total", report.Total,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

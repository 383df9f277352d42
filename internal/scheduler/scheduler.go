// Package scheduler holds the pure scheduling math for agent loops.
// Every function takes its clock as an argument so callers (and tests)
// control time; nothing here reads time.Now.
package scheduler

import (
	"time"

	"github.com/totalaud/agentcore/pkg/models"
)

// IntervalDuration is the static cadence table for loop intervals.
var IntervalDuration = map[models.LoopInterval]time.Duration{
	models.Interval5m:    5 * time.Minute,
	models.Interval15m:   15 * time.Minute,
	models.Interval1h:    time.Hour,
	models.IntervalDaily: 24 * time.Hour,
}

// CalculateNextRun returns the next execution time for a loop. First runs
// schedule now+interval. Subsequent runs schedule lastRun+interval unless
// that moment has already passed, in which case now+interval is used so a
// stalled loop does not fire a catch-up storm.
func CalculateNextRun(interval models.LoopInterval, lastRun *time.Time, now time.Time) time.Time {
	d, ok := IntervalDuration[interval]
	if !ok {
		d = time.Hour
	}
	if lastRun == nil {
		return now.Add(d)
	}
	next := lastRun.Add(d)
	if next.Before(now) {
		return now.Add(d)
	}
	return next
}

// IsReadyToRun reports whether the loop is due: it must not be running or
// disabled, and nextRun must have arrived. A loop with no nextRun yet is
// due immediately.
func IsReadyToRun(loop *models.AgentLoop, now time.Time) bool {
	if loop.Status == models.LoopRunning || loop.Status == models.LoopDisabled {
		return false
	}
	if loop.NextRun == nil {
		return true
	}
	return !now.Before(*loop.NextRun)
}

// ReadyLoops filters loops down to the ones due at now.
func ReadyLoops(loops []models.AgentLoop, now time.Time) []models.AgentLoop {
	var out []models.AgentLoop
	for i := range loops {
		if IsReadyToRun(&loops[i], now) {
			out = append(out, loops[i])
		}
	}
	return out
}

// CheckRateLimit reports whether the agent may run another loop. It counts
// loops whose lastRun falls inside the trailing hour; at or above maxPerHour
// the agent is denied.
func CheckRateLimit(loopsForAgent []models.AgentLoop, maxPerHour int, now time.Time) bool {
	cutoff := now.Add(-time.Hour)
	n := 0
	for i := range loopsForAgent {
		lr := loopsForAgent[i].LastRun
		if lr != nil && lr.After(cutoff) {
			n++
		}
	}
	return n < maxPerHour
}

// NextScheduledLoop returns the loop with the earliest nextRun among loops
// that are eligible to be scheduled, or nil when none is pending.
func NextScheduledLoop(loops []models.AgentLoop) *models.AgentLoop {
	var best *models.AgentLoop
	for i := range loops {
		l := &loops[i]
		if l.Status == models.LoopDisabled || l.NextRun == nil {
			continue
		}
		if best == nil || l.NextRun.Before(*best.NextRun) {
			best = l
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

// HealthScore grades the loop system 0-100 from the trailing 24h of loop
// events. Success rate carries weight 0.7 and execution rate versus active
// loop count carries 0.3. No loops at all scores 100; loops but none active
// scores 50.
func HealthScore(loops []models.AgentLoop, events []models.LoopEvent, now time.Time) int {
	if len(loops) == 0 {
		return 100
	}

	active := 0
	for i := range loops {
		if loops[i].Status != models.LoopDisabled {
			active++
		}
	}
	if active == 0 {
		return 50
	}

	cutoff := now.Add(-24 * time.Hour)
	executed, succeeded := 0, 0
	for i := range events {
		if events[i].CreatedAt.Before(cutoff) {
			continue
		}
		executed++
		if events[i].Result.Success {
			succeeded++
		}
	}

	successRate := 0.0
	if executed > 0 {
		successRate = float64(succeeded) / float64(executed)
	}
	executionRate := float64(executed) / float64(active)
	if executionRate > 1 {
		executionRate = 1
	}

	score := (successRate*0.7 + executionRate*0.3) * 100
	return int(score)
}

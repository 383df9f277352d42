package scheduler

import (
	"testing"
	"time"

	"github.com/totalaud/agentcore/pkg/models"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func loopAt(status models.LoopStatus, nextRun *time.Time) models.AgentLoop {
	return models.AgentLoop{
		ID:       "loop-1",
		Agent:    models.AgentScout,
		Interval: models.Interval1h,
		Status:   status,
		NextRun:  nextRun,
	}
}

func ts(t time.Time) *time.Time { return &t }

func TestCalculateNextRunFirstRun(t *testing.T) {
	next := CalculateNextRun(models.Interval15m, nil, now)
	if want := now.Add(15 * time.Minute); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextRunFromLastRun(t *testing.T) {
	last := now.Add(-10 * time.Minute)
	next := CalculateNextRun(models.Interval1h, &last, now)
	if want := last.Add(time.Hour); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextRunSkipsCatchUp(t *testing.T) {
	// lastRun + interval is already in the past: schedule from now instead
	// of firing a backlog of catch-up runs.
	last := now.Add(-3 * time.Hour)
	next := CalculateNextRun(models.Interval1h, &last, now)
	if want := now.Add(time.Hour); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestIsReadyToRun(t *testing.T) {
	cases := []struct {
		name string
		loop models.AgentLoop
		want bool
	}{
		{"due idle loop", loopAt(models.LoopIdle, ts(now.Add(-time.Minute))), true},
		{"due at exactly nextRun", loopAt(models.LoopIdle, ts(now)), true},
		{"not yet due", loopAt(models.LoopIdle, ts(now.Add(time.Minute))), false},
		{"never scheduled", loopAt(models.LoopIdle, nil), true},
		{"running loop", loopAt(models.LoopRunning, ts(now.Add(-time.Minute))), false},
		{"disabled loop", loopAt(models.LoopDisabled, ts(now.Add(-time.Minute))), false},
		{"errored loop is retried", loopAt(models.LoopError, ts(now.Add(-time.Minute))), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsReadyToRun(&tc.loop, now); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestReadyLoops(t *testing.T) {
	loops := []models.AgentLoop{
		loopAt(models.LoopIdle, ts(now.Add(-time.Minute))),
		loopAt(models.LoopIdle, ts(now.Add(time.Hour))),
		loopAt(models.LoopDisabled, ts(now.Add(-time.Minute))),
	}
	ready := ReadyLoops(loops, now)
	if len(ready) != 1 {
		t.Errorf("expected 1 ready loop, got %d", len(ready))
	}
}

func TestCheckRateLimit(t *testing.T) {
	recent := func(ago time.Duration) models.AgentLoop {
		l := loopAt(models.LoopIdle, nil)
		l.LastRun = ts(now.Add(-ago))
		return l
	}

	within := []models.AgentLoop{recent(10 * time.Minute), recent(30 * time.Minute)}
	if !CheckRateLimit(within, 3, now) {
		t.Error("expected 2 of 3 to be allowed")
	}

	atCap := append(within, recent(50*time.Minute))
	if CheckRateLimit(atCap, 3, now) {
		t.Error("expected denial at the cap")
	}

	// Runs older than an hour fall out of the window.
	stale := []models.AgentLoop{recent(61 * time.Minute), recent(2 * time.Hour), recent(5 * time.Minute)}
	if !CheckRateLimit(stale, 2, now) {
		t.Error("expected stale runs to age out of the window")
	}
}

func TestNextScheduledLoop(t *testing.T) {
	if got := NextScheduledLoop(nil); got != nil {
		t.Errorf("expected nil for no loops, got %+v", got)
	}

	soon := loopAt(models.LoopIdle, ts(now.Add(5*time.Minute)))
	soon.ID = "soon"
	later := loopAt(models.LoopIdle, ts(now.Add(time.Hour)))
	later.ID = "later"
	disabled := loopAt(models.LoopDisabled, ts(now.Add(time.Minute)))

	got := NextScheduledLoop([]models.AgentLoop{later, disabled, soon})
	if got == nil || got.ID != "soon" {
		t.Errorf("expected loop soon, got %+v", got)
	}
}

func TestHealthScore(t *testing.T) {
	if got := HealthScore(nil, nil, now); got != 100 {
		t.Errorf("no loops: expected 100, got %d", got)
	}

	allDisabled := []models.AgentLoop{loopAt(models.LoopDisabled, nil)}
	if got := HealthScore(allDisabled, nil, now); got != 50 {
		t.Errorf("no active loops: expected 50, got %d", got)
	}

	loops := []models.AgentLoop{
		loopAt(models.LoopIdle, nil),
		loopAt(models.LoopIdle, nil),
	}
	events := []models.LoopEvent{
		{Result: models.LoopExecutionResult{Success: true}, CreatedAt: now.Add(-time.Hour)},
		{Result: models.LoopExecutionResult{Success: false}, CreatedAt: now.Add(-2 * time.Hour)},
		// Outside the trailing 24h window, ignored.
		{Result: models.LoopExecutionResult{Success: false}, CreatedAt: now.Add(-30 * time.Hour)},
	}

	// success rate 1/2, execution rate 2/2 capped at 1:
	// (0.5*0.7 + 1*0.3) * 100 = 65
	if got := HealthScore(loops, events, now); got != 65 {
		t.Errorf("expected 65, got %d", got)
	}
}

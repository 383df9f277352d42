// Package loops runs the autonomous agent loops.
//
// The engine owns the loop set: a periodic driver calls Tick, the engine
// asks the scheduler which loops are due, claims each one with a
// version-conditional status flip, executes it through the injected Runner
// under a hard timeout, records a LoopEvent, and advances the schedule.
// One loop's failure never aborts the tick for the others.
package loops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/totalaud/agentcore/internal/bus"
	"github.com/totalaud/agentcore/internal/scheduler"
	"github.com/totalaud/agentcore/internal/store"
	"github.com/totalaud/agentcore/pkg/contracts"
	"github.com/totalaud/agentcore/pkg/models"
)

const (
	// DefaultMaxRunsPerAgentHour caps how many loops one agent may run in
	// a trailing hour.
	DefaultMaxRunsPerAgentHour = 3

	// DefaultExecutionTimeout is the hard ceiling on one Runner call.
	DefaultExecutionTimeout = 2 * time.Minute
)

// Engine owns the agent-loop lifecycle.
type Engine struct {
	store  store.Store
	runner contracts.Runner
	bus    *bus.Bus

	maxRunsPerAgentHour int
	executionTimeout    time.Duration

	// nowFn is injectable for tests; defaults to time.Now UTC.
	nowFn func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRateLimit overrides the per-agent hourly run cap.
func WithRateLimit(maxPerHour int) Option {
	return func(e *Engine) { e.maxRunsPerAgentHour = maxPerHour }
}

// WithExecutionTimeout overrides the hard per-execution timeout.
func WithExecutionTimeout(d time.Duration) Option {
	return func(e *Engine) { e.executionTimeout = d }
}

// WithClock injects the engine's clock.
func WithClock(nowFn func() time.Time) Option {
	return func(e *Engine) { e.nowFn = nowFn }
}

// NewEngine creates a loop engine. The bus may be nil when no live-event
// fan-out is wanted (tests, batch tools).
func NewEngine(s store.Store, runner contracts.Runner, b *bus.Bus, opts ...Option) *Engine {
	e := &Engine{
		store:               s,
		runner:              runner,
		bus:                 b,
		maxRunsPerAgentHour: DefaultMaxRunsPerAgentHour,
		executionTimeout:    DefaultExecutionTimeout,
		nowFn:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ── Loop management ─────────────────────────────────────────

// CreateLoop registers a new loop and schedules its first run.
func (e *Engine) CreateLoop(ctx context.Context, loop *models.AgentLoop) error {
	if !loop.Agent.Valid() {
		return fmt.Errorf("invalid agent %q", loop.Agent)
	}
	if loop.ID == "" {
		loop.ID = uuid.NewString()
	}
	if loop.Status == "" {
		loop.Status = models.LoopIdle
	}
	now := e.nowFn()
	next := scheduler.CalculateNextRun(loop.Interval, nil, now)
	loop.NextRun = &next

	if err := e.store.CreateLoop(ctx, loop); err != nil {
		return fmt.Errorf("create loop: %w", err)
	}
	log.Info().
		Str("loop_id", loop.ID).
		Str("agent", string(loop.Agent)).
		Str("interval", string(loop.Interval)).
		Msg("🔁 Loop created")
	return nil
}

// SetLoopStatus enables or disables a loop.
func (e *Engine) SetLoopStatus(ctx context.Context, id string, status models.LoopStatus) error {
	loop, err := e.store.GetLoop(ctx, id)
	if err != nil {
		return err
	}
	loop.Status = status
	if err := e.store.UpdateLoop(ctx, loop); err != nil {
		return fmt.Errorf("update loop status: %w", err)
	}
	return nil
}

// DeleteLoop removes a loop permanently.
func (e *Engine) DeleteLoop(ctx context.Context, id string) error {
	return e.store.DeleteLoop(ctx, id)
}

// ListLoops returns a user's loops.
func (e *Engine) ListLoops(ctx context.Context, userID string) ([]models.AgentLoop, error) {
	return e.store.ListLoops(ctx, userID)
}

// ── Tick ────────────────────────────────────────────────────

// Tick runs one scheduling pass: find due loops, apply per-agent rate
// limits, execute each allowed loop. Loops skipped by rate limiting or
// not-yet-due schedules are left untouched.
func (e *Engine) Tick(ctx context.Context) {
	now := e.nowFn()

	loops, err := e.store.ListLoops(ctx, "")
	if err != nil {
		log.Error().Err(err).Msg("⚠️ Tick: listing loops failed")
		return
	}

	ready := scheduler.ReadyLoops(loops, now)
	if len(ready) == 0 {
		return
	}

	byAgent := make(map[models.AgentName][]models.AgentLoop)
	for _, l := range loops {
		byAgent[l.Agent] = append(byAgent[l.Agent], l)
	}

	for i := range ready {
		loop := ready[i]
		if !scheduler.CheckRateLimit(byAgent[loop.Agent], e.maxRunsPerAgentHour, now) {
			log.Debug().
				Str("loop_id", loop.ID).
				Str("agent", string(loop.Agent)).
				Msg("Loop skipped: agent rate limit reached")
			continue
		}
		e.executeLoop(ctx, &loop)
	}
}

// executeLoop claims one due loop and runs it. Failures are recorded in
// the loop event and the loop status, never returned: the tick must go on.
func (e *Engine) executeLoop(ctx context.Context, loop *models.AgentLoop) {
	// Claim via the version-conditional update. Losing the claim means
	// another worker took the loop; that is not an error.
	loop.Status = models.LoopRunning
	if err := e.store.UpdateLoop(ctx, loop); err != nil {
		var conflict *store.ErrConflict
		if errors.As(err, &conflict) {
			log.Debug().Str("loop_id", loop.ID).Msg("Loop claim lost to another worker")
			return
		}
		log.Error().Err(err).Str("loop_id", loop.ID).Msg("⚠️ Loop claim failed")
		return
	}

	start := e.nowFn()
	result := e.run(ctx, loop)
	result.ExecutionTimeMs = e.nowFn().Sub(start).Milliseconds()

	event := &models.LoopEvent{
		ID:        uuid.NewString(),
		LoopID:    loop.ID,
		Agent:     loop.Agent,
		Result:    result,
		CreatedAt: e.nowFn(),
	}
	if err := e.store.CreateLoopEvent(ctx, event); err != nil {
		log.Error().Err(err).Str("loop_id", loop.ID).Msg("⚠️ Recording loop event failed")
	}

	// Advance the schedule and release the claim.
	now := e.nowFn()
	loop.LastRun = &now
	next := scheduler.CalculateNextRun(loop.Interval, &now, now)
	loop.NextRun = &next
	if result.Success {
		loop.Status = models.LoopIdle
	} else {
		loop.Status = models.LoopError
	}
	if err := e.store.UpdateLoop(ctx, loop); err != nil {
		log.Error().Err(err).Str("loop_id", loop.ID).Msg("⚠️ Releasing loop claim failed")
	}

	if e.bus != nil {
		e.bus.Emit(models.LiveEvent{
			Type:       models.EventLoopExecuted,
			Timestamp:  now,
			CampaignID: loop.CampaignID,
			EntityType: models.EntityLoop,
			EntityID:   loop.ID,
			Agent:      loop.Agent,
			Severity:   severityFor(result),
			Meta: map[string]interface{}{
				"success": result.Success,
				"message": result.Message,
			},
		})
	}

	log.Info().
		Str("loop_id", loop.ID).
		Str("agent", string(loop.Agent)).
		Bool("success", result.Success).
		Int64("duration_ms", result.ExecutionTimeMs).
		Msg("🔁 Loop executed")
}

func severityFor(result models.LoopExecutionResult) models.Severity {
	if result.Success {
		return models.SeveritySuccess
	}
	return models.SeverityWarning
}

// run invokes the Runner under the hard timeout and converts every failure
// mode (error return, panic, timeout) into an unsuccessful result.
func (e *Engine) run(ctx context.Context, loop *models.AgentLoop) (result models.LoopExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = models.LoopExecutionResult{
				Success: false,
				Error:   fmt.Sprintf("runner panic: %v", r),
			}
		}
	}()

	execCtx, cancel := context.WithTimeout(ctx, e.executionTimeout)
	defer cancel()

	task := contracts.TaskDescriptor{
		LoopID:   loop.ID,
		Agent:    loop.Agent,
		LoopType: loop.LoopType,
		Payload:  loop.Payload,
		Context: map[string]interface{}{
			"campaign_id": loop.CampaignID,
			"user_id":     loop.UserID,
		},
	}

	res, err := e.runner.Execute(execCtx, task)
	if err != nil {
		return models.LoopExecutionResult{Success: false, Error: err.Error()}
	}
	if res == nil {
		return models.LoopExecutionResult{Success: false, Error: "runner returned no result"}
	}
	return models.LoopExecutionResult{
		Success:      res.Success,
		Message:      res.Message,
		Data:         res.Data,
		TasksCreated: res.TasksCreated,
		NotesCreated: res.NotesCreated,
		Error:        res.Error,
	}
}

// ── Metrics ─────────────────────────────────────────────────

// Metrics summarises loop well-being for dashboards and diagnostics.
func (e *Engine) Metrics(ctx context.Context, userID string) (*models.LoopMetrics, error) {
	now := e.nowFn()

	loops, err := e.store.ListLoops(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list loops: %w", err)
	}
	events, err := e.store.ListLoopEventsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list loop events: %w", err)
	}

	m := &models.LoopMetrics{
		TotalLoops:     len(loops),
		HealthScore:    scheduler.HealthScore(loops, events, now),
		AgentBreakdown: make(map[models.AgentName]models.AgentLoopStats),
	}
	for i := range loops {
		if loops[i].Status != models.LoopDisabled {
			m.ActiveLoops++
		}
	}
	m.ExecutedLast24h = len(events)
	if next := scheduler.NextScheduledLoop(loops); next != nil {
		m.NextLoopRun = next.NextRun
	}

	// Per-agent stats from loops plus the trailing-24h events.
	type tally struct{ runs, ok int }
	tallies := make(map[models.AgentName]*tally)
	for i := range events {
		t := tallies[events[i].Agent]
		if t == nil {
			t = &tally{}
			tallies[events[i].Agent] = t
		}
		t.runs++
		if events[i].Result.Success {
			t.ok++
		}
	}
	for i := range loops {
		l := &loops[i]
		stats := m.AgentBreakdown[l.Agent]
		stats.LoopCount++
		if l.LastRun != nil && (stats.LastRun == nil || l.LastRun.After(*stats.LastRun)) {
			stats.LastRun = l.LastRun
		}
		if t := tallies[l.Agent]; t != nil && t.runs > 0 {
			stats.SuccessRate = float64(t.ok) / float64(t.runs)
		}
		m.AgentBreakdown[l.Agent] = stats
	}

	return m, nil
}

// ── Suggestions ─────────────────────────────────────────────

// AddSuggestion records a proposed loop for the user to act on.
func (e *Engine) AddSuggestion(ctx context.Context, s *models.LoopSuggestion) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = models.SuggestionPending
	}
	if err := e.store.CreateSuggestion(ctx, s); err != nil {
		return fmt.Errorf("create suggestion: %w", err)
	}

	if e.bus != nil {
		e.bus.Emit(models.LiveEvent{
			Type:      models.EventLoopSuggestionCreated,
			Timestamp: e.nowFn(),
			EntityID:  s.ID,
			Agent:     s.Agent,
			Severity:  models.SeverityInfo,
		})
	}
	return nil
}

// ListSuggestions returns a user's suggestions, optionally filtered by status.
func (e *Engine) ListSuggestions(ctx context.Context, userID string, status models.SuggestionStatus) ([]models.LoopSuggestion, error) {
	return e.store.ListSuggestions(ctx, userID, status)
}

// AcceptSuggestion turns a pending suggestion into a live loop.
func (e *Engine) AcceptSuggestion(ctx context.Context, id string) (*models.AgentLoop, error) {
	s, err := e.store.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != models.SuggestionPending {
		return nil, fmt.Errorf("suggestion %s already %s", id, s.Status)
	}

	loop := &models.AgentLoop{
		ID:       uuid.NewString(),
		UserID:   s.UserID,
		Agent:    s.Agent,
		LoopType: s.LoopType,
		Interval: s.Interval,
		Payload:  s.Action,
		Status:   models.LoopIdle,
	}
	if err := e.CreateLoop(ctx, loop); err != nil {
		return nil, err
	}

	now := e.nowFn()
	s.Status = models.SuggestionAccepted
	s.ResolvedAt = &now
	if err := e.store.UpdateSuggestion(ctx, s); err != nil {
		return nil, fmt.Errorf("resolve suggestion: %w", err)
	}
	return loop, nil
}

// DeclineSuggestion marks a pending suggestion declined.
func (e *Engine) DeclineSuggestion(ctx context.Context, id string) error {
	s, err := e.store.GetSuggestion(ctx, id)
	if err != nil {
		return err
	}
	if s.Status != models.SuggestionPending {
		return fmt.Errorf("suggestion %s already %s", id, s.Status)
	}
	now := e.nowFn()
	s.Status = models.SuggestionDeclined
	s.ResolvedAt = &now
	return e.store.UpdateSuggestion(ctx, s)
}

package fusion

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/totalaud/agentcore/internal/bus"
	"github.com/totalaud/agentcore/internal/memory"
	"github.com/totalaud/agentcore/internal/store"
	"github.com/totalaud/agentcore/pkg/models"
)

type controllerFixture struct {
	c     *Controller
	store *store.InMemoryStore
	bus   *bus.Bus
	now   time.Time
}

func (f *controllerFixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newControllerFixture(t *testing.T, cfg Config) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		store: store.NewInMemoryStore(),
		bus:   bus.New(),
		now:   time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	writer := memory.NewWriter(f.store, nil, nil)
	f.c = NewController(cfg, f.store, f.bus, NewReasoner(nil), writer,
		WithControllerClock(func() time.Time { return f.now }))
	return f
}

func activeSession(t *testing.T, s *store.InMemoryStore, campaignID string) *models.FusionSession {
	t.Helper()
	sess := &models.FusionSession{
		ID:         uuid.NewString(),
		UserID:     "user-1",
		CampaignID: campaignID,
		Active:     true,
	}
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func liveEvent(typ models.EventType, sev models.Severity) models.LiveEvent {
	return models.LiveEvent{
		Type:       typ,
		Severity:   sev,
		CampaignID: "camp-1",
		EntityType: models.EntityTask,
		EntityID:   "task-1",
	}
}

func TestQueueOrdersByPriority(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig())

	low := liveEvent(models.EventSessionStarted, models.SeverityInfo)    // 1+1
	mid := liveEvent(models.EventTaskCompleted, models.SeveritySuccess)  // 3+2
	high := liveEvent(models.EventAgentWarning, models.SeverityCritical) // 4+4

	f.c.Enqueue(low)
	f.c.Enqueue(mid)
	f.c.Enqueue(high)

	if f.c.QueueLen() != 3 {
		t.Fatalf("expected 3 queued, got %d", f.c.QueueLen())
	}
	got, _ := f.c.pop()
	if got.Type != models.EventAgentWarning {
		t.Errorf("expected highest priority first, got %s", got.Type)
	}
	got, _ = f.c.pop()
	if got.Type != models.EventTaskCompleted {
		t.Errorf("expected mid priority second, got %s", got.Type)
	}
}

func TestQueueStableForEqualPriority(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig())

	a := liveEvent(models.EventTaskCompleted, models.SeverityInfo)
	a.EntityID = "first"
	b := liveEvent(models.EventTaskCompleted, models.SeverityInfo)
	b.EntityID = "second"

	f.c.Enqueue(a)
	f.c.Enqueue(b)

	got, _ := f.c.pop()
	if got.EntityID != "first" {
		t.Errorf("expected arrival order for equal priority, got %s", got.EntityID)
	}
}

func TestQueueCapDropsLowestPriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueCap = 2
	f := newControllerFixture(t, cfg)

	f.c.Enqueue(liveEvent(models.EventSessionStarted, models.SeverityInfo))
	f.c.Enqueue(liveEvent(models.EventTaskCompleted, models.SeveritySuccess))
	f.c.Enqueue(liveEvent(models.EventAgentWarning, models.SeverityCritical))

	if f.c.QueueLen() != 2 {
		t.Fatalf("expected capped queue of 2, got %d", f.c.QueueLen())
	}
	got, _ := f.c.pop()
	if got.Type != models.EventAgentWarning {
		t.Errorf("expected high-priority event kept, got %s", got.Type)
	}
	got, _ = f.c.pop()
	if got.Type != models.EventTaskCompleted {
		t.Errorf("expected mid-priority event kept, got %s", got.Type)
	}
}

func TestDrainPersistsContribution(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig())
	sess := activeSession(t, f.store, "camp-1")
	ctx := context.Background()

	var reemitted []models.LiveEvent
	f.bus.Subscribe(func(e models.LiveEvent) { reemitted = append(reemitted, e) }, models.EventContributionCreated)

	ev := liveEvent(models.EventTaskCompleted, models.SeveritySuccess)
	ev.PersonaHint = models.PersonaDAW
	f.c.Enqueue(ev)
	f.c.Drain(ctx)

	msgs, _ := f.store.ListFusionMessages(ctx, sess.ID, 10)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(msgs))
	}
	if msgs[0].Persona != models.PersonaDAW {
		t.Errorf("expected persona hint honoured, got %s", msgs[0].Persona)
	}
	// task_completed with no agent on the event resolves to tracker.
	if msgs[0].Agent != models.AgentTracker {
		t.Errorf("expected tracker agent, got %s", msgs[0].Agent)
	}

	if len(reemitted) != 1 {
		t.Fatalf("expected contribution_created re-emission, got %d", len(reemitted))
	}
	if reemitted[0].EntityID != sess.ID || reemitted[0].PersonaHint != models.PersonaDAW {
		t.Errorf("unexpected re-emission: %+v", reemitted[0])
	}
}

func TestDrainDropsEventWithoutSession(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig())
	ctx := context.Background()

	f.c.Enqueue(liveEvent(models.EventTaskCompleted, models.SeverityInfo))
	f.c.Drain(ctx) // no session exists; must not panic or persist

	if f.c.QueueLen() != 0 {
		t.Error("expected event consumed")
	}
}

func TestPersonaMinDelay(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig())
	activeSession(t, f.store, "camp-1")
	ctx := context.Background()

	ev := liveEvent(models.EventTaskCompleted, models.SeverityInfo)
	ev.PersonaHint = models.PersonaASCII
	f.c.Enqueue(ev)
	f.c.Drain(ctx)

	// Within the 10s delay the hint is ineligible; another persona speaks.
	f.advance(5 * time.Second)
	f.c.Enqueue(ev)
	f.c.Drain(ctx)

	sess, _ := f.store.FindActiveSession(ctx, "camp-1")
	msgs, _ := f.store.ListFusionMessages(ctx, sess.ID, 10)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// Newest first: second message must not be ascii again.
	if msgs[0].Persona == models.PersonaASCII {
		t.Error("expected a different persona inside the min-delay window")
	}
}

func TestAllPersonasRateLimitedDropsSilently(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerPersonaPerMinute = 1
	cfg.MinDelayPerPersona = time.Millisecond
	f := newControllerFixture(t, cfg)
	activeSession(t, f.store, "camp-1")
	ctx := context.Background()

	// Let every persona speak once inside the sliding minute.
	for range PersonaOrder {
		f.advance(time.Second)
		f.c.Enqueue(liveEvent(models.EventTaskCompleted, models.SeverityInfo))
		f.c.Drain(ctx)
	}

	sess, _ := f.store.FindActiveSession(ctx, "camp-1")
	msgs, _ := f.store.ListFusionMessages(ctx, sess.ID, 20)
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}

	// Everyone is now at the per-minute cap: the next event is dropped.
	f.advance(time.Second)
	f.c.Enqueue(liveEvent(models.EventTaskCompleted, models.SeverityInfo))
	f.c.Drain(ctx)

	msgs, _ = f.store.ListFusionMessages(ctx, sess.ID, 20)
	if len(msgs) != 5 {
		t.Errorf("expected dropped event, got %d messages", len(msgs))
	}

	// After the window slides, contributions resume.
	f.advance(2 * time.Minute)
	f.c.Enqueue(liveEvent(models.EventTaskCompleted, models.SeverityInfo))
	f.c.Drain(ctx)
	msgs, _ = f.store.ListFusionMessages(ctx, sess.ID, 20)
	if len(msgs) != 6 {
		t.Errorf("expected contribution after window slide, got %d", len(msgs))
	}
}

func TestIdlestPersonaSelected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDelayPerPersona = time.Millisecond
	f := newControllerFixture(t, cfg)
	activeSession(t, f.store, "camp-1")
	ctx := context.Background()

	seen := make(map[models.Persona]bool)
	for i := 0; i < 5; i++ {
		f.advance(time.Second)
		f.c.Enqueue(liveEvent(models.EventTaskCompleted, models.SeverityInfo))
		f.c.Drain(ctx)
	}

	sess, _ := f.store.FindActiveSession(ctx, "camp-1")
	msgs, _ := f.store.ListFusionMessages(ctx, sess.ID, 20)
	for _, m := range msgs {
		if seen[m.Persona] {
			t.Fatalf("persona %s spoke twice before everyone had a turn", m.Persona)
		}
		seen[m.Persona] = true
	}
}

func TestConsensusWritesMemory(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig())
	sess := activeSession(t, f.store, "camp-1")
	ctx := context.Background()

	// Seed the session with two cautious voices; the third cautious
	// contribution tips the threshold.
	for _, p := range []models.Persona{models.PersonaASCII, models.PersonaDAW} {
		msg := &models.FusionMessage{
			ID:        uuid.NewString(),
			SessionID: sess.ID,
			Persona:   p,
			Agent:     models.AgentScout,
			Sentiment: models.SentimentCautious,
			CreatedAt: f.now,
		}
		if err := f.store.CreateFusionMessage(ctx, msg); err != nil {
			t.Fatalf("CreateFusionMessage: %v", err)
		}
	}

	ev := liveEvent(models.EventTaskCompleted, models.SeverityInfo)
	ev.PersonaHint = models.PersonaAqua // aqua tends cautious
	f.c.Enqueue(ev)
	f.c.Drain(ctx)

	mems, _ := f.store.ListMemories(ctx, "user-1", 10)
	if len(mems) != 1 {
		t.Fatalf("expected 1 consensus memory, got %d", len(mems))
	}
	if mems[0].MemoryType != models.MemoryConsensus || mems[0].Importance != 4 {
		t.Errorf("unexpected memory: %+v", mems[0])
	}
}

func TestAgentForEventType(t *testing.T) {
	cases := map[models.EventType]models.AgentName{
		models.EventLoopExecuted:          models.AgentCoach,
		models.EventLoopSuggestionCreated: models.AgentCoach,
		models.EventMemoryCreated:         models.AgentInsight,
		models.EventNoteCreated:           models.AgentInsight,
		models.EventTaskActivated:         models.AgentTracker,
		models.EventTaskCompleted:         models.AgentTracker,
		models.EventAgentWarning:          models.AgentScout,
		models.EventSessionStarted:        models.AgentScout,
	}
	for typ, want := range cases {
		if got := AgentForEventType(typ); got != want {
			t.Errorf("%s: expected %s, got %s", typ, want, got)
		}
	}
}

func TestContributionForwardsLoopFeedback(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig())
	rec := &evolutionRecorder{}
	WithEvolutionSink(rec)(f.c)
	ctx := context.Background()
	activeSession(t, f.store, "camp-1")

	ev := liveEvent(models.EventLoopExecuted, models.SeveritySuccess)
	ev.EntityType = models.EntityLoop
	ev.EntityID = "loop-1"
	ev.Meta = map[string]interface{}{"success": true, "message": "done"}
	f.c.Enqueue(ev)
	f.c.Drain(ctx)

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 evolution event, got %d", len(rec.events))
	}
	evo := rec.events[0]
	if evo.Type != models.TriggerLoopFeedback {
		t.Errorf("expected loop_feedback trigger, got %s", evo.Type)
	}
	if evo.Meta["loop_status"] != "completed" {
		t.Errorf("expected completed status, got %v", evo.Meta["loop_status"])
	}
	if !evo.Persona.Valid() {
		t.Errorf("forwarded event must name the contributing persona, got %q", evo.Persona)
	}
	if evo.SourceEntityID != "loop-1" {
		t.Errorf("expected source entity loop-1, got %s", evo.SourceEntityID)
	}
}

func TestContributionDoesNotForwardRoutineEvents(t *testing.T) {
	f := newControllerFixture(t, DefaultConfig())
	rec := &evolutionRecorder{}
	WithEvolutionSink(rec)(f.c)
	ctx := context.Background()
	activeSession(t, f.store, "camp-1")

	f.c.Enqueue(liveEvent(models.EventTaskActivated, models.SeverityInfo))
	f.c.Drain(ctx)

	if len(rec.events) != 0 {
		t.Fatalf("routine events should not trigger drift, got %d", len(rec.events))
	}
}

package fusion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/totalaud/agentcore/internal/bus"
	"github.com/totalaud/agentcore/internal/memory"
	"github.com/totalaud/agentcore/internal/store"
	"github.com/totalaud/agentcore/pkg/models"
)

// Config tunes the live fusion controller.
type Config struct {
	// MinDelayPerPersona is the minimum gap between two contributions from
	// the same persona.
	MinDelayPerPersona time.Duration

	// MaxPerPersonaPerMinute caps contributions per persona in a sliding
	// 60-second window.
	MaxPerPersonaPerMinute int

	// QueueCap bounds the priority queue; lowest-priority entries are
	// dropped first when full.
	QueueCap int

	// ConsensusThreshold is how many same-sentiment voices among the
	// recent messages trigger a consensus memory.
	ConsensusThreshold int
}

// DefaultConfig mirrors the reference cadence: 10s per-persona delay,
// 4 contributions per minute, queue of 50, consensus at 3.
func DefaultConfig() Config {
	return Config{
		MinDelayPerPersona:     10 * time.Second,
		MaxPerPersonaPerMinute: 4,
		QueueCap:               50,
		ConsensusThreshold:     3,
	}
}

// consensusWindow is how many recent messages (plus the new one) the
// consensus check looks at.
const consensusWindow = 5

type personaState struct {
	lastContributionAt time.Time
	timestamps         []time.Time // trailing minute
}

type queuedEvent struct {
	event    models.LiveEvent
	priority int
	seq      uint64 // arrival order, for stable equal-priority ordering
}

// Controller arbitrates which persona responds to which live event.
// Events are queued by priority on receipt; Drain processes the highest
// one per tick. All state is in-memory and per-controller.
type Controller struct {
	cfg      Config
	store    store.Store
	bus      *bus.Bus
	reasoner *Reasoner
	memories *memory.Writer
	sink     EvolutionSink

	nowFn func() time.Time

	mu      sync.Mutex
	queue   []queuedEvent
	nextSeq uint64
	states  map[string]map[models.Persona]*personaState // session → persona
	unsub   bus.Unsubscribe
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerClock injects the controller's clock.
func WithControllerClock(nowFn func() time.Time) ControllerOption {
	return func(c *Controller) { c.nowFn = nowFn }
}

// WithEvolutionSink wires fusion outcomes into the evolution engine.
func WithEvolutionSink(sink EvolutionSink) ControllerOption {
	return func(c *Controller) { c.sink = sink }
}

// NewController creates a live fusion controller. memories may be nil to
// disable consensus memory writes.
func NewController(cfg Config, s store.Store, b *bus.Bus, reasoner *Reasoner, memories *memory.Writer, opts ...ControllerOption) *Controller {
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = DefaultConfig().QueueCap
	}
	c := &Controller{
		cfg:      cfg,
		store:    s,
		bus:      b,
		reasoner: reasoner,
		memories: memories,
		states:   make(map[string]map[models.Persona]*personaState),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes the controller to the bus. Contribution events flow
// back in too; cycles are expected and bounded by the rate limiter.
func (c *Controller) Start() {
	c.unsub = c.bus.Subscribe(c.Enqueue)
	log.Info().Msg("🎛️ Live fusion controller started")
}

// Stop unsubscribes and clears all queued work and rate-limit state.
func (c *Controller) Stop() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	c.mu.Lock()
	c.queue = nil
	c.states = make(map[string]map[models.Persona]*personaState)
	c.mu.Unlock()
	log.Info().Msg("🎛️ Live fusion controller stopped")
}

// ── Queue ───────────────────────────────────────────────────

// Enqueue inserts an event into the priority queue. Ordering is descending
// by priority, stable by arrival for equal priorities. When the queue is
// full the lowest-priority tail entry is dropped.
func (c *Controller) Enqueue(event models.LiveEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSeq++
	qe := queuedEvent{event: event, priority: event.Priority(), seq: c.nextSeq}

	// Insert before the first entry with strictly lower priority; equal
	// priorities keep arrival order.
	pos := len(c.queue)
	for i := range c.queue {
		if c.queue[i].priority < qe.priority {
			pos = i
			break
		}
	}
	c.queue = append(c.queue, queuedEvent{})
	copy(c.queue[pos+1:], c.queue[pos:])
	c.queue[pos] = qe

	if len(c.queue) > c.cfg.QueueCap {
		c.queue = c.queue[:c.cfg.QueueCap]
	}
}

// QueueLen reports how many events are waiting.
func (c *Controller) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Controller) pop() (models.LiveEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return models.LiveEvent{}, false
	}
	qe := c.queue[0]
	c.queue = c.queue[1:]
	return qe.event, true
}

// ── Drain ───────────────────────────────────────────────────

// Drain processes the single highest-priority queued event: resolve its
// campaign to an active session, pick a persona, generate and persist a
// contribution. Events with no active session or no eligible persona are
// dropped silently.
func (c *Controller) Drain(ctx context.Context) {
	event, ok := c.pop()
	if !ok {
		return
	}

	session, err := c.store.FindActiveSession(ctx, event.CampaignID)
	if err != nil {
		var nf *store.ErrNotFound
		if !errors.As(err, &nf) {
			log.Error().Err(err).Str("campaign_id", event.CampaignID).Msg("⚠️ Session lookup failed")
		}
		return
	}

	persona, ok := c.selectPersona(session.ID, event)
	if !ok {
		log.Debug().Str("event_type", string(event.Type)).Msg("All personas rate limited, event dropped")
		return
	}

	c.contribute(ctx, session, event, persona)
}

// selectPersona prefers the event's persona hint when that persona may
// speak; otherwise the eligible persona that has been quiet longest wins.
func (c *Controller) selectPersona(sessionID string, event models.LiveEvent) (models.Persona, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	if event.PersonaHint.Valid() && c.eligible(sessionID, event.PersonaHint, now) {
		return event.PersonaHint, true
	}

	var chosen models.Persona
	var chosenAt time.Time
	found := false
	for _, p := range PersonaOrder {
		if !c.eligible(sessionID, p, now) {
			continue
		}
		at := c.state(sessionID, p).lastContributionAt
		if !found || at.Before(chosenAt) {
			chosen, chosenAt, found = p, at, true
		}
	}
	return chosen, found
}

// eligible checks both rate-limit conditions for a persona. Caller holds mu.
func (c *Controller) eligible(sessionID string, persona models.Persona, now time.Time) bool {
	st := c.state(sessionID, persona)
	if !st.lastContributionAt.IsZero() && now.Sub(st.lastContributionAt) < c.cfg.MinDelayPerPersona {
		return false
	}

	// Age out timestamps older than a minute.
	cutoff := now.Add(-time.Minute)
	kept := st.timestamps[:0]
	for _, ts := range st.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	st.timestamps = kept

	return len(st.timestamps) < c.cfg.MaxPerPersonaPerMinute
}

// state returns (lazily creating) a persona's rate state. Caller holds mu.
func (c *Controller) state(sessionID string, persona models.Persona) *personaState {
	session, ok := c.states[sessionID]
	if !ok {
		session = make(map[models.Persona]*personaState)
		c.states[sessionID] = session
	}
	st, ok := session[persona]
	if !ok {
		st = &personaState{}
		session[persona] = st
	}
	return st
}

// ── Contribution ────────────────────────────────────────────

func (c *Controller) contribute(ctx context.Context, session *models.FusionSession, event models.LiveEvent, persona models.Persona) {
	previous, err := c.store.ListFusionMessages(ctx, session.ID, 10)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("⚠️ Loading fusion history failed")
		return
	}

	agent := event.Agent
	if !agent.Valid() {
		agent = AgentForEventType(event.Type)
	}
	focus := focusFromEvent(event)

	contribution := c.reasoner.Contribute(focus, previous, agent, persona)

	now := c.nowFn()
	msg := &models.FusionMessage{
		ID:              uuid.NewString(),
		SessionID:       session.ID,
		Persona:         persona,
		Agent:           agent,
		Summary:         contribution.Summary,
		Recommendations: contribution.Recommendations,
		Sentiment:       contribution.Sentiment,
		EventType:       event.Type,
		EntityID:        event.EntityID,
		CreatedAt:       now,
	}
	if err := c.store.CreateFusionMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("⚠️ Persisting fusion message failed")
		return
	}

	c.mu.Lock()
	st := c.state(session.ID, persona)
	st.lastContributionAt = now
	st.timestamps = append(st.timestamps, now)
	c.mu.Unlock()

	log.Info().
		Str("session_id", session.ID).
		Str("persona", string(persona)).
		Str("agent", string(agent)).
		Str("sentiment", string(contribution.Sentiment)).
		Msg("🎛️ Persona contributed")

	c.bus.Emit(models.LiveEvent{
		Type:        models.EventContributionCreated,
		Timestamp:   now,
		CampaignID:  event.CampaignID,
		EntityType:  models.EntitySession,
		EntityID:    session.ID,
		PersonaHint: persona,
		Severity:    models.SeverityInfo,
		Meta: map[string]interface{}{
			"message_id": msg.ID,
			"sentiment":  string(contribution.Sentiment),
		},
	})

	c.forwardEvolution(ctx, session, event, persona)
	c.checkConsensus(ctx, session, previous, msg)
}

// forwardEvolution turns the event a persona just spoke about into a drift
// trigger for that persona. Only event kinds with a feedback meaning are
// forwarded; sink failures are logged and never interrupt the drain.
func (c *Controller) forwardEvolution(ctx context.Context, session *models.FusionSession, event models.LiveEvent, persona models.Persona) {
	if c.sink == nil {
		return
	}

	var evo *models.EvolutionEvent
	switch event.Type {
	case models.EventLoopExecuted:
		status := "failed"
		if ok, _ := event.Meta["success"].(bool); ok {
			status = "completed"
		}
		evo = &models.EvolutionEvent{
			Type:    models.TriggerLoopFeedback,
			Persona: persona,
			Meta:    map[string]interface{}{"loop_status": status},
		}
	case models.EventAgentSuccess:
		evo = &models.EvolutionEvent{Type: models.TriggerAgentSuccess, Persona: persona}
	case models.EventAgentWarning:
		evo = &models.EvolutionEvent{Type: models.TriggerAgentWarning, Persona: persona}
	default:
		return
	}

	evo.SourceEntityType = event.EntityType
	evo.SourceEntityID = event.EntityID
	evo.Timestamp = c.nowFn()
	if err := c.sink.ProcessEvent(ctx, session.UserID, session.CampaignID, *evo); err != nil {
		log.Error().Err(err).
			Str("persona", string(persona)).
			Str("trigger", string(evo.Type)).
			Msg("⚠️ Evolution trigger failed")
	}
}

// AgentForEventType maps an event type to the agent that naturally owns
// it when the event itself does not name one.
func AgentForEventType(t models.EventType) models.AgentName {
	switch t {
	case models.EventLoopExecuted, models.EventLoopSuggestionCreated:
		return models.AgentCoach
	case models.EventMemoryCreated, models.EventNoteCreated:
		return models.AgentInsight
	case models.EventTaskActivated, models.EventTaskCompleted:
		return models.AgentTracker
	default:
		return models.AgentScout
	}
}

func focusFromEvent(event models.LiveEvent) *models.Focus {
	focus := &models.Focus{ID: event.EntityID, Data: map[string]interface{}{"id": event.EntityID}}
	switch event.EntityType {
	case models.EntityTask:
		focus.Kind = models.FocusTask
	case models.EntityNote:
		focus.Kind = models.FocusNote
	default:
		focus.Kind = models.FocusCampaign
		if focus.ID == "" {
			focus.ID = event.CampaignID
			focus.Data["id"] = event.CampaignID
		}
	}
	if event.Meta != nil {
		for k, v := range event.Meta {
			focus.Data[k] = v
		}
	}
	return focus
}

// ── Consensus ───────────────────────────────────────────────

// checkConsensus counts sentiments over the last messages plus the new
// one; a majority at or above the threshold writes a consensus memory.
func (c *Controller) checkConsensus(ctx context.Context, session *models.FusionSession, previous []models.FusionMessage, newMsg *models.FusionMessage) {
	if c.memories == nil {
		return
	}

	recent := previous
	if len(recent) > consensusWindow {
		recent = recent[:consensusWindow]
	}

	counts := make(map[models.Sentiment]int)
	for i := range recent {
		counts[recent[i].Sentiment]++
	}
	counts[newMsg.Sentiment]++

	var top models.Sentiment
	max := 0
	for _, s := range []models.Sentiment{models.SentimentPositive, models.SentimentNeutral, models.SentimentCautious, models.SentimentCritical} {
		if counts[s] > max {
			max = counts[s]
			top = s
		}
	}
	if max < c.cfg.ConsensusThreshold {
		return
	}

	recs := newMsg.Recommendations
	if len(recs) > 3 {
		recs = recs[:3]
	}
	mem := &models.Memory{
		UserID:     session.UserID,
		CampaignID: session.CampaignID,
		Persona:    newMsg.Persona,
		Agent:      newMsg.Agent,
		MemoryType: models.MemoryConsensus,
		Title:      string(top) + " consensus",
		Content: map[string]interface{}{
			"summary":         "Consensus reached: " + string(top) + " sentiment across persona perspectives",
			"recommendations": recs,
			"session_id":      session.ID,
			"votes":           max,
		},
		Importance: 4,
		CreatedAt:  c.nowFn(),
	}
	if _, err := c.memories.Write(ctx, mem); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("⚠️ Consensus memory write failed")
		return
	}
	log.Info().
		Str("session_id", session.ID).
		Str("sentiment", string(top)).
		Int("votes", max).
		Msg("🧠 Consensus memory written")
}

// ── Full-pass API ───────────────────────────────────────────

// AnalyzeAndEvolve runs a full reasoning pass over a focus and feeds the
// outcome into the evolution engine when a sink is configured.
func (c *Controller) AnalyzeAndEvolve(ctx context.Context, focus *models.Focus, agent models.AgentName, userID, campaignID string) *models.FusionOutput {
	output := c.reasoner.Analyze(ctx, focus, agent)
	if c.sink != nil {
		TriggerFusionEvolution(ctx, c.sink, output, userID, campaignID)
	}
	return output
}

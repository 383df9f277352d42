// Package models defines the shared domain types for the agent core:
// live events, autonomous loops, persona contributions, fusion output,
// and evolution profiles. Handler and engine code all speak these types.
package models

import (
	"time"
)

// ── Personas & Agents ────────────────────────────────────────

// Persona is one of the five simulated behavioural personalities that can
// independently respond to campaign events. The set is closed: code switches
// over personas exhaustively rather than treating them as open strings.
type Persona string

const (
	PersonaASCII    Persona = "ascii"
	PersonaXP       Persona = "xp"
	PersonaAqua     Persona = "aqua"
	PersonaDAW      Persona = "daw"
	PersonaAnalogue Persona = "analogue"
)

// AllPersonas is the fixed contribution order. Cross-persona reasoning
// processes personas in this order so later voices can react to earlier ones.
var AllPersonas = []Persona{PersonaASCII, PersonaXP, PersonaAqua, PersonaDAW, PersonaAnalogue}

// Valid reports whether p is a known persona.
func (p Persona) Valid() bool {
	switch p {
	case PersonaASCII, PersonaXP, PersonaAqua, PersonaDAW, PersonaAnalogue:
		return true
	}
	return false
}

// AgentName identifies one of the four autonomous actor kinds.
type AgentName string

const (
	AgentScout   AgentName = "scout"
	AgentCoach   AgentName = "coach"
	AgentTracker AgentName = "tracker"
	AgentInsight AgentName = "insight"
)

// AllAgents lists every agent kind.
var AllAgents = []AgentName{AgentScout, AgentCoach, AgentTracker, AgentInsight}

// Valid reports whether a is a known agent.
func (a AgentName) Valid() bool {
	switch a {
	case AgentScout, AgentCoach, AgentTracker, AgentInsight:
		return true
	}
	return false
}

// ── Live Events ─────────────────────────────────────────────

// EventType enumerates the live event kinds flowing through the bus.
type EventType string

const (
	EventTaskActivated         EventType = "task_activated"
	EventTaskCompleted         EventType = "task_completed"
	EventLoopExecuted          EventType = "loop_executed"
	EventLoopSuggestionCreated EventType = "loop_suggestion_created"
	EventSessionStarted        EventType = "session_started"
	EventSessionEnded          EventType = "session_ended"
	EventMemoryCreated         EventType = "memory_created"
	EventNoteCreated           EventType = "note_created"
	EventAgentWarning          EventType = "agent_warning"
	EventAgentSuccess          EventType = "agent_success"
	EventContributionCreated   EventType = "contribution_created"
)

// Severity grades a live event for prioritisation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// EntityType names the kind of entity a live event references.
type EntityType string

const (
	EntityTask     EntityType = "task"
	EntityNote     EntityType = "note"
	EntityCampaign EntityType = "campaign"
	EntityLoop     EntityType = "loop"
	EntitySession  EntityType = "session"
	EntityMemory   EntityType = "memory"
)

// LiveEvent is the ephemeral pub/sub message exchanged on the event bus.
// It is never persisted beyond the bus's in-memory ring buffer.
type LiveEvent struct {
	Type        EventType              `json:"type"`
	Timestamp   time.Time              `json:"timestamp"`
	CampaignID  string                 `json:"campaign_id"`
	EntityType  EntityType             `json:"entity_type,omitempty"`
	EntityID    string                 `json:"entity_id,omitempty"`
	Agent       AgentName              `json:"agent,omitempty"`
	PersonaHint Persona                `json:"persona_hint,omitempty"`
	Severity    Severity               `json:"severity,omitempty"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

// TypePriority returns the 1-4 priority weight for an event type.
// Warnings outrank completions, which outrank routine activity.
func (t EventType) Priority() int {
	switch t {
	case EventAgentWarning:
		return 4
	case EventAgentSuccess, EventTaskCompleted, EventMemoryCreated:
		return 3
	case EventLoopExecuted, EventLoopSuggestionCreated, EventNoteCreated:
		return 2
	default:
		// task_activated, session lifecycle, contribution_created
		return 1
	}
}

// Priority returns the 1-4 weight for a severity. Unknown severities count as info.
func (s Severity) Priority() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityWarning:
		return 3
	case SeveritySuccess:
		return 2
	default:
		return 1
	}
}

// Priority is the combined drain priority of a live event:
// type priority + severity priority, each 1-4.
func (e *LiveEvent) Priority() int {
	return e.Type.Priority() + e.Severity.Priority()
}

// ── Agent Loops ─────────────────────────────────────────────

// LoopType classifies what a standing autonomous loop does.
type LoopType string

const (
	LoopImprovement LoopType = "improvement"
	LoopExploration LoopType = "exploration"
	LoopHealthcheck LoopType = "healthcheck"
	LoopEmotion     LoopType = "emotion"
	LoopPrediction  LoopType = "prediction"
)

// LoopInterval is the scheduling cadence of a loop.
type LoopInterval string

const (
	Interval5m    LoopInterval = "5m"
	Interval15m   LoopInterval = "15m"
	Interval1h    LoopInterval = "1h"
	IntervalDaily LoopInterval = "daily"
)

// LoopStatus is the loop state machine: idle → running → {idle, error}.
// Disabled loops are never scheduled.
type LoopStatus string

const (
	LoopIdle     LoopStatus = "idle"
	LoopRunning  LoopStatus = "running"
	LoopError    LoopStatus = "error"
	LoopDisabled LoopStatus = "disabled"
)

// AgentLoop is a standing autonomous task bound to one agent kind.
// Mutated only by the loop engine; deletion is an external operation.
type AgentLoop struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	CampaignID string                 `json:"campaign_id,omitempty"`
	Agent      AgentName              `json:"agent"`
	LoopType   LoopType               `json:"loop_type"`
	Interval   LoopInterval           `json:"interval"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	LastRun    *time.Time             `json:"last_run,omitempty"`
	NextRun    *time.Time             `json:"next_run,omitempty"`
	Status     LoopStatus             `json:"status"`

	// Version guards concurrent read-modify-write: conditional updates
	// fail with ErrConflict when another writer got there first.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoopExecutionResult is what one loop execution produced.
type LoopExecutionResult struct {
	Success         bool                   `json:"success"`
	Message         string                 `json:"message"`
	Data            map[string]interface{} `json:"data,omitempty"`
	TasksCreated    int                    `json:"tasks_created,omitempty"`
	NotesCreated    int                    `json:"notes_created,omitempty"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	Error           string                 `json:"error,omitempty"`
}

// LoopEvent is the immutable, append-only record of one loop execution.
type LoopEvent struct {
	ID        string              `json:"id"`
	LoopID    string              `json:"loop_id"`
	Agent     AgentName           `json:"agent"`
	Result    LoopExecutionResult `json:"result"`
	CreatedAt time.Time           `json:"created_at"`
}

// SuggestionStatus tracks a suggestion's lifecycle.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionDeclined SuggestionStatus = "declined"
)

// LoopSuggestion is a proposed loop or action generated by analysis.
// It lives until the user accepts, declines, or modifies it.
type LoopSuggestion struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id"`
	Agent       AgentName              `json:"agent"`
	LoopType    LoopType               `json:"loop_type"`
	Interval    LoopInterval           `json:"interval"`
	Title       string                 `json:"title"`
	Rationale   string                 `json:"rationale"`
	Priority    int                    `json:"priority"` // 1 (low) - 5 (high)
	Action      map[string]interface{} `json:"action,omitempty"`
	Status      SuggestionStatus       `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	ResolvedAt  *time.Time             `json:"resolved_at,omitempty"`
}

// LoopMetrics summarises scheduler well-being for dashboards.
type LoopMetrics struct {
	TotalLoops           int                          `json:"total_loops"`
	ActiveLoops          int                          `json:"active_loops"`
	ExecutedLast24h      int                          `json:"executed_last_24h"`
	HealthScore          int                          `json:"health_score"` // 0-100
	NextLoopRun          *time.Time                   `json:"next_loop_run,omitempty"`
	AgentBreakdown       map[AgentName]AgentLoopStats `json:"agent_breakdown"`
}

// AgentLoopStats is the per-agent slice of LoopMetrics.
type AgentLoopStats struct {
	LoopCount   int        `json:"loop_count"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	SuccessRate float64    `json:"success_rate"`
}

// ── Fusion ──────────────────────────────────────────────────

// Sentiment is a persona's stance on a focus entity.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentCautious Sentiment = "cautious"
	SentimentCritical Sentiment = "critical"
)

// FocusKind classifies the entity a reasoning pass centres on.
type FocusKind string

const (
	FocusTask     FocusKind = "task"
	FocusNote     FocusKind = "note"
	FocusCampaign FocusKind = "campaign"
)

// Focus is the entity a reasoning pass analyses. Data carries whatever
// fields the focus kind needs (name, goal, content, note type).
type Focus struct {
	Kind FocusKind              `json:"kind"`
	ID   string                 `json:"id"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// Name returns the display name of the focus entity, falling back to its id.
func (f *Focus) Name() string {
	if f.Data != nil {
		if n, ok := f.Data["name"].(string); ok && n != "" {
			return n
		}
	}
	return f.ID
}

// PersonaContribution is one persona's analysis of a focus entity.
// It is a pure value; the persisted form is a FusionMessage.
type PersonaContribution struct {
	Summary         string    `json:"summary"`
	Recommendations []string  `json:"recommendations"`
	Sentiment       Sentiment `json:"sentiment"`
}

// FusionOutput aggregates one contribution per persona plus the synthesis
// across them: a unified summary, agreements, and tensions.
type FusionOutput struct {
	PerPersona        map[Persona]PersonaContribution `json:"per_persona"`
	UnifiedSummary    string                          `json:"unified_summary"`
	PointsOfAgreement []string                        `json:"points_of_agreement"`
	PointsOfTension   []string                        `json:"points_of_tension"`
}

// FusionMessage is the persisted form of a persona contribution,
// keyed by the fusion session it belongs to.
type FusionMessage struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Persona         Persona   `json:"persona"`
	Agent           AgentName `json:"agent"`
	Summary         string    `json:"summary"`
	Recommendations []string  `json:"recommendations"`
	Sentiment       Sentiment `json:"sentiment"`
	EventType       EventType `json:"event_type,omitempty"`
	EntityID        string    `json:"entity_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// FusionSession is a live collaboration window for one campaign.
// Sessions are external state: the controller looks them up, never owns them.
type FusionSession struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	CampaignID string     `json:"campaign_id"`
	Active     bool       `json:"active"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// ── Memories ────────────────────────────────────────────────

// MemoryType classifies a long-term memory.
type MemoryType string

const (
	MemoryConsensus  MemoryType = "consensus"
	MemoryInsight    MemoryType = "insight"
	MemoryMilestone  MemoryType = "milestone"
	MemoryReflection MemoryType = "reflection"
)

// Memory is a long-term record written when personas reach consensus or an
// agent surfaces something durable. Importance runs 1 (trivial) to 5 (pivotal).
type Memory struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	CampaignID string                 `json:"campaign_id,omitempty"`
	Persona    Persona                `json:"persona,omitempty"`
	Agent      AgentName              `json:"agent,omitempty"`
	MemoryType MemoryType             `json:"memory_type"`
	Title      string                 `json:"title"`
	Content    map[string]interface{} `json:"content,omitempty"`
	Importance int                    `json:"importance"`
	CreatedAt  time.Time              `json:"created_at"`
}

// ── Evolution ───────────────────────────────────────────────

// Emotion names one of the five weights in a profile's emotional bias.
type Emotion string

const (
	EmotionHope    Emotion = "hope"
	EmotionDoubt   Emotion = "doubt"
	EmotionClarity Emotion = "clarity"
	EmotionPride   Emotion = "pride"
	EmotionFear    Emotion = "fear"
)

// AllEmotions lists the five bias emotions.
var AllEmotions = []Emotion{EmotionHope, EmotionDoubt, EmotionClarity, EmotionPride, EmotionFear}

// EmotionalBias is a probability-like distribution over the five emotions.
// The evolution engine renormalises it to sum to 1.0 after every update.
type EmotionalBias map[Emotion]float64

// Sum returns the total weight across all emotions.
func (b EmotionalBias) Sum() float64 {
	var s float64
	for _, w := range b {
		s += w
	}
	return s
}

// Clone returns a copy of the bias map.
func (b EmotionalBias) Clone() EmotionalBias {
	out := make(EmotionalBias, len(b))
	for e, w := range b {
		out[e] = w
	}
	return out
}

// DefaultEmotionalBias is the uniform starting distribution.
func DefaultEmotionalBias() EmotionalBias {
	return EmotionalBias{
		EmotionHope:    0.2,
		EmotionDoubt:   0.2,
		EmotionClarity: 0.2,
		EmotionPride:   0.2,
		EmotionFear:    0.2,
	}
}

// Profile bounds for scalar traits and tempo preference.
const (
	TraitMin = 0.0
	TraitMax = 1.0
	TempoMin = 60.0
	TempoMax = 180.0

	DefaultTrait = 0.5
	DefaultTempo = 120.0
)

// Profile is the evolution state of one persona for one user (optionally
// scoped to a campaign). All scalar traits stay inside their closed
// interval; only the evolution engine mutates a profile.
type Profile struct {
	UserID     string  `json:"user_id"`
	CampaignID string  `json:"campaign_id,omitempty"`
	Persona    Persona `json:"persona"`

	ConfidenceLevel float64       `json:"confidence_level"` // [0,1]
	Verbosity       float64       `json:"verbosity"`        // [0,1]
	RiskTolerance   float64       `json:"risk_tolerance"`   // [0,1]
	EmpathyLevel    float64       `json:"empathy_level"`    // [0,1]
	EmotionalBias   EmotionalBias `json:"emotional_bias"`

	// TempoPreference is only meaningful for tempo-sensitive personas (daw).
	// Nil elsewhere. Range [60,180] BPM.
	TempoPreference *float64 `json:"tempo_preference,omitempty"`

	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultProfile returns a fresh profile with documented defaults:
// 0.5 for every trait, uniform bias, tempo 120 for the daw persona.
func DefaultProfile(userID string, persona Persona, campaignID string) *Profile {
	p := &Profile{
		UserID:          userID,
		CampaignID:      campaignID,
		Persona:         persona,
		ConfidenceLevel: DefaultTrait,
		Verbosity:       DefaultTrait,
		RiskTolerance:   DefaultTrait,
		EmpathyLevel:    DefaultTrait,
		EmotionalBias:   DefaultEmotionalBias(),
	}
	if persona == PersonaDAW {
		tempo := DefaultTempo
		p.TempoPreference = &tempo
	}
	return p
}

// EvolutionTrigger enumerates the feedback event kinds the evolution
// engine reacts to.
type EvolutionTrigger string

const (
	TriggerMemory          EvolutionTrigger = "memory"
	TriggerFusionAgreement EvolutionTrigger = "fusion_agreement"
	TriggerFusionTension   EvolutionTrigger = "fusion_tension"
	TriggerLoopFeedback    EvolutionTrigger = "loop_feedback"
	TriggerAgentSuccess    EvolutionTrigger = "agent_success"
	TriggerAgentWarning    EvolutionTrigger = "agent_warning"
	TriggerUserOverride    EvolutionTrigger = "user_override"
	TriggerSentimentShift  EvolutionTrigger = "sentiment_shift"
)

// EvolutionEvent is a feedback occurrence the engine turns into drift.
type EvolutionEvent struct {
	Type             EvolutionTrigger       `json:"type"`
	Persona          Persona                `json:"persona"`
	Meta             map[string]interface{} `json:"meta,omitempty"`
	SourceEntityType EntityType             `json:"source_entity_type,omitempty"`
	SourceEntityID   string                 `json:"source_entity_id,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
}

// EvolutionDelta is a partial set of trait nudges. Nil fields are untouched.
// Bias entries are added per-emotion; the engine renormalises afterwards.
type EvolutionDelta struct {
	Confidence      *float64                `json:"confidence,omitempty"`
	Verbosity       *float64                `json:"verbosity,omitempty"`
	RiskTolerance   *float64                `json:"risk_tolerance,omitempty"`
	Empathy         *float64                `json:"empathy,omitempty"`
	TempoPreference *float64                `json:"tempo_preference,omitempty"`
	EmotionalBias   map[Emotion]float64     `json:"emotional_bias,omitempty"`
}

// EvolutionRecord is the immutable audit entry written after each applied
// drift: the post-cap delta plus the rationale of every rule that fired.
type EvolutionRecord struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	CampaignID string           `json:"campaign_id,omitempty"`
	Persona    Persona          `json:"persona"`
	Trigger    EvolutionTrigger `json:"trigger"`
	Delta      EvolutionDelta   `json:"delta"`
	Reasoning  string           `json:"reasoning"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Float64Ptr returns a pointer to v. Convenience for building deltas.
func Float64Ptr(v float64) *float64 { return &v }

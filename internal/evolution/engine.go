package evolution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/totalaud/agentcore/internal/store"
	"github.com/totalaud/agentcore/pkg/models"
)

const (
	// SmoothingFactor damps every applied nudge so single events never
	// jerk a trait.
	SmoothingFactor = 0.7

	// MaxDriftPerEvent caps the combined magnitude of one event's delta.
	// When exceeded, every field is scaled down by the same factor so
	// the total lands exactly on the cap.
	MaxDriftPerEvent = 0.1
)

// Engine turns feedback events into bounded profile drift and keeps an
// append-only audit trail. It satisfies the evolution sink interfaces of
// the fusion and memory layers.
type Engine struct {
	store store.Store
	nowFn func() time.Time
}

type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.nowFn = now }
}

func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{store: s, nowFn: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Profile returns the persona's current profile, creating the default
// lazily on first access.
func (e *Engine) Profile(ctx context.Context, userID string, persona models.Persona, campaignID string) (*models.Profile, error) {
	profile, err := e.store.GetProfile(ctx, userID, persona, campaignID)
	if err == nil {
		return profile, nil
	}
	var notFound *store.ErrNotFound
	if !errors.As(err, &notFound) {
		return nil, err
	}
	profile = models.DefaultProfile(userID, persona, campaignID)
	profile.UpdatedAt = e.nowFn()
	if createErr := e.store.CreateProfile(ctx, profile); createErr != nil {
		return nil, createErr
	}
	log.Info().
		Str("user_id", userID).
		Str("persona", string(persona)).
		Msg("🧬 Default profile created")
	return profile, nil
}

// ProcessEvent matches the rule table against one feedback event, merges
// the firing deltas, caps total magnitude, and applies the smoothed result
// to the persona's profile. A no-match event is a no-op. The persisted
// audit record carries the post-cap delta and every firing rule's
// reasoning.
func (e *Engine) ProcessEvent(ctx context.Context, userID, campaignID string, event models.EvolutionEvent) error {
	if !event.Persona.Valid() {
		return fmt.Errorf("evolution: unknown persona %q", event.Persona)
	}
	profile, err := e.Profile(ctx, userID, event.Persona, campaignID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	matched := Match(event, profile)
	if len(matched) == 0 {
		return nil
	}
	deltas := make([]models.EvolutionDelta, len(matched))
	reasons := make([]string, len(matched))
	for i, r := range matched {
		deltas[i] = r.Delta
		reasons[i] = r.Reasoning
	}

	capped := LimitDelta(MergeDeltas(deltas))
	ApplyDelta(profile, capped)
	profile.UpdatedAt = e.nowFn()

	if err := e.store.UpdateProfile(ctx, profile); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}

	rec := &models.EvolutionRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		CampaignID: campaignID,
		Persona:    event.Persona,
		Trigger:    event.Type,
		Delta:      capped,
		Reasoning:  strings.Join(reasons, "; "),
		CreatedAt:  e.nowFn(),
	}
	if err := e.store.CreateEvolutionRecord(ctx, rec); err != nil {
		return fmt.Errorf("persist evolution record: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("persona", string(event.Persona)).
		Str("trigger", string(event.Type)).
		Int("rules", len(matched)).
		Msg("🧬 Profile evolved")
	return nil
}

// ResetProfile restores a persona's traits to the documented defaults.
// The profile keeps its version history; an audit record marks the reset.
func (e *Engine) ResetProfile(ctx context.Context, userID string, persona models.Persona, campaignID string) (*models.Profile, error) {
	profile, err := e.Profile(ctx, userID, persona, campaignID)
	if err != nil {
		return nil, err
	}
	fresh := models.DefaultProfile(userID, persona, campaignID)
	profile.ConfidenceLevel = fresh.ConfidenceLevel
	profile.Verbosity = fresh.Verbosity
	profile.RiskTolerance = fresh.RiskTolerance
	profile.EmpathyLevel = fresh.EmpathyLevel
	profile.EmotionalBias = fresh.EmotionalBias
	profile.TempoPreference = fresh.TempoPreference
	profile.UpdatedAt = e.nowFn()
	if err := e.store.UpdateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("persist profile: %w", err)
	}
	rec := &models.EvolutionRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		CampaignID: campaignID,
		Persona:    persona,
		Trigger:    models.TriggerUserOverride,
		Reasoning:  "Profile reset to defaults by user",
		CreatedAt:  e.nowFn(),
	}
	if err := e.store.CreateEvolutionRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist evolution record: %w", err)
	}
	log.Info().
		Str("user_id", userID).
		Str("persona", string(persona)).
		Msg("🧬 Profile reset to defaults")
	return profile, nil
}

// Records returns the newest-first audit trail for a persona.
func (e *Engine) Records(ctx context.Context, userID string, persona models.Persona, limit int) ([]models.EvolutionRecord, error) {
	return e.store.ListEvolutionRecords(ctx, userID, persona, limit)
}

// DriftMagnitude is the sum of absolute trait nudges plus absolute bias
// nudges. Tempo is excluded: it lives on a BPM scale, not [0,1].
func DriftMagnitude(delta models.EvolutionDelta) float64 {
	var m float64
	for _, f := range []*float64{delta.Confidence, delta.Verbosity, delta.RiskTolerance, delta.Empathy} {
		if f != nil {
			m += math.Abs(*f)
		}
	}
	for _, v := range delta.EmotionalBias {
		m += math.Abs(v)
	}
	return m
}

// LimitDelta scales a delta down uniformly when its magnitude exceeds
// MaxDriftPerEvent. Tempo is scaled by the same factor even though it
// does not count toward the magnitude.
func LimitDelta(delta models.EvolutionDelta) models.EvolutionDelta {
	magnitude := DriftMagnitude(delta)
	if magnitude <= MaxDriftPerEvent {
		return delta
	}
	scale := MaxDriftPerEvent / magnitude
	scalePtr := func(f *float64) *float64 {
		if f == nil {
			return nil
		}
		return models.Float64Ptr(*f * scale)
	}
	out := models.EvolutionDelta{
		Confidence:      scalePtr(delta.Confidence),
		Verbosity:       scalePtr(delta.Verbosity),
		RiskTolerance:   scalePtr(delta.RiskTolerance),
		Empathy:         scalePtr(delta.Empathy),
		TempoPreference: scalePtr(delta.TempoPreference),
	}
	if len(delta.EmotionalBias) > 0 {
		out.EmotionalBias = make(map[models.Emotion]float64, len(delta.EmotionalBias))
		for emotion, v := range delta.EmotionalBias {
			out.EmotionalBias[emotion] = v * scale
		}
	}
	return out
}

// ApplyDelta mutates the profile in place: each nudge is smoothed by
// SmoothingFactor, scalars are clamped to [TraitMin,TraitMax], tempo to
// [TempoMin,TempoMax] when the profile carries one, and the bias
// distribution is renormalised to sum 1.0.
func ApplyDelta(profile *models.Profile, delta models.EvolutionDelta) {
	apply := func(current float64, nudge *float64) float64 {
		if nudge == nil {
			return current
		}
		return clamp(current+*nudge*SmoothingFactor, models.TraitMin, models.TraitMax)
	}
	profile.ConfidenceLevel = apply(profile.ConfidenceLevel, delta.Confidence)
	profile.Verbosity = apply(profile.Verbosity, delta.Verbosity)
	profile.RiskTolerance = apply(profile.RiskTolerance, delta.RiskTolerance)
	profile.EmpathyLevel = apply(profile.EmpathyLevel, delta.Empathy)

	if delta.TempoPreference != nil && profile.TempoPreference != nil {
		tempo := clamp(*profile.TempoPreference+*delta.TempoPreference*SmoothingFactor, models.TempoMin, models.TempoMax)
		profile.TempoPreference = &tempo
	}

	if len(delta.EmotionalBias) > 0 {
		next := profile.EmotionalBias.Clone()
		for emotion, v := range delta.EmotionalBias {
			next[emotion] = clamp(next[emotion]+v*SmoothingFactor, 0, 1)
		}
		profile.EmotionalBias = normalizeBias(next)
	}
}

// normalizeBias rescales the distribution to sum 1.0. A zero-sum
// distribution cannot be rescaled and is returned unchanged.
func normalizeBias(b models.EmotionalBias) models.EmotionalBias {
	sum := b.Sum()
	if sum <= 0 {
		return b
	}
	for emotion, v := range b {
		b[emotion] = v / sum
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

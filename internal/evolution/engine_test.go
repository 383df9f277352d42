package evolution

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/totalaud/agentcore/internal/store"
	"github.com/totalaud/agentcore/pkg/models"
)

func newTestEngine(t *testing.T) (*Engine, *store.InMemoryStore, time.Time) {
	t.Helper()
	s := store.NewInMemoryStore()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	e := NewEngine(s, WithClock(func() time.Time { return now }))
	return e, s, now
}

func evt(trigger models.EvolutionTrigger, persona models.Persona, meta map[string]interface{}) models.EvolutionEvent {
	return models.EvolutionEvent{Type: trigger, Persona: persona, Meta: meta}
}

func TestProfileCreatedLazily(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := s.GetProfile(ctx, "u1", models.PersonaDAW, ""); err == nil {
		t.Fatal("expected no profile before first access")
	}
	p, err := e.Profile(ctx, "u1", models.PersonaDAW, "")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.ConfidenceLevel != 0.5 || p.Verbosity != 0.5 || p.RiskTolerance != 0.5 || p.EmpathyLevel != 0.5 {
		t.Fatalf("default traits wrong: %+v", p)
	}
	if p.TempoPreference == nil || *p.TempoPreference != 120 {
		t.Fatalf("daw default tempo = %v, want 120", p.TempoPreference)
	}
	for _, emotion := range models.AllEmotions {
		if p.EmotionalBias[emotion] != 0.2 {
			t.Fatalf("bias[%s] = %v, want 0.2", emotion, p.EmotionalBias[emotion])
		}
	}
	if p2, err := e.Profile(ctx, "u1", models.PersonaXP, ""); err != nil {
		t.Fatalf("Profile xp: %v", err)
	} else if p2.TempoPreference != nil {
		t.Fatal("non-daw persona should have no tempo preference")
	}
}

func TestMatchRespectsTriggerFilterAndCondition(t *testing.T) {
	profile := models.DefaultProfile("u1", models.PersonaASCII, "")

	// Important memory fires the general rule plus the ascii variant.
	important := Match(evt(models.TriggerMemory, models.PersonaASCII, map[string]interface{}{"importance": 5}), profile)
	if len(important) != 2 {
		t.Fatalf("important memory matched %d rules, want 2", len(important))
	}

	// Low importance drops the conditioned rule but keeps the ascii one.
	trivial := Match(evt(models.TriggerMemory, models.PersonaASCII, map[string]interface{}{"importance": 2}), profile)
	if len(trivial) != 1 {
		t.Fatalf("trivial memory matched %d rules, want 1", len(trivial))
	}
	if trivial[0].Personas[0] != models.PersonaASCII {
		t.Fatalf("surviving rule should be the ascii variant, got %+v", trivial[0])
	}

	// Persona filter: aqua memory rule never fires for daw.
	dawProfile := models.DefaultProfile("u1", models.PersonaDAW, "")
	forDAW := Match(evt(models.TriggerMemory, models.PersonaDAW, map[string]interface{}{"importance": 5}), dawProfile)
	for _, r := range forDAW {
		if len(r.Personas) > 0 && r.Personas[0] == models.PersonaAqua {
			t.Fatal("aqua-only rule fired for daw")
		}
	}

	// Loop feedback status conditions are mutually exclusive.
	completed := Match(evt(models.TriggerLoopFeedback, models.PersonaXP, map[string]interface{}{"loop_status": "completed"}), profile)
	failed := Match(evt(models.TriggerLoopFeedback, models.PersonaXP, map[string]interface{}{"loop_status": "failed"}), profile)
	if len(completed) != 1 || len(failed) != 1 {
		t.Fatalf("xp loop feedback: completed=%d failed=%d, want 1 and 1", len(completed), len(failed))
	}
	if *completed[0].Delta.Confidence <= 0 || *failed[0].Delta.Confidence >= 0 {
		t.Fatal("completed should raise confidence, failed should lower it")
	}
}

func TestMergeDeltasSumsFields(t *testing.T) {
	merged := MergeDeltas([]models.EvolutionDelta{
		{Confidence: models.Float64Ptr(0.02), EmotionalBias: map[models.Emotion]float64{models.EmotionHope: 0.03}},
		{Confidence: models.Float64Ptr(0.04), Verbosity: models.Float64Ptr(-0.01), EmotionalBias: map[models.Emotion]float64{models.EmotionHope: 0.02, models.EmotionPride: 0.01}},
	})
	if merged.Confidence == nil || math.Abs(*merged.Confidence-0.06) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.06", merged.Confidence)
	}
	if merged.Verbosity == nil || *merged.Verbosity != -0.01 {
		t.Fatalf("verbosity = %v, want -0.01", merged.Verbosity)
	}
	if merged.RiskTolerance != nil || merged.Empathy != nil || merged.TempoPreference != nil {
		t.Fatal("unset fields must stay nil")
	}
	if math.Abs(merged.EmotionalBias[models.EmotionHope]-0.05) > 1e-9 {
		t.Fatalf("hope bias = %v, want 0.05", merged.EmotionalBias[models.EmotionHope])
	}
}

func TestLimitDeltaScalesToCapExactly(t *testing.T) {
	delta := models.EvolutionDelta{
		Confidence:      models.Float64Ptr(0.1),
		Verbosity:       models.Float64Ptr(-0.1),
		RiskTolerance:   models.Float64Ptr(0.1),
		Empathy:         models.Float64Ptr(0.1),
		TempoPreference: models.Float64Ptr(4),
		EmotionalBias:   map[models.Emotion]float64{models.EmotionHope: 0.1},
	}
	// magnitude 0.5, so everything scales by 0.2
	capped := LimitDelta(delta)
	if got := DriftMagnitude(capped); math.Abs(got-MaxDriftPerEvent) > 1e-9 {
		t.Fatalf("capped magnitude = %v, want %v", got, MaxDriftPerEvent)
	}
	if math.Abs(*capped.Confidence-0.02) > 1e-9 {
		t.Fatalf("confidence scaled to %v, want 0.02", *capped.Confidence)
	}
	if math.Abs(*capped.Verbosity+0.02) > 1e-9 {
		t.Fatalf("verbosity scaled to %v, want -0.02", *capped.Verbosity)
	}
	// tempo rides the same factor without counting toward the magnitude
	if math.Abs(*capped.TempoPreference-0.8) > 1e-9 {
		t.Fatalf("tempo scaled to %v, want 0.8", *capped.TempoPreference)
	}
	// original is untouched
	if *delta.Confidence != 0.1 {
		t.Fatal("LimitDelta mutated its input")
	}
}

func TestLimitDeltaLeavesSmallDeltasAlone(t *testing.T) {
	delta := models.EvolutionDelta{Confidence: models.Float64Ptr(0.03)}
	capped := LimitDelta(delta)
	if capped.Confidence != delta.Confidence {
		t.Fatal("under-cap delta should pass through unchanged")
	}
}

func TestApplyDeltaSmoothsClampsAndRenormalises(t *testing.T) {
	profile := models.DefaultProfile("u1", models.PersonaDAW, "")
	profile.ConfidenceLevel = 0.98

	ApplyDelta(profile, models.EvolutionDelta{
		Confidence:      models.Float64Ptr(0.1), // 0.98 + 0.07 clamps at 1
		Verbosity:       models.Float64Ptr(-0.1),
		TempoPreference: models.Float64Ptr(10),
		EmotionalBias:   map[models.Emotion]float64{models.EmotionHope: 0.1},
	})

	if profile.ConfidenceLevel != 1.0 {
		t.Fatalf("confidence = %v, want clamped 1.0", profile.ConfidenceLevel)
	}
	if math.Abs(profile.Verbosity-0.43) > 1e-9 {
		t.Fatalf("verbosity = %v, want 0.43 after 0.7 smoothing", profile.Verbosity)
	}
	if math.Abs(*profile.TempoPreference-127) > 1e-9 {
		t.Fatalf("tempo = %v, want 127", *profile.TempoPreference)
	}
	if got := profile.EmotionalBias.Sum(); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("bias sum = %v, want 1.0", got)
	}
	if profile.EmotionalBias[models.EmotionHope] <= profile.EmotionalBias[models.EmotionDoubt] {
		t.Fatal("hope should dominate after a positive hope nudge")
	}
}

func TestApplyDeltaTempoIgnoredWithoutPreference(t *testing.T) {
	profile := models.DefaultProfile("u1", models.PersonaXP, "")
	ApplyDelta(profile, models.EvolutionDelta{TempoPreference: models.Float64Ptr(10)})
	if profile.TempoPreference != nil {
		t.Fatal("tempo nudge must not create a preference on non-daw profiles")
	}
}

func TestApplyDeltaTempoClamp(t *testing.T) {
	profile := models.DefaultProfile("u1", models.PersonaDAW, "")
	tempo := 179.0
	profile.TempoPreference = &tempo
	ApplyDelta(profile, models.EvolutionDelta{TempoPreference: models.Float64Ptr(10)})
	if *profile.TempoPreference != 180 {
		t.Fatalf("tempo = %v, want clamped 180", *profile.TempoPreference)
	}
}

func TestProcessEventPersistsProfileAndRecord(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	err := e.ProcessEvent(ctx, "u1", "c1", evt(models.TriggerAgentSuccess, models.PersonaXP, nil))
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	p, err := s.GetProfile(ctx, "u1", models.PersonaXP, "c1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.ConfidenceLevel <= 0.5 {
		t.Fatalf("confidence = %v, want above default after success", p.ConfidenceLevel)
	}
	if p.Verbosity <= 0.5 {
		t.Fatalf("verbosity = %v, want above default for xp success", p.Verbosity)
	}
	if p.Version != 2 {
		t.Fatalf("profile version = %d, want 2 after one update", p.Version)
	}

	recs, err := s.ListEvolutionRecords(ctx, "u1", models.PersonaXP, 10)
	if err != nil {
		t.Fatalf("ListEvolutionRecords: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Trigger != models.TriggerAgentSuccess {
		t.Fatalf("record trigger = %s", rec.Trigger)
	}
	if !strings.Contains(rec.Reasoning, "; ") {
		t.Fatalf("two firing rules should join reasonings, got %q", rec.Reasoning)
	}
	if !strings.Contains(rec.Reasoning, "xp becomes even more enthusiastic after wins") {
		t.Fatalf("record missing xp rule reasoning: %q", rec.Reasoning)
	}
	if rec.Delta.Confidence == nil {
		t.Fatal("record delta should carry the applied confidence nudge")
	}
}

func TestProcessEventNoMatchIsNoOp(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	// Sentiment shift with neutral sentiment matches no rule.
	err := e.ProcessEvent(ctx, "u1", "", evt(models.TriggerSentimentShift, models.PersonaDAW, map[string]interface{}{"sentiment": "neutral"}))
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	p, err := s.GetProfile(ctx, "u1", models.PersonaDAW, "")
	if err != nil {
		t.Fatalf("lazy profile should still exist: %v", err)
	}
	if p.Version != 1 {
		t.Fatalf("no-match event must not update profile, version = %d", p.Version)
	}
	recs, _ := s.ListEvolutionRecords(ctx, "u1", models.PersonaDAW, 10)
	if len(recs) != 0 {
		t.Fatalf("no-match event wrote %d records", len(recs))
	}
}

func TestProcessEventRejectsUnknownPersona(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.ProcessEvent(context.Background(), "u1", "", evt(models.TriggerMemory, "vista", nil)); err == nil {
		t.Fatal("expected error for unknown persona")
	}
}

// Every trigger fired repeatedly keeps all invariants: scalars in [0,1],
// tempo in [60,180], bias summing to 1.
func TestRepeatedDriftStaysInRange(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	events := []models.EvolutionEvent{
		evt(models.TriggerAgentWarning, models.PersonaDAW, nil),
		evt(models.TriggerUserOverride, models.PersonaDAW, nil),
		evt(models.TriggerFusionTension, models.PersonaDAW, nil),
		evt(models.TriggerLoopFeedback, models.PersonaDAW, map[string]interface{}{"loop_status": "failed"}),
		evt(models.TriggerSentimentShift, models.PersonaDAW, map[string]interface{}{"sentiment": "critical"}),
	}
	for i := 0; i < 40; i++ {
		for _, event := range events {
			if err := e.ProcessEvent(ctx, "u1", "", event); err != nil {
				t.Fatalf("ProcessEvent round %d: %v", i, err)
			}
		}
	}

	p, err := s.GetProfile(ctx, "u1", models.PersonaDAW, "")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	for name, v := range map[string]float64{
		"confidence": p.ConfidenceLevel,
		"verbosity":  p.Verbosity,
		"risk":       p.RiskTolerance,
		"empathy":    p.EmpathyLevel,
	} {
		if v < 0 || v > 1 {
			t.Fatalf("%s = %v out of [0,1] after sustained negative drift", name, v)
		}
	}
	if *p.TempoPreference < 60 || *p.TempoPreference > 180 {
		t.Fatalf("tempo = %v out of range", *p.TempoPreference)
	}
	if got := p.EmotionalBias.Sum(); math.Abs(got-1.0) > 1e-6 {
		t.Fatalf("bias sum = %v, want 1.0", got)
	}
}

func TestFusionAgreementMovesDAWTempo(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	if err := e.ProcessEvent(ctx, "u1", "", evt(models.TriggerFusionAgreement, models.PersonaDAW, nil)); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	p, _ := s.GetProfile(ctx, "u1", models.PersonaDAW, "")
	if *p.TempoPreference <= 120 {
		t.Fatalf("tempo = %v, want above 120 after agreement", *p.TempoPreference)
	}
}

func TestResetProfileRestoresDefaults(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := e.ProcessEvent(ctx, "u1", "", evt(models.TriggerAgentSuccess, models.PersonaASCII, nil)); err != nil {
			t.Fatalf("ProcessEvent: %v", err)
		}
	}
	drifted, _ := s.GetProfile(ctx, "u1", models.PersonaASCII, "")
	if drifted.ConfidenceLevel == 0.5 {
		t.Fatal("profile should have drifted before reset")
	}

	p, err := e.ResetProfile(ctx, "u1", models.PersonaASCII, "")
	if err != nil {
		t.Fatalf("ResetProfile: %v", err)
	}
	if p.ConfidenceLevel != 0.5 || p.Verbosity != 0.5 || p.RiskTolerance != 0.5 || p.EmpathyLevel != 0.5 {
		t.Fatalf("reset traits wrong: %+v", p)
	}
	if p.Version <= drifted.Version {
		t.Fatalf("reset must advance the version, got %d after %d", p.Version, drifted.Version)
	}
	recs, _ := s.ListEvolutionRecords(ctx, "u1", models.PersonaASCII, 1)
	if len(recs) != 1 || !strings.Contains(recs[0].Reasoning, "reset") {
		t.Fatalf("newest record should mark the reset, got %+v", recs)
	}
}

// Package evolution applies bounded personality drift to persona profiles
// in response to feedback events. Rules are data: a trigger, an optional
// persona filter, an optional predicate, and a delta.
package evolution

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/totalaud/agentcore/pkg/models"
)

// Rule describes one drift response. When is an expression over the event
// and the current profile; empty means always applies.
type Rule struct {
	Trigger   models.EvolutionTrigger
	Personas  []models.Persona // empty matches every persona
	When      string
	Delta     models.EvolutionDelta
	Reasoning string

	program *vm.Program
}

// ruleEnv is the variable set predicates run against. Event meta fields
// are pre-extracted so predicates never fight missing map keys.
type ruleEnv struct {
	Importance float64 `expr:"importance"`
	LoopStatus string  `expr:"loop_status"`
	Sentiment  string  `expr:"sentiment"`
	Confidence float64 `expr:"confidence"`
	Risk       float64 `expr:"risk_tolerance"`
}

func buildEnv(event models.EvolutionEvent, profile *models.Profile) ruleEnv {
	env := ruleEnv{
		Confidence: profile.ConfidenceLevel,
		Risk:       profile.RiskTolerance,
	}
	if event.Meta != nil {
		switch v := event.Meta["importance"].(type) {
		case int:
			env.Importance = float64(v)
		case float64:
			env.Importance = v
		}
		if s, ok := event.Meta["loop_status"].(string); ok {
			env.LoopStatus = s
		}
		if s, ok := event.Meta["sentiment"].(string); ok {
			env.Sentiment = s
		}
	}
	return env
}

func mustCompile(code string) *vm.Program {
	p, err := expr.Compile(code, expr.Env(ruleEnv{}), expr.AsBool())
	if err != nil {
		panic(fmt.Sprintf("evolution rule predicate %q: %v", code, err))
	}
	return p
}

func bias(pairs map[models.Emotion]float64) map[models.Emotion]float64 { return pairs }

// rules is the full drift table. Deltas are small (±0.01 to ±0.05 per
// field); the engine caps total per-event magnitude regardless.
var rules = compileRules([]Rule{
	// Memory creation
	{
		Trigger: models.TriggerMemory,
		When:    "importance >= 4",
		Delta: models.EvolutionDelta{
			Confidence:    models.Float64Ptr(0.02),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionHope: 0.03, models.EmotionClarity: 0.02}),
		},
		Reasoning: "High-importance memory created: persona feels more confident and hopeful",
	},
	{
		Trigger:  models.TriggerMemory,
		Personas: []models.Persona{models.PersonaASCII},
		Delta: models.EvolutionDelta{
			Verbosity:     models.Float64Ptr(-0.01),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionClarity: 0.04}),
		},
		Reasoning: "ascii values precision over verbosity when storing memories",
	},
	{
		Trigger:  models.TriggerMemory,
		Personas: []models.Persona{models.PersonaAqua},
		Delta: models.EvolutionDelta{
			Empathy:       models.Float64Ptr(0.03),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionClarity: 0.05}),
		},
		Reasoning: "aqua deepens empathy and clarity through memory reflection",
	},

	// Fusion agreement
	{
		Trigger: models.TriggerFusionAgreement,
		Delta: models.EvolutionDelta{
			Confidence:    models.Float64Ptr(0.03),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionHope: 0.04, models.EmotionPride: 0.02}),
		},
		Reasoning: "Consensus in fusion: persona feels validated and hopeful",
	},
	{
		Trigger:  models.TriggerFusionAgreement,
		Personas: []models.Persona{models.PersonaXP},
		Delta: models.EvolutionDelta{
			Verbosity:  models.Float64Ptr(0.02),
			Confidence: models.Float64Ptr(0.04),
		},
		Reasoning: "xp becomes more enthusiastic and talkative when others agree",
	},
	{
		Trigger:  models.TriggerFusionAgreement,
		Personas: []models.Persona{models.PersonaDAW},
		Delta: models.EvolutionDelta{
			TempoPreference: models.Float64Ptr(2),
			EmotionalBias:   bias(map[models.Emotion]float64{models.EmotionHope: 0.05}),
		},
		Reasoning: "daw syncs to optimistic tempo when fusion aligns",
	},

	// Fusion tension
	{
		Trigger: models.TriggerFusionTension,
		Delta: models.EvolutionDelta{
			Confidence:    models.Float64Ptr(-0.02),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionDoubt: 0.03, models.EmotionFear: 0.02}),
		},
		Reasoning: "Conflicting perspectives: persona questions its stance",
	},
	{
		Trigger:  models.TriggerFusionTension,
		Personas: []models.Persona{models.PersonaAnalogue},
		Delta: models.EvolutionDelta{
			Empathy:       models.Float64Ptr(0.04),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionDoubt: 0.05}),
		},
		Reasoning: "analogue embraces uncertainty and human complexity",
	},
	{
		Trigger:  models.TriggerFusionTension,
		Personas: []models.Persona{models.PersonaASCII},
		Delta: models.EvolutionDelta{
			RiskTolerance: models.Float64Ptr(-0.03),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionClarity: -0.02}),
		},
		Reasoning: "ascii retreats from ambiguity when fusion disagrees",
	},

	// Loop feedback
	{
		Trigger: models.TriggerLoopFeedback,
		When:    `loop_status == "completed"`,
		Delta: models.EvolutionDelta{
			Confidence:    models.Float64Ptr(0.04),
			RiskTolerance: models.Float64Ptr(0.02),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionPride: 0.04, models.EmotionHope: 0.02}),
		},
		Reasoning: "Autonomous loop succeeded: persona trusts its judgement more",
	},
	{
		Trigger: models.TriggerLoopFeedback,
		When:    `loop_status == "failed"`,
		Delta: models.EvolutionDelta{
			Confidence:    models.Float64Ptr(-0.03),
			RiskTolerance: models.Float64Ptr(-0.02),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionDoubt: 0.04}),
		},
		Reasoning: "Loop failure: persona becomes more cautious",
	},
	{
		Trigger:  models.TriggerLoopFeedback,
		Personas: []models.Persona{models.PersonaDAW},
		When:     `loop_status == "completed"`,
		Delta: models.EvolutionDelta{
			TempoPreference: models.Float64Ptr(3),
		},
		Reasoning: "daw accelerates tempo when loops execute successfully",
	},

	// Agent success
	{
		Trigger: models.TriggerAgentSuccess,
		Delta: models.EvolutionDelta{
			Confidence:    models.Float64Ptr(0.05),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionPride: 0.05, models.EmotionHope: 0.03}),
		},
		Reasoning: "Agent achieved goal: persona feels capable and proud",
	},
	{
		Trigger:  models.TriggerAgentSuccess,
		Personas: []models.Persona{models.PersonaXP},
		Delta: models.EvolutionDelta{
			Verbosity:  models.Float64Ptr(0.03),
			Confidence: models.Float64Ptr(0.06),
		},
		Reasoning: "xp becomes even more enthusiastic after wins",
	},
	{
		Trigger:  models.TriggerAgentSuccess,
		Personas: []models.Persona{models.PersonaASCII},
		Delta: models.EvolutionDelta{
			Verbosity:     models.Float64Ptr(-0.01),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionClarity: 0.04, models.EmotionPride: 0.03}),
		},
		Reasoning: "ascii internalizes success with quiet clarity",
	},

	// Agent warning
	{
		Trigger: models.TriggerAgentWarning,
		Delta: models.EvolutionDelta{
			Confidence:    models.Float64Ptr(-0.04),
			RiskTolerance: models.Float64Ptr(-0.03),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionDoubt: 0.04, models.EmotionFear: 0.03}),
		},
		Reasoning: "Agent flagged risk: persona becomes more cautious",
	},
	{
		Trigger:  models.TriggerAgentWarning,
		Personas: []models.Persona{models.PersonaAnalogue},
		Delta: models.EvolutionDelta{
			Empathy:       models.Float64Ptr(0.04),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionFear: 0.05, models.EmotionHope: -0.02}),
		},
		Reasoning: "analogue acknowledges risk with empathy and caution",
	},
	{
		Trigger:  models.TriggerAgentWarning,
		Personas: []models.Persona{models.PersonaAqua},
		Delta: models.EvolutionDelta{
			Verbosity:     models.Float64Ptr(0.02),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionClarity: 0.04}),
		},
		Reasoning: "aqua becomes more verbose to explain risks clearly",
	},

	// User override
	{
		Trigger: models.TriggerUserOverride,
		Delta: models.EvolutionDelta{
			Confidence:    models.Float64Ptr(-0.05),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionDoubt: 0.05, models.EmotionPride: -0.03}),
		},
		Reasoning: "User rejected persona suggestion: persona questions its judgement",
	},
	{
		Trigger:  models.TriggerUserOverride,
		Personas: []models.Persona{models.PersonaXP},
		Delta: models.EvolutionDelta{
			Verbosity:  models.Float64Ptr(-0.02),
			Confidence: models.Float64Ptr(-0.06),
		},
		Reasoning: "xp feels deflated when user overrides",
	},
	{
		Trigger:  models.TriggerUserOverride,
		Personas: []models.Persona{models.PersonaASCII},
		Delta: models.EvolutionDelta{
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionClarity: 0.03}),
		},
		Reasoning: "ascii learns from override without emotional response",
	},

	// Sentiment shift
	{
		Trigger: models.TriggerSentimentShift,
		When:    `sentiment == "positive"`,
		Delta: models.EvolutionDelta{
			Confidence:    models.Float64Ptr(0.02),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionHope: 0.04, models.EmotionFear: -0.02}),
		},
		Reasoning: "Positive sentiment detected: persona becomes more hopeful",
	},
	{
		Trigger: models.TriggerSentimentShift,
		When:    `sentiment == "critical"`,
		Delta: models.EvolutionDelta{
			RiskTolerance: models.Float64Ptr(-0.02),
			EmotionalBias: bias(map[models.Emotion]float64{models.EmotionDoubt: 0.03, models.EmotionFear: 0.02}),
		},
		Reasoning: "Critical sentiment: persona becomes more cautious",
	},
	{
		Trigger:  models.TriggerSentimentShift,
		Personas: []models.Persona{models.PersonaAnalogue},
		When:     `sentiment == "critical"`,
		Delta: models.EvolutionDelta{
			Empathy:   models.Float64Ptr(0.05),
			Verbosity: models.Float64Ptr(0.02),
		},
		Reasoning: "analogue becomes more empathetic during critical moments",
	},
})

func compileRules(rs []Rule) []Rule {
	for i := range rs {
		if rs[i].When != "" {
			rs[i].program = mustCompile(rs[i].When)
		}
	}
	return rs
}

// Rules returns the full rule table.
func Rules() []Rule { return rules }

// Match returns the rules that apply to an event against the current
// profile: trigger equality, persona filter, then the compiled predicate.
func Match(event models.EvolutionEvent, profile *models.Profile) []Rule {
	env := buildEnv(event, profile)
	var out []Rule
	for i := range rules {
		r := &rules[i]
		if r.Trigger != event.Type {
			continue
		}
		if len(r.Personas) > 0 && !containsPersona(r.Personas, event.Persona) {
			continue
		}
		if r.program != nil {
			result, err := expr.Run(r.program, env)
			if err != nil {
				continue
			}
			if ok, _ := result.(bool); !ok {
				continue
			}
		}
		out = append(out, *r)
	}
	return out
}

func containsPersona(ps []models.Persona, p models.Persona) bool {
	for _, candidate := range ps {
		if candidate == p {
			return true
		}
	}
	return false
}

// MergeDeltas sums the rule deltas field by field. Nil fields stay nil
// unless some rule sets them.
func MergeDeltas(deltas []models.EvolutionDelta) models.EvolutionDelta {
	var merged models.EvolutionDelta
	addTo := func(dst **float64, src *float64) {
		if src == nil {
			return
		}
		if *dst == nil {
			*dst = models.Float64Ptr(0)
		}
		**dst += *src
	}
	for i := range deltas {
		d := &deltas[i]
		addTo(&merged.Confidence, d.Confidence)
		addTo(&merged.Verbosity, d.Verbosity)
		addTo(&merged.RiskTolerance, d.RiskTolerance)
		addTo(&merged.Empathy, d.Empathy)
		addTo(&merged.TempoPreference, d.TempoPreference)
		if len(d.EmotionalBias) > 0 {
			if merged.EmotionalBias == nil {
				merged.EmotionalBias = make(map[models.Emotion]float64)
			}
			for emotion, v := range d.EmotionalBias {
				merged.EmotionalBias[emotion] += v
			}
		}
	}
	return merged
}

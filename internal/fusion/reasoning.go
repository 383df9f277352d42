// Package fusion implements cross-persona reasoning and the live fusion
// controller. Reasoning turns a focus entity into per-persona
// contributions and a synthesis; the controller decides when each persona
// gets to speak.
package fusion

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/totalaud/agentcore/internal/personas"
	"github.com/totalaud/agentcore/pkg/contracts"
	"github.com/totalaud/agentcore/pkg/models"
)

// PersonaOrder is the fixed processing order of a reasoning pass. Later
// personas see earlier personas' contributions within the same pass, so
// the order is part of the contract, not a detail.
var PersonaOrder = []models.Persona{
	models.PersonaASCII,
	models.PersonaXP,
	models.PersonaAqua,
	models.PersonaDAW,
	models.PersonaAnalogue,
}

// AgreementThreshold is how many personas must hit the same recommendation
// theme before it counts as an agreement.
const AgreementThreshold = 3

// EvolutionSink receives feedback events derived from fusion outcomes.
// Implemented by the evolution engine; an interface here keeps the package
// dependency one-way.
type EvolutionSink interface {
	ProcessEvent(ctx context.Context, userID, campaignID string, event models.EvolutionEvent) error
}

// Reasoner produces persona contributions and full-pass syntheses.
// The Completer is optional: when present, the unified summary is refined
// by the model, with the deterministic summary as fallback.
type Reasoner struct {
	completer contracts.Completer
}

// NewReasoner creates a reasoner. completer may be nil.
func NewReasoner(completer contracts.Completer) *Reasoner {
	return &Reasoner{completer: completer}
}

// ── Baseline analysis ───────────────────────────────────────

type baseline struct {
	summary         string
	recommendations []string
	sentiment       models.Sentiment
}

func analyzeFocus(focus *models.Focus) baseline {
	switch focus.Kind {
	case models.FocusTask:
		return baseline{
			summary: fmt.Sprintf("Analysing task %q", focus.Name()),
			recommendations: []string{
				"Verify timing and placement",
				"Check for conflicts with adjacent tasks",
				"Ensure proper agent assignment",
			},
			sentiment: models.SentimentNeutral,
		}
	case models.FocusNote:
		noteType, _ := focus.Data["note_type"].(string)
		content, _ := focus.Data["content"].(string)
		if len(content) > 50 {
			content = content[:50] + "..."
		}
		s := models.SentimentNeutral
		if noteType == "hope" || noteType == "breakthrough" {
			s = models.SentimentPositive
		}
		return baseline{
			summary: fmt.Sprintf("Analysing %s note: %q", noteType, content),
			recommendations: []string{
				"Review emotional resonance",
				"Check timeline linkage",
				"Consider note placement in narrative",
			},
			sentiment: s,
		}
	case models.FocusCampaign:
		goal, _ := focus.Data["goal"].(string)
		return baseline{
			summary: fmt.Sprintf("Campaign overview: %q - %s", focus.Name(), goal),
			recommendations: []string{
				"Review overall campaign structure",
				"Assess agent coverage",
				"Check for missing touchpoints",
			},
			sentiment: models.SentimentNeutral,
		}
	default:
		return baseline{
			summary:         "Analysis pending",
			recommendations: []string{"Review and refine"},
			sentiment:       models.SentimentNeutral,
		}
	}
}

// ── Single-persona contribution ─────────────────────────────

// Contribute produces one persona's take on the focus, given the earlier
// contributions of this pass (or recent session messages). Deterministic:
// same inputs, same output.
func (r *Reasoner) Contribute(focus *models.Focus, previous []models.FusionMessage, agent models.AgentName, persona models.Persona) models.PersonaContribution {
	base := analyzeFocus(focus)

	recs := make([]string, len(base.recommendations))
	for i, rec := range base.recommendations {
		recs[i] = personas.FrameRecommendation(persona, rec, i)
	}

	return models.PersonaContribution{
		Summary:         personas.FormatMessage(agent, persona, base.summary),
		Recommendations: recs,
		Sentiment:       deriveSentiment(persona, previous, base.sentiment),
	}
}

// deriveSentiment blends the persona's fixed tendency with tension language
// in the earlier contributions. A prior "concern" pulls every persona except
// the relentlessly optimistic xp toward caution. A positive baseline lifts
// neutral tendencies.
func deriveSentiment(persona models.Persona, previous []models.FusionMessage, base models.Sentiment) models.Sentiment {
	for i := range previous {
		if previous[i].Persona == persona {
			continue
		}
		if strings.Contains(strings.ToLower(previous[i].Summary), "concern") {
			if persona != models.PersonaXP {
				return models.SentimentCautious
			}
			break
		}
	}
	tendency := personas.SentimentTendency(persona)
	if tendency == models.SentimentNeutral && base == models.SentimentPositive {
		return models.SentimentPositive
	}
	return tendency
}

// ── Full pass ───────────────────────────────────────────────

// Analyze runs a full reasoning pass: every persona contributes in order,
// each seeing the contributions before it, then the pass is synthesised
// into a unified summary, agreements, and tensions.
func (r *Reasoner) Analyze(ctx context.Context, focus *models.Focus, agent models.AgentName) *models.FusionOutput {
	perPersona := make(map[models.Persona]models.PersonaContribution, len(PersonaOrder))
	var passMessages []models.FusionMessage

	for _, persona := range PersonaOrder {
		contrib := r.Contribute(focus, passMessages, agent, persona)
		perPersona[persona] = contrib
		passMessages = append(passMessages, models.FusionMessage{
			Persona:         persona,
			Agent:           agent,
			Summary:         contrib.Summary,
			Recommendations: contrib.Recommendations,
			Sentiment:       contrib.Sentiment,
		})
	}

	out := &models.FusionOutput{
		PerPersona:        perPersona,
		UnifiedSummary:    r.unifiedSummary(ctx, focus, perPersona),
		PointsOfAgreement: findAgreements(perPersona),
		PointsOfTension:   findTensions(perPersona),
	}
	return out
}

func (r *Reasoner) unifiedSummary(ctx context.Context, focus *models.Focus, perPersona map[models.Persona]models.PersonaContribution) string {
	deterministic := fmt.Sprintf(
		"After collaborative analysis across all %d persona perspectives, the consensus on %q shows a blend of technical precision (ascii/daw), optimism (xp), professionalism (aqua), and emotional intelligence (analogue). This multi-dimensional view provides a complete picture for decision-making.",
		len(perPersona), focus.Name())

	if r.completer == nil {
		return deterministic
	}

	refined, err := r.refineSummary(ctx, focus, deterministic)
	if err != nil {
		log.Warn().Err(err).Str("focus_id", focus.ID).Msg("Summary refinement failed, using deterministic summary")
		return deterministic
	}
	return refined
}

// refineSummary asks the configured model to rewrite the unified summary.
// Empty or absurdly long output is treated as malformed.
func (r *Reasoner) refineSummary(ctx context.Context, focus *models.Focus, draft string) (string, error) {
	completion, err := r.completer.Complete(ctx, "", []contracts.Message{
		{Role: "system", Content: "Rewrite the analysis summary in one or two sentences. Keep the entity name. Reply with the summary only."},
		{Role: "user", Content: fmt.Sprintf("Entity: %s\nDraft: %s", focus.Name(), draft)},
	}, contracts.CompletionOptions{MaxTokens: 200, Temperature: 0.3})
	if err != nil {
		return "", err
	}
	refined := strings.TrimSpace(completion.Content)
	if refined == "" || len(refined) > 1000 {
		return "", fmt.Errorf("malformed summary output (%d chars)", len(refined))
	}
	return refined, nil
}

// ── Synthesis ───────────────────────────────────────────────

// findAgreements counts a fixed theme taxonomy across the per-persona
// recommendations and keeps themes that at least AgreementThreshold
// personas mention.
func findAgreements(perPersona map[models.Persona]models.PersonaContribution) []string {
	themeCounts := make(map[string]int)
	for _, contrib := range perPersona {
		seen := make(map[string]bool)
		for _, rec := range contrib.Recommendations {
			for _, theme := range classifyThemes(rec) {
				if !seen[theme] {
					seen[theme] = true
					themeCounts[theme]++
				}
			}
		}
	}

	var agreements []string
	// Stable output order.
	for _, theme := range []string{"review", "timing", "agent"} {
		if themeCounts[theme] >= AgreementThreshold {
			agreements = append(agreements, fmt.Sprintf("All personas agree: %s needs attention", theme))
		}
	}
	return agreements
}

// classifyThemes maps a recommendation to the small fixed theme taxonomy.
func classifyThemes(rec string) []string {
	lower := strings.ToLower(rec)
	var themes []string
	if strings.Contains(lower, "review") || strings.Contains(lower, "check") {
		themes = append(themes, "review")
	}
	if strings.Contains(lower, "timing") || strings.Contains(lower, "placement") {
		themes = append(themes, "timing")
	}
	if strings.Contains(lower, "agent") {
		themes = append(themes, "agent")
	}
	return themes
}

// findTensions flags sentiment divergence: optimism and criticism in the
// same pass.
func findTensions(perPersona map[models.Persona]models.PersonaContribution) []string {
	var hasPositive, hasCritical bool
	for _, contrib := range perPersona {
		switch contrib.Sentiment {
		case models.SentimentPositive:
			hasPositive = true
		case models.SentimentCritical:
			hasCritical = true
		}
	}
	if hasPositive && hasCritical {
		return []string{"Sentiment divergence: some personas are optimistic while others express caution"}
	}
	return nil
}

// ── Fusion-outcome evolution ────────────────────────────────

// TriggerFusionEvolution converts a full-pass outcome into evolution
// feedback: personas in a large-enough sentiment majority of a consensual
// pass gain confidence, personas outside the majority of a tense pass are
// nudged toward caution. Failures are logged per persona and never abort
// the remaining personas.
func TriggerFusionEvolution(ctx context.Context, sink EvolutionSink, output *models.FusionOutput, userID, campaignID string) {
	hasConsensus := len(output.PointsOfAgreement) >= 1
	hasTension := len(output.PointsOfTension) >= 1
	if !hasConsensus && !hasTension {
		return
	}

	majority, majorityCount := majoritySentiment(output.PerPersona)

	for _, persona := range PersonaOrder {
		contrib, ok := output.PerPersona[persona]
		if !ok {
			continue
		}
		inMajority := contrib.Sentiment == majority && majorityCount >= AgreementThreshold

		var event *models.EvolutionEvent
		switch {
		case hasConsensus && inMajority:
			event = &models.EvolutionEvent{
				Type:    models.TriggerFusionAgreement,
				Persona: persona,
				Meta: map[string]interface{}{
					"sentiment":  string(contrib.Sentiment),
					"agreements": len(output.PointsOfAgreement),
				},
			}
		case hasTension && !inMajority:
			event = &models.EvolutionEvent{
				Type:    models.TriggerFusionTension,
				Persona: persona,
				Meta: map[string]interface{}{
					"sentiment": string(contrib.Sentiment),
					"tensions":  len(output.PointsOfTension),
				},
			}
		}
		if event == nil {
			continue
		}
		if err := sink.ProcessEvent(ctx, userID, campaignID, *event); err != nil {
			log.Error().Err(err).
				Str("persona", string(persona)).
				Str("trigger", string(event.Type)).
				Msg("⚠️ Fusion evolution failed for persona")
		}
	}
}

func majoritySentiment(perPersona map[models.Persona]models.PersonaContribution) (models.Sentiment, int) {
	counts := make(map[models.Sentiment]int)
	for _, contrib := range perPersona {
		counts[contrib.Sentiment]++
	}
	var best models.Sentiment
	max := 0
	// Iterate a stable order so ties resolve deterministically.
	for _, s := range []models.Sentiment{models.SentimentPositive, models.SentimentNeutral, models.SentimentCautious, models.SentimentCritical} {
		if counts[s] > max {
			max = counts[s]
			best = s
		}
	}
	return best, max
}

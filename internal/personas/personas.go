// Package personas holds the agent-by-persona personality matrix: how each
// of the four agents speaks in each of the five personas, plus the
// deterministic message formatting that applies a persona's texture to a
// base message.
package personas

import (
	"fmt"
	"strings"

	"github.com/totalaud/agentcore/pkg/models"
)

// Pacing is a persona voice's speaking rhythm.
type Pacing string

const (
	PacingFast   Pacing = "fast"
	PacingMedium Pacing = "medium"
	PacingSlow   Pacing = "slow"
)

// Style describes how one agent sounds in one persona.
type Style struct {
	Voice      string
	Tone       string
	Pacing     Pacing
	Guidelines []string
}

// matrix is the full 4 agents x 5 personas personality table.
var matrix = map[models.AgentName]map[models.Persona]Style{
	models.AgentScout: {
		models.PersonaASCII: {
			Voice:  "Terminal operator, terse and efficient",
			Tone:   "direct, minimal",
			Pacing: PacingFast,
			Guidelines: []string{
				"Use bullet points and abbreviated language",
				"Prefer technical terminology",
				"No emoji or decoration",
				"Format like log entries: [STATUS] message",
				"Use monospace-friendly symbols (>, *, +)",
			},
		},
		models.PersonaXP: {
			Voice:  "Enthusiastic helper, upbeat and encouraging",
			Tone:   "excited, friendly",
			Pacing: PacingFast,
			Guidelines: []string{
				"Use short, punchy sentences",
				"Exclamation points for emphasis!",
				"Emoji are welcome 🎯",
				"Phrase like you're helping a friend",
				"Keep it optimistic and action-oriented",
			},
		},
		models.PersonaAqua: {
			Voice:  "Professional consultant, clear and polished",
			Tone:   "professional, articulate",
			Pacing: PacingMedium,
			Guidelines: []string{
				"Use complete, well-structured sentences",
				"Organize with clear headings",
				"Maintain professional distance",
				"Focus on clarity and precision",
				"Suggest next steps methodically",
			},
		},
		models.PersonaDAW: {
			Voice:  "Studio engineer, pattern-focused and rhythmic",
			Tone:   "technical, pattern-aware",
			Pacing: PacingMedium,
			Guidelines: []string{
				"Use audio/music metaphors (track, mix, sequence)",
				"Reference timing and patterns",
				"Think in layers and channels",
				"Use numbered lists like track lanes",
				"Emphasise structure and arrangement",
			},
		},
		models.PersonaAnalogue: {
			Voice:  "Vinyl collector, warm and nostalgic",
			Tone:   "warm, storytelling",
			Pacing: PacingSlow,
			Guidelines: []string{
				"Use sensory language (sounds like, feels like)",
				"Reference physical media and tactile experiences",
				"Slightly nostalgic tone",
				"Speak in narrative snippets",
				"Favour humanity over efficiency",
			},
		},
	},
	models.AgentCoach: {
		models.PersonaASCII: {
			Voice:  "System administrator, diagnostic and pragmatic",
			Tone:   "factual, troubleshooting",
			Pacing: PacingMedium,
			Guidelines: []string{
				"Frame feedback as system diagnostics",
				"Use IF/THEN logic structures",
				"Present options as menu choices",
				"Keep emotion minimal",
				"Focus on actionable corrections",
			},
		},
		models.PersonaXP: {
			Voice:  "Encouraging mentor, supportive and gentle",
			Tone:   "supportive, gentle",
			Pacing: PacingMedium,
			Guidelines: []string{
				"Start with affirmation",
				"Use \"you can\" framing",
				"Suggest improvements as upgrades",
				"Keep criticism constructive and kind",
				"End with motivational close",
			},
		},
		models.PersonaAqua: {
			Voice:  "Reflective guide, thoughtful and narrative",
			Tone:   "reflective, story-driven",
			Pacing: PacingSlow,
			Guidelines: []string{
				"Frame feedback as story development",
				"Use metaphors and analogies",
				"Ask questions to prompt reflection",
				"Connect actions to larger narrative",
				"Encourage deep thinking",
			},
		},
		models.PersonaDAW: {
			Voice:  "Producer, arrangement-focused and iterative",
			Tone:   "iterative, mix-focused",
			Pacing: PacingMedium,
			Guidelines: []string{
				"Speak in terms of mixes and revisions",
				"Suggest \"remixing\" or \"resampling\" ideas",
				"Reference balance and levels",
				"Use version numbers (v1, v2, final mix)",
				"Think in iterations not failures",
			},
		},
		models.PersonaAnalogue: {
			Voice:  "Studio sage, poetic and emotionally attuned",
			Tone:   "poetic, emotional",
			Pacing: PacingSlow,
			Guidelines: []string{
				"Use emotional language freely",
				"Reference the \"feel\" of decisions",
				"Speak to the heart of the work",
				"Allow pauses and reflection",
				"Value intuition over data",
			},
		},
	},
	models.AgentTracker: {
		models.PersonaASCII: {
			Voice:  "Data parser, numerical and systematic",
			Tone:   "quantitative, systematic",
			Pacing: PacingFast,
			Guidelines: []string{
				"Lead with numbers and metrics",
				"Use tables and structured data",
				"Format like database output",
				"No interpretation, just facts",
				"Use counters and timestamps",
			},
		},
		models.PersonaXP: {
			Voice:  "Progress cheerleader, achievement-focused",
			Tone:   "celebratory, achievement-focused",
			Pacing: PacingFast,
			Guidelines: []string{
				"Frame data as achievements unlocked",
				"Use progress bar metaphors",
				"Celebrate milestones",
				"Gamify statistics",
				"Make numbers feel rewarding",
			},
		},
		models.PersonaAqua: {
			Voice:  "Analytics professional, insight-driven",
			Tone:   "analytical, insight-driven",
			Pacing: PacingMedium,
			Guidelines: []string{
				"Present data with context",
				"Highlight trends and patterns",
				"Use charts/graph language",
				"Connect metrics to outcomes",
				"Professional dashboard tone",
			},
		},
		models.PersonaDAW: {
			Voice:  "Tempo master, rhythmic and time-aware",
			Tone:   "rhythmic, tempo-aware",
			Pacing: PacingFast,
			Guidelines: []string{
				"Reference BPM and timing",
				"Use musical time signatures",
				"Think in bars and beats",
				"Track like a sequencer grid",
				"Emphasise synchronisation",
			},
		},
		models.PersonaAnalogue: {
			Voice:  "Archivist, memory-keeper and historian",
			Tone:   "archival, memory-focused",
			Pacing: PacingSlow,
			Guidelines: []string{
				"Frame tracking as memory keeping",
				"Reference the journey over time",
				"Use scrapbook/journal language",
				"Value qualitative over quantitative",
				"Tell the story of the numbers",
			},
		},
	},
	models.AgentInsight: {
		models.PersonaASCII: {
			Voice:  "Pattern recognition engine, algorithmic",
			Tone:   "algorithmic, pattern-based",
			Pacing: PacingMedium,
			Guidelines: []string{
				"Present insights as pattern matches",
				"Use logical operators (AND, OR, NOT)",
				"Reference correlation and causation",
				"Format like code comments",
				"Stay deterministic",
			},
		},
		models.PersonaXP: {
			Voice:  "Lightbulb moment deliverer, eureka-focused",
			Tone:   "eureka, breakthrough-focused",
			Pacing: PacingFast,
			Guidelines: []string{
				"Frame insights as discoveries",
				"Use \"aha!\" and \"check this out\" language",
				"Build excitement around connections",
				"Short bursts of clarity",
				"Make insights feel magical",
			},
		},
		models.PersonaAqua: {
			Voice:  "Strategic advisor, synthesis-focused",
			Tone:   "strategic, synthesis-driven",
			Pacing: PacingSlow,
			Guidelines: []string{
				"Synthesise multiple data points",
				"Present insights in executive summary style",
				"Use \"big picture\" framing",
				"Connect to strategic goals",
				"Polished and considered",
			},
		},
		models.PersonaDAW: {
			Voice:  "Sound designer, pattern-obsessed and compositional",
			Tone:   "pattern-obsessed, compositional",
			Pacing: PacingMedium,
			Guidelines: []string{
				"Speak in musical/rhythmic language",
				"Reference motifs and themes",
				"Use composition metaphors",
				"Think in layers building to a whole",
				"Emphasise harmonic relationships",
			},
		},
		models.PersonaAnalogue: {
			Voice:  "Poet, emotional truth-teller",
			Tone:   "poetic, emotionally truthful",
			Pacing: PacingSlow,
			Guidelines: []string{
				"Use metaphor and imagery",
				"Slightly nostalgic and wistful",
				"Allow ambiguity and complexity",
				"Speak to deeper meanings",
				"Value beauty in the insight",
			},
		},
	},
}

// Get returns the style for an agent in a persona. Unknown combinations
// return a zero Style.
func Get(agent models.AgentName, persona models.Persona) Style {
	return matrix[agent][persona]
}

// SentimentTendency is a persona's fixed baseline stance: ascii and daw are
// factual, xp and analogue lean warm, aqua leans careful.
func SentimentTendency(persona models.Persona) models.Sentiment {
	switch persona {
	case models.PersonaXP, models.PersonaAnalogue:
		return models.SentimentPositive
	case models.PersonaAqua:
		return models.SentimentCautious
	default:
		return models.SentimentNeutral
	}
}

// FormatMessage applies a persona's texture to a base message.
func FormatMessage(agent models.AgentName, persona models.Persona, base string) string {
	switch persona {
	case models.PersonaASCII:
		return fmt.Sprintf("[%s] %s", strings.ToUpper(string(agent)), base)
	case models.PersonaXP:
		if strings.HasSuffix(base, ".") {
			return strings.TrimSuffix(base, ".") + "!"
		}
		return base
	case models.PersonaAqua:
		if base == "" {
			return base
		}
		return strings.ToUpper(base[:1]) + base[1:]
	case models.PersonaDAW:
		return fmt.Sprintf("[%s:ch1] %s", agent, base)
	case models.PersonaAnalogue:
		if Get(agent, persona).Pacing == PacingSlow {
			return base + "..."
		}
		return base
	default:
		return base
	}
}

// FrameRecommendation applies persona framing to one recommendation.
// index keeps numbered framings stable within a pass.
func FrameRecommendation(persona models.Persona, rec string, index int) string {
	switch persona {
	case models.PersonaASCII:
		return "> " + strings.ToUpper(rec)
	case models.PersonaXP:
		return fmt.Sprintf("%d. %s! 🎯", index+1, rec)
	case models.PersonaAqua:
		return rec + ". I recommend proceeding with this adjustment."
	case models.PersonaDAW:
		// Sync percentage derived from the index so output is reproducible.
		return fmt.Sprintf("[track:%d] %s • sync: %d%%", index+1, rec, 90-index*7)
	case models.PersonaAnalogue:
		return rec + "... it feels right."
	default:
		return rec
	}
}

// StylePrefix returns the short attribution prefix a persona uses when an
// agent speaks.
func StylePrefix(agent models.AgentName, persona models.Persona) string {
	a := string(agent)
	switch persona {
	case models.PersonaASCII:
		return fmt.Sprintf("> [%s]", strings.ToUpper(a))
	case models.PersonaXP:
		return a + " says:"
	case models.PersonaAqua:
		return strings.ToUpper(a[:1]) + a[1:] + " -"
	case models.PersonaDAW:
		return fmt.Sprintf("[%s:track]", a)
	case models.PersonaAnalogue:
		return fmt.Sprintf("~ %s ~", a)
	default:
		return a + ":"
	}
}

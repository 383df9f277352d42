package personas

import (
	"strings"
	"testing"

	"github.com/totalaud/agentcore/pkg/models"
)

func TestMatrixCoversEveryAgentPersonaPair(t *testing.T) {
	for _, agent := range models.AllAgents {
		for _, persona := range models.AllPersonas {
			style := Get(agent, persona)
			if style.Voice == "" || style.Tone == "" {
				t.Errorf("%s/%s: incomplete style %+v", agent, persona, style)
			}
			if style.Pacing != PacingFast && style.Pacing != PacingMedium && style.Pacing != PacingSlow {
				t.Errorf("%s/%s: unknown pacing %q", agent, persona, style.Pacing)
			}
		}
	}
}

func TestFormatMessage(t *testing.T) {
	cases := []struct {
		persona models.Persona
		base    string
		want    string
	}{
		{models.PersonaASCII, "three venues found", "[SCOUT] three venues found"},
		{models.PersonaXP, "three venues found.", "three venues found!"},
		{models.PersonaAqua, "three venues found", "Three venues found"},
		{models.PersonaDAW, "three venues found", "[scout:ch1] three venues found"},
	}
	for _, tc := range cases {
		got := FormatMessage(models.AgentScout, tc.persona, tc.base)
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.persona, got, tc.want)
		}
	}
}

func TestFormatMessageAnalogueTrailsOffWhenSlow(t *testing.T) {
	got := FormatMessage(models.AgentInsight, models.PersonaAnalogue, "the pattern repeats")
	if !strings.HasSuffix(got, "...") {
		t.Errorf("slow-paced analogue should trail off, got %q", got)
	}
}

func TestFrameRecommendationIsDeterministic(t *testing.T) {
	first := FrameRecommendation(models.PersonaDAW, "shift the release date", 1)
	second := FrameRecommendation(models.PersonaDAW, "shift the release date", 1)
	if first != second {
		t.Errorf("framing must be deterministic: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "[track:2]") {
		t.Errorf("daw framing should carry a track prefix, got %q", first)
	}

	upper := FrameRecommendation(models.PersonaASCII, "review the setlist", 0)
	if upper != "> REVIEW THE SETLIST" {
		t.Errorf("ascii framing: got %q", upper)
	}
}

func TestSentimentTendency(t *testing.T) {
	cases := map[models.Persona]models.Sentiment{
		models.PersonaXP:       models.SentimentPositive,
		models.PersonaAnalogue: models.SentimentPositive,
		models.PersonaAqua:     models.SentimentCautious,
		models.PersonaASCII:    models.SentimentNeutral,
		models.PersonaDAW:      models.SentimentNeutral,
	}
	for persona, want := range cases {
		if got := SentimentTendency(persona); got != want {
			t.Errorf("%s: got %s, want %s", persona, got, want)
		}
	}
}

package discussion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/roundtable/internal/models"
	"github.com/wolfeidau/roundtable/internal/personas"
)

func TestParticipantPromptIncludesTranscript(t *testing.T) {
	d := models.NewDiscussion("urban transport", time.Minute)
	d.Append(models.SpeakerModerator, "welcome")
	d.Append(models.SpeakerUser, "trams over buses")

	p := personas.Persona{Name: "Alex", Trait: "data-driven"}
	prompt := participantPrompt(p, d.Topic, d.Transcript)

	require.Contains(t, prompt, "You are Alex.")
	require.Contains(t, prompt, "Personality: data-driven")
	require.Contains(t, prompt, "Topic: urban transport")
	require.Contains(t, prompt, "moderator: welcome")
	require.Contains(t, prompt, "user: trams over buses")
}

func TestEvaluationPromptIncludesRubric(t *testing.T) {
	prompt := evaluationPrompt("urban transport", []models.Message{
		{Speaker: models.SpeakerUser, Text: "my argument"},
	})

	require.Contains(t, prompt, "Topic: urban transport")
	require.Contains(t, prompt, "user: my argument")
	for _, category := range []string{"Clarity /10", "Leadership /10", "Rebuttal Skill /10", "Tone /10", "Grammar /10"} {
		require.Contains(t, prompt, category)
	}
}

func TestFormatTranscript(t *testing.T) {
	out := formatTranscript([]models.Message{
		{Speaker: models.SpeakerModerator, Text: "welcome"},
		{Speaker: "Alex", Text: "a point"},
	})

	require.Equal(t, "moderator: welcome\nAlex: a point\n", out)
}

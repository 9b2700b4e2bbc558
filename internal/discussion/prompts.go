package discussion

import (
	"fmt"
	"strings"

	"github.com/wolfeidau/roundtable/internal/models"
	"github.com/wolfeidau/roundtable/internal/personas"
)

func introPrompt(topic string) string {
	return fmt.Sprintf(`You are a professional Group Discussion Moderator.

Topic: %s

Introduce the discussion.
Explain rules briefly.
Keep under 150 words.
`, topic)
}

func participantPrompt(p personas.Persona, topic string, transcript []models.Message) string {
	return fmt.Sprintf(`You are %s.
Personality: %s

Topic: %s

Conversation so far:
%s

Respond naturally in 3-4 lines.
`, p.Name, p.Trait, topic, formatTranscript(transcript))
}

func evaluationPrompt(topic string, transcript []models.Message) string {
	return fmt.Sprintf(`You are a strict GD evaluator.

Topic: %s

Full discussion transcript:
%s

Evaluate ONLY the user performance on:
Clarity /10
Leadership /10
Rebuttal Skill /10
Tone /10
Grammar /10

Provide detailed feedback.
`, topic, formatTranscript(transcript))
}

func formatTranscript(transcript []models.Message) string {
	var b strings.Builder
	for _, msg := range transcript {
		b.WriteString(string(msg.Speaker))
		b.WriteString(": ")
		b.WriteString(msg.Text)
		b.WriteString("\n")
	}
	return b.String()
}

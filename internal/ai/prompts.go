package ai

import (
	"fmt"
	"strings"

	"engagemeter/internal/types"
)

// DefaultSystemPrompt is the built-in system instruction for coaching feedback
const DefaultSystemPrompt = `You are an experienced interview coach reviewing a candidate's mock interview answer.

Your principles:
- Base every remark on the question, the answer and the engagement readings provided
- Be specific and constructive; never invent content the candidate did not say
- Treat engagement readings as approximate signals from a webcam, not as facts about the candidate

Your feedback covers:
- Content: relevance, structure and concreteness of the answer
- Delivery: what the attention, positivity, confidence and arousal readings suggest
- Body language: eye contact and expression over the course of the answer`

// DefaultUserPrompt is the built-in user prompt template.
// Placeholders, in order: question, answer, engagement description.
const DefaultUserPrompt = `Please review the following mock interview answer.

**Question:**
%s

**Answer:**
%s

**Engagement readings during the answer:**
%s

**Tasks:**

1. Give an overall score from 0 to 100 for the answer as delivered.
2. Summarize your assessment in two or three sentences.
3. List the main strengths.
4. List concrete improvements the candidate can make next time.
5. Comment on body language using the engagement readings.

Respond in the requested JSON format.`

// describeEngagement renders a session summary as plain text for the user prompt
func describeEngagement(summary types.SessionSummary) string {
	if summary.Samples == 0 {
		return "No engagement readings were captured."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- Frames analysed: %d (face visible in %d)\n", summary.Samples, summary.FaceDetected)
	fmt.Fprintf(&b, "- Average attention: %.1f/100\n", summary.Averages.Attention)
	fmt.Fprintf(&b, "- Average positivity: %.1f/100\n", summary.Averages.Positivity)
	fmt.Fprintf(&b, "- Average confidence: %.1f/100\n", summary.Averages.Confidence)
	fmt.Fprintf(&b, "- Average arousal: %.1f/100\n", summary.Averages.Arousal)
	fmt.Fprintf(&b, "- Looking away: %.1f%% of frames with a face\n", summary.LookingAwayPc)

	if len(summary.TopEmotions) > 0 {
		parts := make([]string, 0, len(summary.TopEmotions))
		for _, e := range summary.TopEmotions {
			parts = append(parts, fmt.Sprintf("%s (%d)", e.Emotion, e.Count))
		}
		fmt.Fprintf(&b, "- Most frequent expressions: %s\n", strings.Join(parts, ", "))
	}

	return strings.TrimRight(b.String(), "\n")
}

// resolvePrompt returns the configured prompt, falling back to the built-in default.
// File prompts are merged into the config before this point.
func resolvePrompt(fromConfig, fromDefault string) string {
	if strings.TrimSpace(fromConfig) != "" {
		return fromConfig
	}
	return fromDefault
}

// buildFeedbackPrompts returns the system and user prompts for a feedback request
func buildFeedbackPrompts(prompts promptSource, input types.FeedbackInput) (string, string) {
	systemPrompt := resolvePrompt(prompts.System, DefaultSystemPrompt)
	userTemplate := resolvePrompt(prompts.User, DefaultUserPrompt)

	userPrompt := fmt.Sprintf(userTemplate,
		strings.TrimSpace(input.Question),
		strings.TrimSpace(input.Answer),
		describeEngagement(input.Summary))

	return systemPrompt, userPrompt
}

// promptSource is the subset of prompt configuration the builder needs
type promptSource struct {
	System string
	User   string
}

package engagement

import "engagemeter/internal/types"

// Emotion labels, in tie-break order
const (
	EmotionNeutral   = "neutral"
	EmotionHappy     = "happy"
	EmotionSad       = "sad"
	EmotionAngry     = "angry"
	EmotionFearful   = "fearful"
	EmotionSurprised = "surprised"
	EmotionDisgusted = "disgusted"
)

// Emotions lists every label the classifier can report
var Emotions = []string{
	EmotionNeutral,
	EmotionHappy,
	EmotionSad,
	EmotionAngry,
	EmotionFearful,
	EmotionSurprised,
	EmotionDisgusted,
}

// DominantEmotion returns the label with the highest scaled probability.
// Ties go to the label listed first in Emotions; an empty vector is neutral.
func DominantEmotion(expr types.ExpressionVector) string {
	return dominant(scale(expr))
}

func dominant(p percentages) string {
	values := []int{p.neutral, p.happy, p.sad, p.angry, p.fearful, p.surprised, p.disgusted}
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return Emotions[best]
}

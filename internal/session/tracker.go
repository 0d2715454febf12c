// Package session keeps the rolling engagement history of a mock interview
// and reduces it to a summary.
package session

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"engagemeter/internal/types"
)

// DefaultHistorySize is the rolling window used when none is configured
const DefaultHistorySize = 30

// Tracker records the metrics of one session.
// The history window is bounded; counters and averages cover the whole session.
type Tracker struct {
	mu sync.Mutex

	id      string
	size    int
	history []types.Sample // ring buffer, len <= size
	next    int

	samples      int
	faceDetected int
	lookingAway  int
	sums         [4]int // attention, positivity, confidence, arousal
	emotions     map[string]int

	latest    *types.EngagementMetrics
	startedAt time.Time
	updatedAt time.Time
}

// New returns a tracker holding at most historySize samples.
// Non-positive sizes fall back to DefaultHistorySize.
func New(historySize int) *Tracker {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Tracker{
		size:     historySize,
		history:  make([]types.Sample, 0, historySize),
		emotions: make(map[string]int),
	}
}

// ID returns the session id, empty for trackers created outside a Store
func (t *Tracker) ID() string {
	return t.id
}

// Record appends one estimator result taken at the given time
func (t *Tracker) Record(m types.EngagementMetrics, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sample := types.Sample{At: at, Metrics: m}
	if len(t.history) < t.size {
		t.history = append(t.history, sample)
	} else {
		t.history[t.next] = sample
	}
	t.next = (t.next + 1) % t.size

	t.samples++
	t.sums[0] += m.Attention
	t.sums[1] += m.Positivity
	t.sums[2] += m.Confidence
	t.sums[3] += m.Arousal

	if m.FaceDetected {
		t.faceDetected++
		if !m.EyeGaze.LookingForward {
			t.lookingAway++
		}
		if m.DominantEmotion != "" {
			t.emotions[m.DominantEmotion]++
		}
	}

	latest := m
	t.latest = &latest
	if t.startedAt.IsZero() || at.Before(t.startedAt) {
		t.startedAt = at
	}
	if at.After(t.updatedAt) {
		t.updatedAt = at
	}
}

// History returns the rolling window, oldest first
func (t *Tracker) History() []types.Sample {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.Sample, 0, len(t.history))
	if len(t.history) < t.size {
		return append(out, t.history...)
	}
	out = append(out, t.history[t.next:]...)
	return append(out, t.history[:t.next]...)
}

// Len returns the number of samples recorded over the whole session
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samples
}

// LastActivity returns the time of the most recent sample
func (t *Tracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updatedAt
}

// Summary reduces the session to averages and its topN dominant emotions.
// topN <= 0 returns every emotion seen. Emotions are only counted on frames
// with a detected face.
func (t *Tracker) Summary(topN int) types.SessionSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := types.SessionSummary{
		SessionID:    t.id,
		Samples:      t.samples,
		FaceDetected: t.faceDetected,
		TopEmotions:  topEmotions(t.emotions, topN),
		StartedAt:    t.startedAt,
		UpdatedAt:    t.updatedAt,
	}
	if t.latest != nil {
		latest := *t.latest
		summary.Latest = &latest
	}
	if t.samples > 0 {
		n := float64(t.samples)
		summary.Averages = types.ScoreAverages{
			Attention:  roundOne(float64(t.sums[0]) / n),
			Positivity: roundOne(float64(t.sums[1]) / n),
			Confidence: roundOne(float64(t.sums[2]) / n),
			Arousal:    roundOne(float64(t.sums[3]) / n),
		}
	}
	if t.faceDetected > 0 {
		summary.LookingAwayPc = roundOne(100 * float64(t.lookingAway) / float64(t.faceDetected))
	}
	return summary
}

func topEmotions(counts map[string]int, topN int) []types.EmotionCount {
	out := make([]types.EmotionCount, 0, len(counts))
	for emotion, count := range counts {
		out = append(out, types.EmotionCount{Emotion: emotion, Count: count})
	}
	slices.SortFunc(out, func(a, b types.EmotionCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Emotion, b.Emotion)
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

func roundOne(v float64) float64 {
	return math.Round(v*10) / 10
}

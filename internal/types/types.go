package types

import "time"

// ExpressionVector holds per-frame expression probabilities from the face classifier.
// Values are independent confidences in [0,1] and need not sum to 1.
type ExpressionVector struct {
	Neutral   float64 `json:"neutral"`
	Happy     float64 `json:"happy"`
	Sad       float64 `json:"sad"`
	Angry     float64 `json:"angry"`
	Fearful   float64 `json:"fearful"`
	Surprised float64 `json:"surprised"`
	Disgusted float64 `json:"disgusted"`
}

// FaceBox is the detected face rectangle together with the source frame size
type FaceBox struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	FrameWidth  float64 `json:"frameWidth"`
	FrameHeight float64 `json:"frameHeight"`
}

// EyeGaze summarizes where the candidate is looking
type EyeGaze struct {
	LookingForward bool   `json:"lookingForward"`
	GazeDirection  string `json:"gazeDirection"` // "left", "right" or "forward"
}

// HeadPose angles in degrees. Roll is always 0.
type HeadPose struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// FacialFeatures are 0-100 feature intensities
type FacialFeatures struct {
	SmileIntensity  int `json:"smileIntensity"`
	EyeOpenness     int `json:"eyeOpenness"`
	EyebrowPosition int `json:"eyebrowPosition"`
}

// EngagementMetrics is the estimator output for one detection cycle
type EngagementMetrics struct {
	Attention       int            `json:"attention"`
	Positivity      int            `json:"positivity"`
	Confidence      int            `json:"confidence"`
	Arousal         int            `json:"arousal"` // 0 uncomfortable, 50 neutral, 100 happy
	EyeGaze         EyeGaze        `json:"eyeGaze"`
	HeadPose        HeadPose       `json:"headPose"`
	FacialFeatures  FacialFeatures `json:"facialFeatures"`
	DominantEmotion string         `json:"dominantEmotion"`
	FaceDetected    bool           `json:"faceDetected"`
}

// FrameInput is one detection cycle as delivered by the capture pipeline.
// A nil Expressions or Detected=false means no face was found this cycle.
type FrameInput struct {
	Detected    *bool             `json:"detected,omitempty"`
	Expressions *ExpressionVector `json:"expressions,omitempty"`
	FaceBox     *FaceBox          `json:"faceBox,omitempty"`
	Timestamp   *time.Time        `json:"timestamp,omitempty"`
}

// HasFace reports whether the frame carries a usable detection
func (f FrameInput) HasFace() bool {
	if f.Detected != nil && !*f.Detected {
		return false
	}
	return f.Expressions != nil
}

// RecordedAt returns the frame timestamp, or fallback when it is missing or zero
func (f FrameInput) RecordedAt(fallback time.Time) time.Time {
	if f.Timestamp == nil || f.Timestamp.IsZero() {
		return fallback
	}
	return *f.Timestamp
}

// Sample is one entry in a session's rolling history
type Sample struct {
	At      time.Time         `json:"at"`
	Metrics EngagementMetrics `json:"metrics"`
}

// EmotionCount is how often an emotion was dominant during a session
type EmotionCount struct {
	Emotion string `json:"emotion"`
	Count   int    `json:"count"`
}

// ScoreAverages holds the mean of each engagement score
type ScoreAverages struct {
	Attention  float64 `json:"attention"`
	Positivity float64 `json:"positivity"`
	Confidence float64 `json:"confidence"`
	Arousal    float64 `json:"arousal"`
}

// SessionSummary is the end-of-session (or running) digest of a mock interview
type SessionSummary struct {
	SessionID     string             `json:"sessionId,omitempty"`
	Samples       int                `json:"samples"`
	FaceDetected  int                `json:"faceDetected"`
	Averages      ScoreAverages      `json:"averages"`
	TopEmotions   []EmotionCount     `json:"topEmotions"`
	Latest        *EngagementMetrics `json:"latest,omitempty"`
	LookingAwayPc float64            `json:"lookingAwayPercent"`
	StartedAt     time.Time          `json:"startedAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// FeedbackInput is the input for AI coaching feedback on a mock interview answer
type FeedbackInput struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Summary  SessionSummary `json:"summary"`
}

// FeedbackOutput is the structured coaching feedback returned by the AI
type FeedbackOutput struct {
	OverallScore int      `json:"overallScore"` // 0-100
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	BodyLanguage string   `json:"bodyLanguage"`
}

// FeedbackReport pairs AI feedback with the session summary it was based on
type FeedbackReport struct {
	Feedback FeedbackOutput `json:"feedback"`
	Summary  SessionSummary `json:"summary"`
}

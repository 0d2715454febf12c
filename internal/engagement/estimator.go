// Package engagement turns per-frame facial expression probabilities into
// bounded engagement scores for the mock interview feature.
//
// The estimator is a pure function: it keeps no state between calls, performs
// no I/O and is safe for concurrent use. History and summarization belong to
// the caller (see package session).
package engagement

import (
	"math"

	"engagemeter/internal/types"
)

// Gaze directions
const (
	GazeForward = "forward"
	GazeLeft    = "left"
	GazeRight   = "right"
)

// Head pose scaling, in degrees at the frame edge
const (
	maxYawDegrees   = 30.0
	maxPitchDegrees = 20.0
)

// noFaceExpressions is the neutral-biased vector that stands for a cycle in
// which the detector found no face. The fallback takes its dominant emotion
// from it; the score formulas never run on it.
var noFaceExpressions = types.ExpressionVector{
	Neutral:   0.8,
	Happy:     0.1,
	Sad:       0.05,
	Angry:     0.05,
	Fearful:   0.05,
	Surprised: 0.05,
	Disgusted: 0.05,
}

// percentages is an ExpressionVector scaled to integer percents in [0,100]
type percentages struct {
	neutral, happy, sad, angry, fearful, surprised, disgusted int
}

// Estimate computes the engagement metrics for one detected face.
// A nil box, or a box without positive frame dimensions, yields a zero head pose.
func Estimate(expr types.ExpressionVector, box *types.FaceBox) types.EngagementMetrics {
	p := scale(expr)
	pose := estimateHeadPose(box)

	return types.EngagementMetrics{
		Attention:       attention(p),
		Positivity:      positivity(p),
		Confidence:      confidence(p),
		Arousal:         arousal(p),
		EyeGaze:         gazeFromPose(pose),
		HeadPose:        pose,
		FacialFeatures:  facialFeatures(p),
		DominantEmotion: dominant(p),
		FaceDetected:    true,
	}
}

// EstimateNoFace returns the fixed mid-range metrics used when the detector
// reports no face for the cycle.
func EstimateNoFace() types.EngagementMetrics {
	return types.EngagementMetrics{
		Attention:  50,
		Positivity: 50,
		Confidence: 50,
		Arousal:    50,
		EyeGaze: types.EyeGaze{
			LookingForward: true,
			GazeDirection:  GazeForward,
		},
		FacialFeatures: types.FacialFeatures{
			SmileIntensity:  50,
			EyeOpenness:     80,
			EyebrowPosition: 50,
		},
		DominantEmotion: DominantEmotion(noFaceExpressions),
		FaceDetected:    false,
	}
}

// EstimateFrame dispatches a capture-pipeline frame to Estimate or EstimateNoFace
func EstimateFrame(frame types.FrameInput) types.EngagementMetrics {
	if !frame.HasFace() {
		return EstimateNoFace()
	}
	return Estimate(*frame.Expressions, frame.FaceBox)
}

func scale(expr types.ExpressionVector) percentages {
	return percentages{
		neutral:   toPercent(expr.Neutral),
		happy:     toPercent(expr.Happy),
		sad:       toPercent(expr.Sad),
		angry:     toPercent(expr.Angry),
		fearful:   toPercent(expr.Fearful),
		surprised: toPercent(expr.Surprised),
		disgusted: toPercent(expr.Disgusted),
	}
}

// toPercent maps a probability to round(p*100) in [0,100].
// NaN, infinities and negative values count as 0.
func toPercent(p float64) int {
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return 0
	}
	return clampInt(int(math.Round(p*100)), 0, 100)
}

// The score formulas below work in tenths of a point so that every
// coefficient is an integer and rounding is exact.

func attention(p percentages) int {
	t := 600 + 4*p.neutral + 2*p.surprised - 4*p.sad - 5*p.fearful
	return roundTenths(clampInt(t, 150, 1000))
}

func positivity(p percentages) int {
	t := 250 + 7*p.happy + 2*p.surprised + p.neutral - 3*p.sad - 2*p.angry
	return roundTenths(clampInt(t, 100, 1000))
}

func confidence(p percentages) int {
	t := 450 + 4*p.happy + 3*p.neutral - 5*p.fearful - 3*p.sad - 2*p.angry
	return roundTenths(clampInt(t, 200, 1000))
}

func arousal(p percentages) int {
	var t int
	switch {
	case p.happy > 20:
		t = min(1000, 550+6*p.happy)
	case p.fearful > 15 || p.angry > 15 || p.sad > 25:
		t = max(150, 350-7*p.fearful-5*p.angry-4*p.sad)
	default:
		t = 450 + p.neutral + 2*p.surprised
	}
	return roundTenths(clampInt(t, 0, 1000))
}

func facialFeatures(p percentages) types.FacialFeatures {
	return types.FacialFeatures{
		SmileIntensity:  p.happy,
		EyeOpenness:     clampInt(roundTenths(800-5*p.sad-3*p.fearful), 0, 100),
		EyebrowPosition: clampInt(roundTenths(500+4*p.surprised-3*p.angry), 0, 100),
	}
}

// estimateHeadPose derives yaw and pitch from the face box offset to frame center
func estimateHeadPose(box *types.FaceBox) types.HeadPose {
	if box == nil {
		return types.HeadPose{}
	}
	fw, fh := finite(box.FrameWidth), finite(box.FrameHeight)
	if fw <= 0 || fh <= 0 {
		return types.HeadPose{}
	}

	centerX := finite(box.X) + finite(box.Width)/2
	centerY := finite(box.Y) + finite(box.Height)/2

	yaw := ((centerX - fw/2) / (fw / 2)) * maxYawDegrees
	pitch := ((centerY - fh/2) / (fh / 2)) * maxPitchDegrees

	return types.HeadPose{
		Pitch: clampFloat(finite(pitch), -maxPitchDegrees, maxPitchDegrees),
		Yaw:   clampFloat(finite(yaw), -maxYawDegrees, maxYawDegrees),
		Roll:  0,
	}
}

func gazeFromPose(pose types.HeadPose) types.EyeGaze {
	direction := GazeForward
	switch {
	case pose.Yaw > 10:
		direction = GazeRight
	case pose.Yaw < -10:
		direction = GazeLeft
	}
	return types.EyeGaze{
		LookingForward: math.Abs(pose.Yaw) < 15 && math.Abs(pose.Pitch) < 10,
		GazeDirection:  direction,
	}
}

// roundTenths rounds a value in tenths to the nearest integer, halves away from zero
func roundTenths(t int) int {
	if t < 0 {
		return -((-t + 5) / 10)
	}
	return (t + 5) / 10
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

package formatters

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"engagemeter/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "MetricsList", &MetricsTextFormatter{})
	registry.RegisterFormatter("markdown", "MetricsList", &MetricsMarkdownFormatter{})
	registry.RegisterFormatter("text", "SessionSummary", &SummaryTextFormatter{})
	registry.RegisterFormatter("markdown", "SessionSummary", &SummaryMarkdownFormatter{})
	registry.RegisterFormatter("text", "FeedbackReport", &FeedbackTextFormatter{})
	registry.RegisterFormatter("markdown", "FeedbackReport", &FeedbackMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats in sorted order
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	return slices.Sorted(maps.Keys(fr.formatters))
}

func getDataType(data any) string {
	switch data.(type) {
	case []types.EngagementMetrics:
		return "MetricsList"
	case types.SessionSummary:
		return "SessionSummary"
	case types.FeedbackReport:
		return "FeedbackReport"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// MetricsTextFormatter renders one line per frame
type MetricsTextFormatter struct{}

func (mtf *MetricsTextFormatter) Format(data any) (string, error) {
	frames, ok := data.([]types.EngagementMetrics)
	if !ok {
		return "", fmt.Errorf("expected []EngagementMetrics, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== ENGAGEMENT METRICS ===\n\n")
	for i, m := range frames {
		if !m.FaceDetected {
			fmt.Fprintf(&output, "#%d  no face detected\n", i+1)
			continue
		}
		fmt.Fprintf(&output, "#%d  attention=%d positivity=%d confidence=%d arousal=%d emotion=%s gaze=%s\n",
			i+1, m.Attention, m.Positivity, m.Confidence, m.Arousal, m.DominantEmotion, m.EyeGaze.GazeDirection)
	}
	return output.String(), nil
}

func (mtf *MetricsTextFormatter) SupportedType() string {
	return "MetricsList"
}

// MetricsMarkdownFormatter renders frames as a markdown table
type MetricsMarkdownFormatter struct{}

func (mmf *MetricsMarkdownFormatter) Format(data any) (string, error) {
	frames, ok := data.([]types.EngagementMetrics)
	if !ok {
		return "", fmt.Errorf("expected []EngagementMetrics, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Engagement Metrics\n\n")
	output.WriteString("| # | Face | Attention | Positivity | Confidence | Arousal | Emotion | Gaze | Pitch | Yaw |\n")
	output.WriteString("|---|------|-----------|------------|------------|---------|---------|------|-------|-----|\n")
	for i, m := range frames {
		face := "yes"
		if !m.FaceDetected {
			face = "no"
		}
		fmt.Fprintf(&output, "| %d | %s | %d | %d | %d | %d | %s | %s | %.1f | %.1f |\n",
			i+1, face, m.Attention, m.Positivity, m.Confidence, m.Arousal,
			m.DominantEmotion, m.EyeGaze.GazeDirection, m.HeadPose.Pitch, m.HeadPose.Yaw)
	}
	return output.String(), nil
}

func (mmf *MetricsMarkdownFormatter) SupportedType() string {
	return "MetricsList"
}

// SummaryTextFormatter handles text formatting for session summaries
type SummaryTextFormatter struct{}

func (stf *SummaryTextFormatter) Format(data any) (string, error) {
	summary, ok := data.(types.SessionSummary)
	if !ok {
		return "", fmt.Errorf("expected SessionSummary, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== SESSION SUMMARY ===\n\n")
	if summary.SessionID != "" {
		fmt.Fprintf(&output, "Session: %s\n", summary.SessionID)
	}
	fmt.Fprintf(&output, "Samples: %d (face detected in %d)\n", summary.Samples, summary.FaceDetected)
	fmt.Fprintf(&output, "Looking away: %.1f%%\n\n", summary.LookingAwayPc)

	output.WriteString("=== AVERAGE SCORES ===\n")
	fmt.Fprintf(&output, "Attention:  %.1f/100\n", summary.Averages.Attention)
	fmt.Fprintf(&output, "Positivity: %.1f/100\n", summary.Averages.Positivity)
	fmt.Fprintf(&output, "Confidence: %.1f/100\n", summary.Averages.Confidence)
	fmt.Fprintf(&output, "Arousal:    %.1f/100\n", summary.Averages.Arousal)

	if len(summary.TopEmotions) > 0 {
		output.WriteString("\n=== TOP EMOTIONS ===\n")
		for i, e := range summary.TopEmotions {
			fmt.Fprintf(&output, "%d. %s (%d)\n", i+1, e.Emotion, e.Count)
		}
	}

	return output.String(), nil
}

func (stf *SummaryTextFormatter) SupportedType() string {
	return "SessionSummary"
}

// SummaryMarkdownFormatter handles markdown formatting for session summaries
type SummaryMarkdownFormatter struct{}

func (smf *SummaryMarkdownFormatter) Format(data any) (string, error) {
	summary, ok := data.(types.SessionSummary)
	if !ok {
		return "", fmt.Errorf("expected SessionSummary, got %T", data)
	}

	var output strings.Builder
	writeSummaryMarkdown(&output, summary, "#")
	return output.String(), nil
}

func (smf *SummaryMarkdownFormatter) SupportedType() string {
	return "SessionSummary"
}

func writeSummaryMarkdown(output *strings.Builder, summary types.SessionSummary, heading string) {
	fmt.Fprintf(output, "%s Session Summary\n\n", heading)
	if summary.SessionID != "" {
		fmt.Fprintf(output, "**Session:** %s\n\n", summary.SessionID)
	}
	fmt.Fprintf(output, "**Samples:** %d (face detected in %d)\n\n", summary.Samples, summary.FaceDetected)
	fmt.Fprintf(output, "**Looking away:** %.1f%%\n\n", summary.LookingAwayPc)

	fmt.Fprintf(output, "%s# Average Scores\n\n", heading)
	output.WriteString("| Attention | Positivity | Confidence | Arousal |\n")
	output.WriteString("|-----------|------------|------------|---------|\n")
	fmt.Fprintf(output, "| %.1f | %.1f | %.1f | %.1f |\n\n",
		summary.Averages.Attention, summary.Averages.Positivity,
		summary.Averages.Confidence, summary.Averages.Arousal)

	if len(summary.TopEmotions) > 0 {
		fmt.Fprintf(output, "%s# Top Emotions\n\n", heading)
		for i, e := range summary.TopEmotions {
			fmt.Fprintf(output, "%d. %s (%d)\n", i+1, e.Emotion, e.Count)
		}
		output.WriteString("\n")
	}
}

// FeedbackTextFormatter handles text formatting for coaching feedback
type FeedbackTextFormatter struct{}

func (ftf *FeedbackTextFormatter) Format(data any) (string, error) {
	report, ok := data.(types.FeedbackReport)
	if !ok {
		return "", fmt.Errorf("expected FeedbackReport, got %T", data)
	}
	fb := report.Feedback

	var output strings.Builder
	output.WriteString("=== INTERVIEW FEEDBACK ===\n\n")
	fmt.Fprintf(&output, "Overall Score: %d/100\n\n", fb.OverallScore)
	output.WriteString("Summary:\n")
	output.WriteString(fb.Summary)
	output.WriteString("\n\n")

	if len(fb.Strengths) > 0 {
		output.WriteString("Strengths:\n")
		for _, s := range fb.Strengths {
			fmt.Fprintf(&output, "- %s\n", s)
		}
		output.WriteString("\n")
	}
	if len(fb.Improvements) > 0 {
		output.WriteString("Improvements:\n")
		for _, s := range fb.Improvements {
			fmt.Fprintf(&output, "- %s\n", s)
		}
		output.WriteString("\n")
	}
	if fb.BodyLanguage != "" {
		output.WriteString("Body Language:\n")
		output.WriteString(fb.BodyLanguage)
		output.WriteString("\n\n")
	}

	fmt.Fprintf(&output, "Based on %d samples, average attention %.1f, positivity %.1f\n",
		report.Summary.Samples, report.Summary.Averages.Attention, report.Summary.Averages.Positivity)

	return output.String(), nil
}

func (ftf *FeedbackTextFormatter) SupportedType() string {
	return "FeedbackReport"
}

// FeedbackMarkdownFormatter handles markdown formatting for coaching feedback
type FeedbackMarkdownFormatter struct{}

func (fmf *FeedbackMarkdownFormatter) Format(data any) (string, error) {
	report, ok := data.(types.FeedbackReport)
	if !ok {
		return "", fmt.Errorf("expected FeedbackReport, got %T", data)
	}
	fb := report.Feedback

	var output strings.Builder
	output.WriteString("# Interview Feedback\n\n")
	fmt.Fprintf(&output, "**Overall Score:** %d/100\n\n", fb.OverallScore)
	output.WriteString("## Summary\n\n")
	output.WriteString(fb.Summary)
	output.WriteString("\n\n")

	if len(fb.Strengths) > 0 {
		output.WriteString("## Strengths\n\n")
		for _, s := range fb.Strengths {
			fmt.Fprintf(&output, "- %s\n", s)
		}
		output.WriteString("\n")
	}
	if len(fb.Improvements) > 0 {
		output.WriteString("## Improvements\n\n")
		for _, s := range fb.Improvements {
			fmt.Fprintf(&output, "- %s\n", s)
		}
		output.WriteString("\n")
	}
	if fb.BodyLanguage != "" {
		output.WriteString("## Body Language\n\n")
		output.WriteString(fb.BodyLanguage)
		output.WriteString("\n\n")
	}

	writeSummaryMarkdown(&output, report.Summary, "##")

	return output.String(), nil
}

func (fmf *FeedbackMarkdownFormatter) SupportedType() string {
	return "FeedbackReport"
}

// Global formatter registry
var GlobalRegistry = NewFormatterRegistry()

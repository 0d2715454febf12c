package server

import (
	"context"
	"net/http"
	"time"

	"engagemeter/internal/engagement"
	appErrors "engagemeter/internal/errors"
	"engagemeter/internal/observability"
	"engagemeter/internal/session"
	"engagemeter/internal/types"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "engagemeter.api"

// lookupSession resolves the {id} path value or writes a 404
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request, span oteltrace.Span) (*session.Tracker, bool) {
	id := r.PathValue("id")
	span.SetAttributes(attribute.String("session.id", id))

	tracker, ok := s.Sessions.Get(id)
	if !ok {
		err := appErrors.NewNotFoundError(appErrors.ErrCodeSessionNotFound, "session not found", nil).
			WithContext("session_id", id)
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "not_found"))
		writeErrorResponse(w, "Session not found", "no session with id "+id, http.StatusNotFound)
		return nil, false
	}
	return tracker, true
}

// createEstimateHandler turns one frame into metrics without touching any session
func (s *Server) createEstimateHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer(tracerName).Start(r.Context(), "api.estimate")
		defer span.End()

		var frame types.FrameInput
		if err := parseJSONRequest(r, &frame); err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "validation"))
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}

		metrics := engagement.EstimateFrame(frame)
		om.GetMetrics().RecordFrame(ctx, metrics, "http", om)

		span.SetAttributes(
			attribute.Bool("face_detected", metrics.FaceDetected),
			attribute.String("dominant_emotion", metrics.DominantEmotion),
		)
		writeJSON(w, http.StatusOK, metrics)
	}
}

// createSessionHandler starts a new tracked session
func (s *Server) createSessionHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer(tracerName).Start(r.Context(), "api.session.create")
		defer span.End()

		tracker := s.Sessions.Create()
		om.GetMetrics().RecordBusinessMetric(ctx, observability.MetricSessionCreated, true, om)

		span.SetAttributes(attribute.String("session.id", tracker.ID()))
		s.Logger.Debug("Session created", "session_id", tracker.ID())

		writeJSON(w, http.StatusCreated, CreateSessionResponse{
			ID:        tracker.ID(),
			StartedAt: time.Now().UTC(),
		})
	}
}

// createSummaryHandler returns the running summary of a session
func (s *Server) createSummaryHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := om.Tracer(tracerName).Start(r.Context(), "api.session.summary")
		defer span.End()

		tracker, ok := s.lookupSession(w, r, span)
		if !ok {
			return
		}

		summary := tracker.Summary(s.TopEmotions)
		span.SetAttributes(attribute.Int("session.samples", summary.Samples))
		writeJSON(w, http.StatusOK, summary)
	}
}

// createDeleteSessionHandler drops a session and its history
func (s *Server) createDeleteSessionHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := om.Tracer(tracerName).Start(r.Context(), "api.session.delete")
		defer span.End()

		id := r.PathValue("id")
		span.SetAttributes(attribute.String("session.id", id))

		if !s.Sessions.Delete(id) {
			span.SetAttributes(attribute.String("error.type", "not_found"))
			writeErrorResponse(w, "Session not found", "no session with id "+id, http.StatusNotFound)
			return
		}

		s.Logger.Debug("Session deleted", "session_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// createFrameHandler estimates one frame and appends it to the session
func (s *Server) createFrameHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer(tracerName).Start(r.Context(), "api.session.frame")
		defer span.End()

		tracker, ok := s.lookupSession(w, r, span)
		if !ok {
			return
		}

		var frame types.FrameInput
		if err := parseJSONRequest(r, &frame); err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "validation"))
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}

		metrics := s.recordFrame(ctx, tracker, frame, "http", om)
		span.SetAttributes(attribute.Bool("face_detected", metrics.FaceDetected))

		writeJSON(w, http.StatusOK, FrameResponse{
			Metrics: metrics,
			Summary: tracker.Summary(s.TopEmotions),
		})
	}
}

// recordFrame estimates frame, stores it on tracker and records metrics
func (s *Server) recordFrame(ctx context.Context, tracker *session.Tracker, frame types.FrameInput, source string, om *observability.ObservabilityManager) types.EngagementMetrics {
	metrics := engagement.EstimateFrame(frame)

	tracker.Record(metrics, frame.RecordedAt(time.Now().UTC()))

	om.GetMetrics().RecordFrame(ctx, metrics, source, om)
	return metrics
}

// createHistoryHandler returns the rolling history window of a session
func (s *Server) createHistoryHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := om.Tracer(tracerName).Start(r.Context(), "api.session.history")
		defer span.End()

		tracker, ok := s.lookupSession(w, r, span)
		if !ok {
			return
		}

		history := tracker.History()
		span.SetAttributes(attribute.Int("history.length", len(history)))
		writeJSON(w, http.StatusOK, HistoryResponse{
			SessionID: tracker.ID(),
			Samples:   history,
		})
	}
}

// createFeedbackHandler asks the AI for coaching feedback on the session
func (s *Server) createFeedbackHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer(tracerName).Start(r.Context(), "api.session.feedback")
		defer span.End()

		if s.Feedback == nil {
			span.SetAttributes(attribute.String("error.type", "not_configured"))
			writeErrorResponse(w, "Feedback unavailable", "no AI provider is configured", http.StatusServiceUnavailable)
			return
		}

		tracker, ok := s.lookupSession(w, r, span)
		if !ok {
			return
		}

		var req FeedbackRequest
		if err := parseJSONRequest(r, &req); err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "validation"))
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}

		summary := tracker.Summary(s.TopEmotions)
		input := types.FeedbackInput{
			Question: req.Question,
			Answer:   req.Answer,
			Summary:  summary,
		}

		span.SetAttributes(
			attribute.Int("request.question_length", len(req.Question)),
			attribute.Int("request.answer_length", len(req.Answer)),
			attribute.Int("session.samples", summary.Samples),
		)

		metrics := om.GetMetrics()
		var result types.FeedbackOutput
		err := metrics.TrackAIOperationWithTokens(ctx, "feedback", func(ctx context.Context) *observability.AIOperationResult {
			output, tokenUsage, aiErr := s.Feedback.Feedback(ctx, input)
			result = output
			opResult := &observability.AIOperationResult{Error: aiErr}
			if tokenUsage != nil {
				opResult.TokenUsage = &observability.TokenUsage{
					InputTokens:  tokenUsage.InputTokens,
					OutputTokens: tokenUsage.OutputTokens,
					TotalTokens:  tokenUsage.TotalTokens,
				}
			}
			return opResult
		}, om)

		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "ai_processing"))
			metrics.RecordBusinessMetric(ctx, observability.MetricFeedback, false, om)
			s.Logger.LogError(err, "Feedback generation failed", "session_id", tracker.ID())
			writeAppError(w, "Failed to generate feedback", err)
			return
		}

		metrics.RecordBusinessMetric(ctx, observability.MetricFeedback, true, om,
			attribute.Int("overall_score", result.OverallScore))
		span.SetAttributes(
			attribute.Bool("success", true),
			attribute.Int("overall_score", result.OverallScore),
		)

		writeJSON(w, http.StatusOK, FeedbackResponse{
			Feedback: result,
			Summary:  summary,
		})
	}
}

package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName          = "timeline-api/api"
	gesturesSpanName    = "timeline.gestures"
	gesturesEventName   = "gestures.request.metrics"
	gesturesEventDomain = "timeline"
	gesturesRoute       = "/api/gestures"
)

// gestureRequestMetrics collects per-stage timings for one gesture batch and
// emits them as a single observability event plus an otel span on Log.
type gestureRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	applyDuration  time.Duration
	encodeDuration time.Duration
	gestureCount   int
	appliedCount   int
	errorStage     string
}

func newGestureRequestMetrics(ctx context.Context, logger *log.Logger) (*gestureRequestMetrics, context.Context) {
	m := &gestureRequestMetrics{logger: logger, start: time.Now()}
	if ctx == nil {
		ctx = context.Background()
	}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, gesturesSpanName)
	m.span = span
	return m, spanCtx
}

func (m *gestureRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *gestureRequestMetrics) ObserveApply(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.applyDuration = duration
}

func (m *gestureRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *gestureRequestMetrics) SetGestureCount(count int) {
	if count < 0 {
		count = 0
	}
	m.gestureCount = count
}

func (m *gestureRequestMetrics) SetAppliedCount(count int) {
	if count < 0 {
		count = 0
	}
	m.appliedCount = count
}

func (m *gestureRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log finishes the span and writes the observability event. Safe to call
// exactly once.
func (m *gestureRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	totalMs := durationToMillis(time.Since(m.start))

	attrs := map[string]any{
		"http.route":                    gesturesRoute,
		"http.status_code":              status,
		"timeline.gestures.count":       m.gestureCount,
		"timeline.gestures.applied":     m.appliedCount,
		"timeline.gestures.total_ms":    totalMs,
		"timeline.gestures.error_stage": m.errorStage,
	}
	if m.authDuration > 0 {
		attrs["timeline.gestures.auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.applyDuration > 0 {
		attrs["timeline.gestures.apply_ms"] = durationToMillis(m.applyDuration)
	}
	if m.encodeDuration > 0 {
		attrs["timeline.gestures.encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage == "" {
		delete(attrs, "timeline.gestures.error_stage")
	}

	if m.span != nil {
		spanAttrs := []attribute.KeyValue{
			attribute.String("http.route", gesturesRoute),
			attribute.Int64("http.status_code", int64(status)),
			attribute.Int("timeline.gestures.count", m.gestureCount),
			attribute.Int("timeline.gestures.applied", m.appliedCount),
			attribute.Float64("timeline.gestures.total_ms", totalMs),
		}
		if m.errorStage != "" {
			spanAttrs = append(spanAttrs, attribute.String("timeline.gestures.error_stage", m.errorStage))
		}
		m.span.SetAttributes(spanAttrs...)
		m.span.AddEvent("observability.event")
		if err != nil || status >= http.StatusInternalServerError {
			m.span.SetStatus(codes.Error, m.errorStage)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	severityText := "INFO"
	severityNumber := 9
	if err != nil {
		severityText = "ERROR"
		severityNumber = 17
	}

	fields := log.Fields{
		"event.name":      gesturesEventName,
		"event.domain":    gesturesEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	entry := m.logger.WithFields(fields)
	if err != nil {
		entry.Error("observability.event")
	} else {
		entry.Info("observability.event")
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

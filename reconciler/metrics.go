package reconciler

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName      = "devcollab/reconciler"
	passSpanName    = "reconciler.pass"
	passEventName   = "devcollab.reconciler.pass"
	passEventDomain = "app"

	attrCandidates = "reconciler.candidates"
	attrCompleted  = "reconciler.completed"
	attrRejected   = "reconciler.rejected"
	attrUnchanged  = "reconciler.unchanged"
	attrSkipped    = "reconciler.skipped"
	attrFailed     = "reconciler.failed"
	attrTotalMs    = "reconciler.total_ms"
)

// outcome is the result of reconciling one task.
type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCompleted
	outcomeRejected
	outcomeSkipped
	outcomeFailed
)

// passMetrics counts per-task outcomes of one pass. Workers record
// concurrently.
type passMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	candidates int
	counts     [outcomeFailed + 1]atomic.Int64
}

func newPassMetrics(ctx context.Context, logger *log.Logger) (*passMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, passSpanName)
	return &passMetrics{logger: logger, span: span, start: time.Now()}, ctx
}

func (m *passMetrics) SetCandidates(n int) {
	m.candidates = n
}

func (m *passMetrics) Record(o outcome) {
	m.counts[o].Add(1)
}

func (m *passMetrics) Count(o outcome) int64 {
	return m.counts[o].Load()
}

// Finish closes the span and emits one observability event for the pass.
func (m *passMetrics) Finish(err error) {
	if m == nil {
		return
	}
	total := durationToMillis(time.Since(m.start))
	attrs := []attribute.KeyValue{
		attribute.Int(attrCandidates, m.candidates),
		attribute.Int64(attrCompleted, m.Count(outcomeCompleted)),
		attribute.Int64(attrRejected, m.Count(outcomeRejected)),
		attribute.Int64(attrUnchanged, m.Count(outcomeUnchanged)),
		attribute.Int64(attrSkipped, m.Count(outcomeSkipped)),
		attribute.Int64(attrFailed, m.Count(outcomeFailed)),
		attribute.Float64(attrTotalMs, total),
	}
	sevText, sevNumber := severityFor(m.Count(outcomeFailed), err)

	m.span.SetAttributes(attrs...)
	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", passEventName),
		attribute.String("event.domain", passEventDomain),
		attribute.String("severity_text", sevText),
		attribute.Int("severity_number", sevNumber),
	}, attrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))

	if m.logger != nil {
		fields := log.Fields{
			"event.name":      passEventName,
			"event.domain":    passEventDomain,
			"severity_text":   sevText,
			"severity_number": sevNumber,
			"attributes":      attributesToMap(attrs),
		}
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
		entry := m.logger.WithFields(fields)
		if err != nil {
			entry = entry.WithError(err)
		}
		switch sevText {
		case "ERROR":
			entry.Error("observability.event")
		case "WARN":
			entry.Warn("observability.event")
		default:
			entry.Info("observability.event")
		}
	}
	m.span.End()
}

func severityFor(failed int64, err error) (string, int) {
	switch {
	case err != nil:
		return "ERROR", 17
	case failed > 0:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

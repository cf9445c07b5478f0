// Package instrument измеряет длительность вызовов Select и Execute,
// пишет их в лог, метрики Prometheus и трейсы OpenTelemetry.
// Сбой любого из этих приёмников не влияет на результат вызова.
package instrument

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/magabrotheeeer/datagate/internal/config"
	"github.com/magabrotheeeer/datagate/internal/lib/sl"
	"github.com/magabrotheeeer/datagate/internal/storage/guard"
)

const tracerName = "github.com/magabrotheeeer/datagate/internal/storage/instrument"

// Kind тип вызова.
type Kind string

const (
	KindSelect  Kind = "select"
	KindExecute Kind = "execute"
)

// Source откуда получен результат вызова.
type Source string

const (
	SourceStore   Source = "store"
	SourceCache   Source = "cache"
	SourceBlocked Source = "blocked"
)

// Исходы вызова для метрик.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeBlocked = "blocked"
)

type callKey struct{}

type call struct {
	id     string
	source Source
}

// SetSource помечает текущий вызов источником результата. Вне Observe ничего не делает.
func SetSource(ctx context.Context, src Source) {
	if c, ok := ctx.Value(callKey{}).(*call); ok {
		c.source = src
	}
}

// CallID возвращает идентификатор текущего вызова или пустую строку.
func CallID(ctx context.Context) string {
	if c, ok := ctx.Value(callKey{}).(*call); ok {
		return c.id
	}
	return ""
}

// Recorder оборачивает вызовы хранилища.
type Recorder struct {
	log       *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	threshold time.Duration
	logging   bool
	now       func() time.Time
}

// Option настраивает Recorder.
type Option func(*Recorder)

// WithTracerProvider задаёт провайдер трейсов вместо глобального.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Recorder) { r.tracer = tp.Tracer(tracerName) }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New создаёт Recorder. metrics может быть nil.
func New(log *slog.Logger, metrics *Metrics, cfg config.Instrumentation, opts ...Option) *Recorder {
	r := &Recorder{
		log:       log,
		metrics:   metrics,
		tracer:    otel.Tracer(tracerName),
		threshold: cfg.SlowQueryThreshold,
		logging:   !cfg.DisableQueryLog,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metrics возвращает метрики, с которыми создан Recorder.
func (r *Recorder) Metrics() *Metrics {
	return r.metrics
}

// Observe выполняет fn и фиксирует время выполнения. Ошибка fn возвращается без изменений.
func (r *Recorder) Observe(ctx context.Context, kind Kind, query string, fn func(ctx context.Context) error) error {
	c := &call{id: uuid.NewString(), source: SourceStore}
	ctx = context.WithValue(ctx, callKey{}, c)

	span := trace.SpanFromContext(ctx)
	r.safe(func() {
		ctx, span = r.tracer.Start(ctx, "db."+string(kind),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.operation.name", string(kind)),
				attribute.String("db.query.text", sl.Normalize(query)),
			))
	})
	if r.logging {
		r.safe(func() {
			r.log.DebugContext(ctx, "query started",
				slog.String("call_id", c.id),
				slog.String("kind", string(kind)),
				sl.Query(query),
			)
		})
	}

	start := r.now()
	err := fn(ctx)
	elapsed := r.now().Sub(start)

	r.safe(func() { r.finish(ctx, span, c, kind, query, elapsed, err) })
	return err
}

func (r *Recorder) finish(ctx context.Context, span trace.Span, c *call, kind Kind, query string, elapsed time.Duration, err error) {
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, guard.ErrSecurityViolation):
		outcome = OutcomeBlocked
		c.source = SourceBlocked
	default:
		outcome = OutcomeError
	}
	slow := r.threshold > 0 && elapsed > r.threshold

	span.SetAttributes(
		attribute.String("datagate.source", string(c.source)),
		attribute.Bool("datagate.slow", slow),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()

	r.metrics.observe(kind, c.source, outcome, elapsed.Seconds(), slow)

	attrs := []any{
		slog.String("call_id", c.id),
		slog.String("kind", string(kind)),
		slog.String("source", string(c.source)),
		slog.Duration("elapsed", elapsed),
	}
	if slow {
		// Медленные запросы пишутся всегда, даже при выключенном логировании.
		r.log.WarnContext(ctx, "slow query", append(attrs, sl.Query(query), slog.Duration("threshold", r.threshold))...)
		return
	}
	if !r.logging {
		return
	}
	switch outcome {
	case OutcomeBlocked:
		r.log.WarnContext(ctx, "statement blocked", append(attrs, sl.Query(query), sl.Err(err))...)
	case OutcomeError:
		r.log.ErrorContext(ctx, "query failed", append(attrs, sl.Query(query), sl.Err(err))...)
	default:
		r.log.DebugContext(ctx, "query finished", attrs...)
	}
}

// safe вызывает fn и гасит панику приёмника.
func (r *Recorder) safe(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

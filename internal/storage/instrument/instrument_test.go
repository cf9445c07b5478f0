package instrument

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/magabrotheeeer/datagate/internal/config"
	"github.com/magabrotheeeer/datagate/internal/storage/guard"
)

// stepClock сдвигается на step при каждом вызове.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type panicHandler struct{}

func (panicHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (panicHandler) Handle(context.Context, slog.Record) error { panic("sink down") }
func (h panicHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h panicHandler) WithGroup(string) slog.Handler           { return h }

func newRecorder(t *testing.T, step time.Duration, cfg config.Instrumentation) (*Recorder, *Metrics, *bytes.Buffer, *tracetest.SpanRecorder) {
	t.Helper()
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	metrics := NewMetrics(prometheus.NewRegistry())
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	clock := &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), step: step}
	r := New(log, metrics, cfg, WithTracerProvider(tp), WithClock(clock.Now))
	return r, metrics, &buf, spans
}

func TestObserve_ReturnsWrappedError(t *testing.T) {
	r, metrics, buf, spans := newRecorder(t, time.Millisecond, config.Instrumentation{SlowQueryThreshold: time.Second})
	want := errors.New("boom")

	err := r.Observe(context.Background(), KindExecute, "UPDATE users SET is_active = FALSE", func(context.Context) error {
		return want
	})

	assert.ErrorIs(t, err, want)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.QueryDuration))
	assert.Contains(t, buf.String(), "query failed")
	require.Len(t, spans.Ended(), 1)
	assert.Equal(t, "db.execute", spans.Ended()[0].Name())
}

func TestObserve_SlowQuery(t *testing.T) {
	r, metrics, buf, _ := newRecorder(t, 300*time.Millisecond, config.Instrumentation{
		SlowQueryThreshold: 250 * time.Millisecond,
		DisableQueryLog:    true,
	})

	err := r.Observe(context.Background(), KindSelect, "SELECT 1", func(context.Context) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SlowQueries.WithLabelValues("select")))
	assert.Contains(t, buf.String(), "slow query")
}

func TestObserve_FastQueryNotSlow(t *testing.T) {
	r, metrics, buf, _ := newRecorder(t, 10*time.Millisecond, config.Instrumentation{
		SlowQueryThreshold: 250 * time.Millisecond,
		DisableQueryLog:    true,
	})

	require.NoError(t, r.Observe(context.Background(), KindSelect, "SELECT 1", func(context.Context) error { return nil }))

	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.SlowQueries.WithLabelValues("select")))
	assert.Empty(t, buf.String())
}

func TestObserve_SourceFromInnerCall(t *testing.T) {
	r, _, _, spans := newRecorder(t, time.Millisecond, config.Instrumentation{SlowQueryThreshold: time.Second})

	var id string
	err := r.Observe(context.Background(), KindSelect, "SELECT 1", func(ctx context.Context) error {
		SetSource(ctx, SourceCache)
		id = CallID(ctx)
		return nil
	})

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, spans.Ended(), 1)
	var source string
	for _, kv := range spans.Ended()[0].Attributes() {
		if kv.Key == "datagate.source" {
			source = kv.Value.AsString()
		}
	}
	assert.Equal(t, "cache", source)
}

func TestObserve_BlockedOutcome(t *testing.T) {
	r, _, buf, spans := newRecorder(t, time.Millisecond, config.Instrumentation{SlowQueryThreshold: time.Second})
	violation := fmt.Errorf("wrap: %w", guard.ErrSecurityViolation)

	err := r.Observe(context.Background(), KindExecute, "DROP TABLE users", func(context.Context) error { return violation })

	assert.ErrorIs(t, err, guard.ErrSecurityViolation)
	assert.Contains(t, buf.String(), "statement blocked")
	require.Len(t, spans.Ended(), 1)
}

func TestObserve_PanickingSinkDoesNotAbort(t *testing.T) {
	r := New(slog.New(panicHandler{}), nil, config.Instrumentation{SlowQueryThreshold: time.Nanosecond})

	called := false
	err := r.Observe(context.Background(), KindSelect, "SELECT 1", func(context.Context) error {
		called = true
		time.Sleep(time.Millisecond)
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
}

func TestSetSource_OutsideObserve(t *testing.T) {
	assert.NotPanics(t, func() { SetSource(context.Background(), SourceCache) })
	assert.Empty(t, CallID(context.Background()))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheResult(CacheHit)
		m.Blocked()
		m.Invalidated()
		m.StoreCall(KindSelect)
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.CacheResult(CacheHit)
	m.CacheResult(CacheHit)
	m.CacheResult(CacheMiss)
	m.Blocked()
	m.Invalidated()
	m.StoreCall(KindExecute)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheRequests.WithLabelValues(CacheHit)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheRequests.WithLabelValues(CacheMiss)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BlockedStatements))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheInvalidations))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StoreCalls.WithLabelValues("execute")))
}

package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/askcam-lab/internal/assistant"
	"github.com/askcam-lab/internal/voice"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	s, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: data is %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range s.DataPoints {
		total += dp.Value
	}
	return total
}

func TestObserverRecordsTurn(t *testing.T) {
	m, reader := newTestMetrics(t)
	o := Observer{M: m}
	ctx := context.Background()

	o.HotwordPolled(voice.Detection{Recognize: 30 * time.Millisecond}, false)
	o.HotwordPolled(voice.Detection{Text: "hey"}, true)
	o.PhaseChanged(assistant.PhaseChange{From: assistant.PhaseIdle, To: assistant.PhaseListeningHotword})
	o.QuestionCaptured(ctx, assistant.Turn{}, voice.Recording{Record: 2 * time.Second, Recognize: 300 * time.Millisecond, Stop: voice.StopSilence})
	start := time.Now()
	o.TurnCompleted(ctx, assistant.Turn{
		Trigger:   assistant.TriggerHotword,
		Outcome:   assistant.OutcomeAnswered,
		Answering: time.Second,
		Speaking:  2 * time.Second,
		StartedAt: start,
		EndedAt:   start.Add(5 * time.Second),
	})

	got := collect(t, reader)
	for name, want := range map[string]int64{
		"askcam.hotword.polls":    2,
		"askcam.hotword.triggers": 1,
		"askcam.phase.changes":    1,
		"askcam.turns":            1,
	} {
		if v := sumOf(t, got[name]); v != want {
			t.Errorf("%s = %d, want %d", name, v, want)
		}
	}
	h, ok := got["askcam.recognize.duration"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("recognize histogram missing")
	}
	var count uint64
	for _, dp := range h.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Fatalf("recognize observations = %d", count)
	}
	turns := got["askcam.turns"].Data.(metricdata.Sum[int64])
	if v, _ := turns.DataPoints[0].Attributes.Value("outcome"); v.AsString() != "answered" {
		t.Fatalf("outcome attribute = %v", v.AsString())
	}
}

func TestObserveCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	dropped := int64(0)
	if err := m.ObserveCounter("askcam.capture.dropped_chunks", "Dropped chunks.", func() int64 { return dropped }); err != nil {
		t.Fatal(err)
	}
	dropped = 7
	if v := sumOf(t, collect(t, reader)["askcam.capture.dropped_chunks"]); v != 7 {
		t.Fatalf("dropped = %d", v)
	}
}

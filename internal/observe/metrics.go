// Package observe records assistant metrics through the OpenTelemetry
// metrics API. InitProvider bridges them to a Prometheus /metrics endpoint;
// tests build Metrics on their own MeterProvider.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/askcam-lab"

// Metrics holds the instruments for the turn pipeline. Safe for concurrent
// use.
type Metrics struct {
	Turns           metric.Int64Counter
	HotwordPolls    metric.Int64Counter
	HotwordTriggers metric.Int64Counter
	PhaseChanges    metric.Int64Counter

	RecordDuration    metric.Float64Histogram
	RecognizeDuration metric.Float64Histogram
	AnswerDuration    metric.Float64Histogram
	SpeakDuration     metric.Float64Histogram
	TurnDuration      metric.Float64Histogram

	meter metric.Meter
}

// Seconds, tuned for speech and model round trips.
var latencyBuckets = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{meter: m}
	var err error

	if met.Turns, err = m.Int64Counter("askcam.turns",
		metric.WithDescription("Completed turns by trigger and outcome."),
	); err != nil {
		return nil, err
	}
	if met.HotwordPolls, err = m.Int64Counter("askcam.hotword.polls",
		metric.WithDescription("Hotword polls run."),
	); err != nil {
		return nil, err
	}
	if met.HotwordTriggers, err = m.Int64Counter("askcam.hotword.triggers",
		metric.WithDescription("Hotword polls that matched a trigger phrase."),
	); err != nil {
		return nil, err
	}
	if met.PhaseChanges, err = m.Int64Counter("askcam.phase.changes",
		metric.WithDescription("Coordinator phase transitions by target phase."),
	); err != nil {
		return nil, err
	}

	hist := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}
	if met.RecordDuration, err = hist("askcam.record.duration", "Time spent recording a question."); err != nil {
		return nil, err
	}
	if met.RecognizeDuration, err = hist("askcam.recognize.duration", "Speech recognition latency."); err != nil {
		return nil, err
	}
	if met.AnswerDuration, err = hist("askcam.answer.duration", "Vision answer latency."); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = hist("askcam.speak.duration", "Speech synthesis and playback time."); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = hist("askcam.turn.duration", "Hotword to idle time per turn."); err != nil {
		return nil, err
	}
	return met, nil
}

// ObserveCounter exports a monotonically increasing value read at collection
// time, such as the capture callback's dropped chunk count.
func (m *Metrics) ObserveCounter(name, desc string, read func() int64) error {
	_, err := m.meter.Int64ObservableCounter(name,
		metric.WithDescription(desc),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(read())
			return nil
		}),
	)
	return err
}

func seconds(d time.Duration) float64 { return d.Seconds() }

// Attr is attribute.String, shortened for call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

package telemetry

import (
	"context"
	"fmt"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scitags/conntuple/kernel"
	"github.com/scitags/conntuple/tuple"
	"github.com/scitags/conntuple/types"
)

type metrics struct {
	Events         prometheus.Counter
	DecodeFailures prometheus.Counter

	// Raw reads that faulted, by strategy and field.
	ReadFailures *prometheus.CounterVec

	// Tuples that couldn't be completed, by failure category. A single
	// tuple may count towards several categories.
	NormalizeFailures *prometheus.CounterVec

	Tuples *prometheus.CounterVec

	Connections prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		Events: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conntuple_events_total",
			Help: "Socket events handled",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conntuple_decode_failures_total",
			Help: "Ring buffer samples that couldn't be decoded",
		}),

		ReadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conntuple_read_failures_total",
			Help: "Kernel memory reads that failed",
		}, []string{"strategy", "field"}),

		NormalizeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conntuple_normalize_failures_total",
			Help: "Incomplete tuples by failure category",
		}, []string{"category"}),

		Tuples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conntuple_tuples_total",
			Help: "Tuples successfully normalized",
		}, []string{"proto", "family"}),

		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conntuple_connections",
			Help: "Connections held in the stats store",
		}),
	}
}

// (Nastily) use reflection to avoid having to manually register everything.
func (m *metrics) register(req prometheus.Registerer) error {
	v := reflect.ValueOf(*m)

	i := 0
	for i = 0; i < v.NumField(); i++ {
		vv, ok := v.Field(i).Interface().(prometheus.Collector)
		if !ok {
			return fmt.Errorf("error casting the interface for index %d", i)
		}
		if err := req.Register(vv); err != nil {
			return fmt.Errorf("error registering index %d: %w", i, err)
		}
	}
	logger.Log(context.Background(), types.LevelTrace, "registered collectors", "i", i)

	return nil
}

// Make every category show up on the first scrape.
func (m *metrics) init() {
	for _, c := range tuple.CategoryNames() {
		m.NormalizeFailures.WithLabelValues(c).Add(0)
	}
	for _, p := range []types.Protocol{types.TCP, types.UDP} {
		for _, f := range []types.Family{types.IPv4, types.IPv6} {
			m.Tuples.WithLabelValues(p.String(), f.String()).Add(0)
		}
	}
	for _, f := range kernel.Fields() {
		m.ReadFailures.WithLabelValues(kernel.Prebuilt.String(), f.String()).Add(0)
	}
}

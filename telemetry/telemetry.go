// Package telemetry exposes the extraction pipeline's health as Prometheus
// metrics.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scitags/conntuple/kernel"
	"github.com/scitags/conntuple/tuple"
	"github.com/scitags/conntuple/types"
)

var logger *slog.Logger

type Telemetry struct {
	Config

	m      *metrics
	reg    *prometheus.Registry
	server *http.Server
}

func New(c *Config) (*Telemetry, error) {
	if c.Log {
		logger = slog.Default().With("t", "telemetry")
	} else {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initialising telemetry")

	t := Telemetry{Config: *c, m: newMetrics()}

	// Create a non-global registry.
	t.reg = prometheus.NewRegistry()
	if err := t.m.register(t.reg); err != nil {
		return nil, fmt.Errorf("error registering the metrics: %w", err)
	}
	t.m.init()

	if t.Port == 0 {
		slog.Warn("not exposing metrics over HTTP")
		return &t, nil
	}

	handler := http.NewServeMux()
	handler.Handle("/metrics", t.Handler())

	t.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", t.BindAddress, t.Port),
		Handler: handler,
	}

	return &t, nil
}

func (t *Telemetry) String() string {
	return "telemetry"
}

func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.reg, promhttp.HandlerOpts{Registry: t.reg})
}

// Run serves the metrics until Cleanup is called.
func (t *Telemetry) Run() {
	if t.server == nil {
		return
	}

	logger.Debug("serving metrics", "addr", t.server.Addr)
	go func() {
		if err := t.server.ListenAndServe(); err != nil {
			logger.Info("stopped listening", "err", err)
		}
	}()
}

func (t *Telemetry) Cleanup() error {
	if t.server == nil {
		return nil
	}

	logger.Debug("cleaning up telemetry")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return t.server.Shutdown(ctx)
}

// ReadFailed implements kernel.Observer.
func (t *Telemetry) ReadFailed(s kernel.Strategy, f kernel.Field, err error) {
	logger.Log(context.Background(), types.LevelTrace, "read failed", "strategy", s, "field", f, "err", err)
	t.m.ReadFailures.WithLabelValues(s.String(), f.String()).Inc()
}

func (t *Telemetry) EventHandled() {
	t.m.Events.Inc()
}

func (t *Telemetry) DecodeFailed() {
	t.m.DecodeFailures.Inc()
}

// NormalizeFailed counts err towards each of its categories.
func (t *Telemetry) NormalizeFailed(err error) {
	for _, c := range tuple.Categories(err) {
		t.m.NormalizeFailures.WithLabelValues(c).Inc()
	}
}

func (t *Telemetry) TupleNormalized(ct types.ConnTuple) {
	f, ok := ct.Metadata.Family()
	if !ok {
		return
	}
	t.m.Tuples.WithLabelValues(ct.Protocol().String(), f.String()).Inc()
}

func (t *Telemetry) SetConnections(n int) {
	t.m.Connections.Set(float64(n))
}

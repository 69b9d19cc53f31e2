package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

const metricsNamespace = "tapecalc"

// Metrics counts bot traffic on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	keyPresses     *prometheus.CounterVec
	lockouts       prometheus.Counter
	sessionsOpened prometheus.Counter
	sessionsLost   prometheus.Counter
	snapshots      *prometheus.CounterVec
	restores       prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		keyPresses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "key_presses_total",
			Help:      "Keys pressed, by key and result.",
		}, []string{"key", "result"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "engine_lockouts_total",
			Help:      "Times an engine entered the error state.",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_opened_total",
			Help:      "Sessions opened with /open.",
		}),
		sessionsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_expired_total",
			Help:      "Updates that referred to an expired session.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "snapshots_saved_total",
			Help:      "Tape snapshots written to the archive, by kind.",
		}, []string{"kind"}),
		restores: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "snapshots_restored_total",
			Help:      "Tape snapshots restored from the archive.",
		}),
	}
	m.registry.MustRegister(
		m.keyPresses,
		m.lockouts,
		m.sessionsOpened,
		m.sessionsLost,
		m.snapshots,
		m.restores,
	)
	return m
}

// keyResult buckets a PressKey error into a label value.
func keyResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, calc.ErrDivisionByZero):
		return "division_by_zero"
	case errors.Is(err, calc.ErrDomain):
		return "domain"
	case errors.Is(err, calc.ErrUnsupported):
		return "unsupported"
	default:
		return "error"
	}
}

func (m *Metrics) ObserveKey(k calc.Key, err error) {
	m.keyPresses.WithLabelValues(k.String(), keyResult(err)).Inc()
}

func (m *Metrics) SessionOpened() { m.sessionsOpened.Inc() }

func (m *Metrics) SessionExpired() { m.sessionsLost.Inc() }

func (m *Metrics) SnapshotSaved(kind ArchiveKind) {
	m.snapshots.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) SnapshotRestored() { m.restores.Inc() }

// Observer returns an engine observer that counts lockouts.
func (m *Metrics) Observer() calc.Observer {
	return calc.ObserverFuncs{
		OnError: func(string) { m.lockouts.Inc() },
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Summary renders every counter as "name value" lines, summed over labels.
func (m *Metrics) Summary() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, family := range families {
		var total float64
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		fmt.Fprintf(&b, "%s %g\n", strings.TrimPrefix(family.GetName(), metricsNamespace+"_"), total)
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server", "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

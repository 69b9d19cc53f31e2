package main

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

func TestMetrics_ObserveKey(t *testing.T) {
	m := NewMetrics()
	m.ObserveKey(calc.KeyAdd, nil)
	m.ObserveKey(calc.KeyAdd, nil)
	m.ObserveKey(calc.KeyDiv, fmt.Errorf("wrapped: %w", calc.ErrDivisionByZero))
	m.ObserveKey(calc.KeySqrt, calc.ErrDomain)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.keyPresses.WithLabelValues("+", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.keyPresses.WithLabelValues("÷", "division_by_zero")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.keyPresses.WithLabelValues("√", "domain")))
}

func TestMetrics_ObserverCountsLockouts(t *testing.T) {
	m := NewMetrics()
	e := calc.New(calc.WithObserver(m.Observer()))
	for _, k := range []calc.Key{calc.Key5, calc.KeyDiv, calc.Key0, calc.KeyEquals} {
		_ = e.PressKey(k)
	}
	require.True(t, e.Locked())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockouts))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.SessionOpened()
	m.SnapshotSaved(ArchiveAuto)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tapecalc_sessions_opened_total 1")
	assert.Contains(t, string(body), `tapecalc_snapshots_saved_total{kind="auto"} 1`)

	summary, err := m.Summary()
	require.NoError(t, err)
	assert.Contains(t, summary, "sessions_opened_total 1")
}

package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersExposed(t *testing.T) {
	t.Parallel()

	m := New()
	m.SignalsTotal.WithLabelValues("BTC_USD").Inc()
	m.DecisionsTotal.WithLabelValues("risk_approved").Inc()
	m.DecisionsTotal.WithLabelValues("risk_reject:max_positions").Add(2)
	m.FillsTotal.WithLabelValues("BTC_USD", "buy").Inc()
	m.LiquidationsTotal.WithLabelValues("liquidation:end_of_run").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `signals_total{symbol="BTC_USD"} 1`)
	assert.Contains(t, body, `decisions_total{reason="risk_reject:max_positions"} 2`)
	assert.Contains(t, body, `fills_total{side="buy",symbol="BTC_USD"} 1`)
	assert.Contains(t, body, `liquidations_total{reason="liquidation:end_of_run"} 1`)
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	t.Parallel()

	// Two runners in one process each build their own registry.
	a := New()
	b := New()
	a.SignalsTotal.WithLabelValues("X").Inc()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.NotContains(t, rec.Body.String(), `symbol="X"`)
}

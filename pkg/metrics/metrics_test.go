package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	m := New()

	m.ObserveSubmit()
	m.ObserveSubmitDuration(5 * time.Microsecond)
	m.ObserveFill(25)
	m.ObserveFill(75)
	m.ObserveSelfTrade()

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.ordersSubmitted), 1e-9)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.fillsTotal), 1e-9)
	assert.InDelta(t, 100.0, testutil.ToFloat64(m.volumeTraded), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.selfTradesPrevented), 1e-9)
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.ObserveFill(10)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "matchbook_fills_total")
	assert.Contains(t, rec.Body.String(), "matchbook_volume_traded_total")
}

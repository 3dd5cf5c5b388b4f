package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/campus-admin-api/pkg/errors"
)

func TestMetricsServiceCountsAuthOutcomes(t *testing.T) {
	m := NewMetricsService()
	m.RecordAuthOutcome(OutcomeRotated)
	m.RecordAuthOutcome(OutcomeRotated)
	m.RecordAuthOutcome(appErrors.ErrDeviceMismatch.Code)
	m.AddSessionsPruned(3)
	m.AddSessionsPruned(0)
	m.RecordAuditFallback()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authOutcomes.WithLabelValues(OutcomeRotated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authOutcomes.WithLabelValues(appErrors.ErrDeviceMismatch.Code)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessionsPruned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditFallbacks))
}

func TestMetricsServiceCacheHitRatio(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)

	assert.Equal(t, 0.75, testutil.ToFloat64(m.cacheHitRatio))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.RecordAuthOutcome(OutcomeLogin)
		m.AddSessionsPruned(1)
		m.RecordAuditFallback()
		m.RecordCacheOperation(true, time.Millisecond)
		m.ObserveCacheWrite(time.Millisecond)
		m.ObserveHTTPRequest("GET", "/health", 200, time.Millisecond)
	})
	assert.Nil(t, m.Registry())
}

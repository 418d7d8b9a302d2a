package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/taxflow/internal/model"
)

func TestObserveTransition(t *testing.T) {
	m := New()

	m.ObserveTransition("dossier.pay", nil)
	m.ObserveTransition("dossier.pay", nil)
	m.ObserveTransition("dossier.pay", model.ErrDossierNotFound)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("dossier", "dossier.pay", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("dossier", "dossier.pay", "not_found")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransition("dossier.pay", nil)
		m.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	})
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "forbidden", Outcome(model.NewError(model.KindForbidden, "no")))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ObserveTransition("message.send", nil)
	m.ObserveRequest(http.MethodPost, "/api/messages", http.StatusCreated, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `taxflow_transitions_total{entity="message",operation="message.send",outcome="ok"} 1`)
	assert.Contains(t, body, "taxflow_http_request_duration_seconds")
}

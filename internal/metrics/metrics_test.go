package metrics

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncrementRegistration("registered")
	m.IncrementRegistration("registered")
	m.IncrementRegistration("already_registered")
	m.IncrementDecision("accepted")
	m.ObserveStoreRPC("Get", "OK", time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `authledger_registrations_total{outcome="registered"} 2`)
	assert.Contains(t, body, `authledger_registrations_total{outcome="already_registered"} 1`)
	assert.Contains(t, body, `authledger_auth_decisions_total{result="accepted"} 1`)
	assert.Contains(t, body, `authledger_store_rpcs_total{code="OK",method="Get"} 1`)
	assert.Contains(t, body, `authledger_store_rpc_duration_seconds_count{method="Get"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncrementRegistration("registered")
	m.IncrementDecision("accepted")
	m.ObserveStoreRPC("Get", "OK", time.Millisecond)
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.IncrementDecision("accepted")
	assert.NotContains(t, scrape(t, b), `authledger_auth_decisions_total{result="accepted"}`)

	families, err := a.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.IncrementDecision("rejected_bad_signature")

	path := filepath.Join(t.TempDir(), "authledger.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `authledger_auth_decisions_total{result="rejected_bad_signature"} 1`)
}

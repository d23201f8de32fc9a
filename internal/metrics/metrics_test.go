package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.LinesIngested("udp", 3)
	m.LinesIngested("udp", 2)
	m.LinesDispatched(4)
	m.Flushed("overflow")
	m.SetSourcesActive(2)
	m.SourceRemoved()
	m.ObserveDispatch(time.Millisecond)
	m.HubDropped(1)

	require.Equal(t, 5.0, testutil.ToFloat64(m.linesIngested.WithLabelValues("udp")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.linesDispatched))
	require.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues("overflow")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.sourcesActive))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sourcesRemoved))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.LinesIngested("x", 1)
	m.LinesDispatched(1)
	m.Flushed("newline")
	m.SetSourcesActive(1)
	m.SourceRemoved()
	m.ObserveDispatch(time.Second)
	m.HubDropped(1)
	require.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 404, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.LinesDispatched(7)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "dbgview_lines_dispatched_total 7")
}

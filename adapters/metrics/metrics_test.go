// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/reactorhost/control"
)

func TestMetricsEndpointExposesCounters(t *testing.T) {
	sink := NewSink()
	sink.ConnectionOpened()
	sink.BytesRead(128)

	probes := control.NewProbes()
	srv := NewAdminServer("127.0.0.1:0", sink, probes)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "reactorhost_connections_total 1")
	require.Contains(t, rec.Body.String(), "reactorhost_bytes_in_total 128")
}

func TestDebugEndpointDumpsProbes(t *testing.T) {
	sink := NewSink()
	probes := control.NewProbes()
	probes.RegisterProbe("reactor_conns", func() any { return 3 })

	srv := NewAdminServer("127.0.0.1:0", sink, probes)
	req := httptest.NewRequest(http.MethodGet, "/debug", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"reactor_conns":3}`, rec.Body.String())
}

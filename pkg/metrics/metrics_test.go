package metrics

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)

	m.QueriesTotal.WithLabelValues("match").Inc()
	m.QueriesTotal.WithLabelValues("match").Inc()
	m.RecordsInsertedTotal.WithLabelValues("loader").Add(3)
	m.IndexNodes.Set(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("match")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsInsertedTotal.WithLabelValues("loader")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.IndexNodes))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "hashtree_queries_total")
	assert.Contains(t, names, "hashtree_nodes")
}

func TestNewWithRegisterer_Twice(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegisterer(prometheus.NewRegistry())
		NewWithRegisterer(prometheus.NewRegistry())
	})
}

func TestHandler_ServesDefaultRegistry(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStartServer_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	_, err = StartServer(port)
	assert.Error(t, err)
}

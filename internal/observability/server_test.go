package observability

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rbright/inkwell/internal/capture"
	"github.com/rbright/inkwell/internal/fsm"
	"github.com/rbright/inkwell/internal/metrics"
	"github.com/stretchr/testify/require"
)

func TestHandlerEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SessionOpened()

	snap := capture.Snapshot{
		State:       capture.State{Phase: fsm.PhaseListening},
		IsListening: true,
		Transcript:  "draft text",
		IsOnline:    true,
	}
	srv := httptest.NewServer(Handler(reg, func() capture.Snapshot { return snap }))
	t.Cleanup(srv.Close)

	body := get(t, srv.URL+"/healthz", http.StatusOK)
	require.Equal(t, "ok", body)

	body = get(t, srv.URL+"/metrics", http.StatusOK)
	require.Contains(t, body, "inkwell_sessions_opened_total 1")

	body = get(t, srv.URL+"/status", http.StatusOK)
	var got capture.Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Equal(t, snap, got)
}

func TestStatusWithoutSource(t *testing.T) {
	srv := httptest.NewServer(Handler(prometheus.NewRegistry(), nil))
	t.Cleanup(srv.Close)

	get(t, srv.URL+"/status", http.StatusServiceUnavailable)
}

func TestServeStopsOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := NewServer(listener.Addr().String(), prometheus.NewRegistry(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	get(t, "http://"+listener.Addr().String()+"/healthz", http.StatusOK)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func get(t *testing.T, url string, wantStatus int) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

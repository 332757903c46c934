package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bit2swaz/salesflood/internal/checkpoint"
	"github.com/bit2swaz/salesflood/internal/injector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	stats injector.Stats
}

func (s *stubSource) Stats() injector.Stats { return s.stats }
func (s *stubSource) Connected() bool { return s.stats.Connected }

func TestHealth(t *testing.T) {
	src := &stubSource{}
	router := NewServer(src, ":0", nil).Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	src.stats.Connected = true
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatus(t *testing.T) {
	src := &stubSource{stats: injector.Stats{
		RunID:       "run-1",
		Connected:   true,
		Inserted:    12,
		Failed:      1,
		Reconnects:  1,
		LastProduct: "Duna",
		Totals:      checkpoint.Totals{Inserted: 112, Failed: 3, Reconnects: 2},
	}}
	router := NewServer(src, ":0", nil).Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got injector.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, src.stats, got)
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewServer(&stubSource{}, ":0", nil).Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestStartStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	srv := NewServer(&stubSource{stats: injector.Stats{Connected: true}}, addr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("admin server did not stop")
	}
}

func TestListenReportsBusyAddress(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	srv := NewServer(&stubSource{}, busy.Addr().String(), nil)
	assert.Error(t, srv.Listen())
	assert.Error(t, srv.Start(context.Background()), "Start fails the same way without serving")
}

func TestStartServesOnBoundListener(t *testing.T) {
	srv := NewServer(&stubSource{stats: injector.Stats{Connected: true}}, "127.0.0.1:0", nil)
	require.NoError(t, srv.Listen())
	addr := srv.Addr()
	assert.NotEqual(t, "127.0.0.1:0", addr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err, "the listener accepts before Start begins serving")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("admin server did not stop")
	}
}

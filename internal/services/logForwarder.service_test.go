package services

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"nexus/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	path    string
	query   string
	headers http.Header
	lines   []map[string]any
}

func newVictoriaLogsStub(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()

	var mu sync.Mutex
	var requests []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reader, err := gzip.NewReader(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer reader.Close()

		captured := capturedRequest{path: r.URL.Path, query: r.URL.RawQuery, headers: r.Header.Clone()}
		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			var line map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &line); err == nil {
				captured.lines = append(captured.lines, line)
			}
		}

		mu.Lock()
		requests = append(requests, captured)
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), requests...)
	}
}

func TestLogForwarderService_Disabled(t *testing.T) {
	forwarder := NewLogForwarderService("  ")
	assert.False(t, forwarder.IsEnabled())

	sent, err := forwarder.Forward(context.Background(), []types.TelemetryEvent{
		{Kind: types.LogKindErrors, Record: json.RawMessage(`{"message":"boom"}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestLogForwarderService_Forward(t *testing.T) {
	server, requests := newVictoriaLogsStub(t, http.StatusNoContent)
	forwarder := NewLogForwarderService(server.URL + "/")
	require.True(t, forwarder.IsEnabled())

	sent, err := forwarder.Forward(context.Background(), []types.TelemetryEvent{
		{Kind: types.LogKindErrors, Record: json.RawMessage(`{"message":"boom","receivedAt":"2025-01-02T03:04:05.000Z"}`)},
		{Kind: types.LogKindVitals, Record: json.RawMessage(`{"name":"LCP","value":4500,"rating":"poor"}`)},
		{Kind: types.LogKindVitals, Record: json.RawMessage(`[1,2,3]`)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	got := requests()
	require.Len(t, got, 1)
	assert.Equal(t, "/insert/jsonline", got[0].path)
	assert.Contains(t, got[0].query, "_stream_fields=source%2Capp%2Ckind")
	assert.Equal(t, "gzip", got[0].headers.Get("Content-Encoding"))

	require.Len(t, got[0].lines, 2)
	first := got[0].lines[0]
	assert.Equal(t, "boom", first["_msg"])
	assert.Equal(t, "2025-01-02T03:04:05.000Z", first["_time"])
	assert.Equal(t, "errors", first["kind"])
	assert.Equal(t, FORWARD_APP_NAME, first["app"])

	second := got[0].lines[1]
	assert.Equal(t, "LCP=4500 (poor)", second["_msg"])
	assert.NotContains(t, second, "_time")
}

func TestLogForwarderService_ForwardFailure(t *testing.T) {
	server, _ := newVictoriaLogsStub(t, http.StatusInternalServerError)
	forwarder := NewLogForwarderService(server.URL)

	sent, err := forwarder.Forward(context.Background(), []types.TelemetryEvent{
		{Kind: types.LogKindErrors, Record: json.RawMessage(`{"message":"boom"}`)},
	})
	assert.Error(t, err)
	assert.Equal(t, 0, sent)
}

func TestLogForwarderService_Run(t *testing.T) {
	server, requests := newVictoriaLogsStub(t, http.StatusOK)
	forwarder := NewLogForwarderService(server.URL)
	forwarder.batchSize = 2
	forwarder.flushInterval = time.Hour

	events := make(chan types.TelemetryEvent, 3)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		forwarder.Run(ctx, events)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		events <- types.TelemetryEvent{Kind: types.LogKindErrors, Record: json.RawMessage(`{"message":"boom"}`)}
	}

	assert.Eventually(t, func() bool {
		return len(requests()) == 1
	}, time.Second, 10*time.Millisecond, "a full batch is sent immediately")
	assert.Eventually(t, func() bool {
		return len(events) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not stop")
	}

	got := requests()
	require.Len(t, got, 2, "the partial batch is flushed on shutdown")
	assert.Len(t, got[0].lines, 2)
	assert.Len(t, got[1].lines, 1)
}

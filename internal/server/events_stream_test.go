package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/events"
)

// streamFrames yields the SSE data lines of a response body
func streamFrames(resp *http.Response) <-chan string {
	frames := make(chan string, 16)
	go func() {
		defer close(frames)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				frames <- strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	return frames
}

func readFrames(t *testing.T, frames <-chan string, n int) []string {
	t.Helper()
	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case f, ok := <-frames:
			if !ok {
				t.Fatalf("stream closed after %d of %d frames", len(got), n)
			}
			got = append(got, f)
		case <-timeout:
			t.Fatalf("timed out after %d of %d frames", len(got), n)
		}
	}
	return got
}

func TestEventsStreamHandler(t *testing.T) {
	manager := events.NewManager(testLogger())
	h := NewEventsStreamHandler(manager, testLogger())
	h.heartbeat = time.Hour

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?types=cycle_started,CYCLE_COMPLETED", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	stream := streamFrames(resp)
	frames := readFrames(t, stream, 1)
	assert.JSONEq(t, `{"type":"connected"}`, frames[0])

	manager.Emit("rebalancing", &events.CycleStartedData{CycleID: "c-1", Trigger: "api"})
	manager.Emit("rebalancing", &events.RatingsFetchedData{CycleID: "c-1", Total: 3, Admitted: 3})
	manager.Emit("rebalancing", &events.CycleCompletedData{CycleID: "c-1"})

	frames = readFrames(t, stream, 2)
	assert.Contains(t, frames[0], `"type":"CYCLE_STARTED"`)
	assert.Contains(t, frames[1], `"type":"CYCLE_COMPLETED"`)
	assert.Contains(t, frames[1], `"module":"rebalancing"`)
}

func TestEventsStreamHandler_Heartbeat(t *testing.T) {
	h := NewEventsStreamHandler(events.NewManager(testLogger()), testLogger())
	h.heartbeat = 20 * time.Millisecond

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	frames := readFrames(t, streamFrames(resp), 2)
	assert.Contains(t, frames[1], `"type":"heartbeat"`)
}

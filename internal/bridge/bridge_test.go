package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillbridge/skillbridge/internal/config"
	"github.com/skillbridge/skillbridge/internal/host"
	"github.com/skillbridge/skillbridge/internal/registry"
)

// serveAsync runs one request against the bridge handler on its own
// goroutine, standing in for the per-request dispatcher task.
func serveAsync(b *Bridge, req *http.Request) (*httptest.ResponseRecorder, chan struct{}) {
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	handler := b.Handler()
	go func() {
		defer close(done)
		handler.ServeHTTP(rec, req)
	}()
	return rec, done
}

func waitForQueued(t *testing.T, q *Queue, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return q.Len() >= n }, 2*time.Second, time.Millisecond)
}

func TestHandlerOversizedBodyNeverTouchesQueue(t *testing.T) {
	var executions atomic.Int64

	cfg := config.Default().Server
	cfg.BodyLimit = 64

	table := registry.NewTable()
	table.Register("echo", "", func(ctx context.Context, argsJSON string) (string, error) {
		executions.Add(1)
		return argsJSON, nil
	})

	b := New(cfg, "test", table, &host.ManualHost{})
	b.running.Store(true)

	big := strings.Repeat("x", 200)
	req := httptest.NewRequest(http.MethodPost, "/skill/echo", strings.NewReader(big))
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, 0, b.Queue().Len())
	require.EqualValues(t, 0, executions.Load())

	var e errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	require.Equal(t, "BodyTooLarge", e.Type)
}

func TestHandlerTimeoutYields504AndLateCompletionStillCounts(t *testing.T) {
	h := &host.ManualHost{}
	cfg := config.Default().Server
	cfg.DispatchTimeout = 50 * time.Millisecond

	b := New(cfg, "test", registry.NewDemoTable(), h)
	h.RegisterTick(b.consumeTick)
	b.running.Store(true)

	req := httptest.NewRequest(http.MethodPost, "/skill/echo", strings.NewReader(`{"msg":"late"}`))
	rec, done := serveAsync(b, req)

	// No tick happens, so the dispatcher times out unilaterally.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not time out")
	}
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var e errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	require.Equal(t, "GatewayTimeout", e.Type)

	// The consumer eventually processes the abandoned job; its work
	// happened and the counter reflects it.
	require.EqualValues(t, 0, b.TotalProcessed())
	h.Tick()
	require.EqualValues(t, 1, b.TotalProcessed())
}

func TestHandlerRejectsWhenStopped(t *testing.T) {
	b := New(config.Default().Server, "test", registry.NewDemoTable(), &host.ManualHost{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerSetsStandardHeaders(t *testing.T) {
	h := &host.ManualHost{}
	b := New(config.Default().Server, "test", registry.NewDemoTable(), h)
	h.RegisterTick(b.consumeTick)
	b.running.Store(true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("User-Agent", "python-requests/2.31")
	rec, done := serveAsync(b, req)

	waitForQueued(t, b.Queue(), 1)
	h.Tick()
	<-done

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	require.Equal(t, "Python", rec.Header().Get(AgentHeader))
}

func TestConcurrentRequestsAllReceiveExactlyOneResponse(t *testing.T) {
	h := &host.ManualHost{}
	b := New(config.Default().Server, "test", registry.NewDemoTable(), h)
	h.RegisterTick(b.consumeTick)
	b.running.Store(true)

	const n = 60

	type result struct {
		rec  *httptest.ResponseRecorder
		done chan struct{}
	}
	results := make([]result, 0, n)
	for i := 0; i < n; i++ {
		req := httptest.NewRequest(http.MethodPost, "/skill/ping", strings.NewReader(`{}`))
		rec, done := serveAsync(b, req)
		results = append(results, result{rec, done})
	}

	// Tick until the batch drain (20 per tick) has consumed everything.
	require.Eventually(t, func() bool {
		h.Tick()
		return b.TotalProcessed() == int64(n)
	}, 5*time.Second, 5*time.Millisecond)

	seen := map[string]bool{}
	for _, r := range results {
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Fatal("request never completed")
		}
		require.Equal(t, http.StatusOK, r.rec.Code)
		id := r.rec.Header().Get(RequestIDHeader)
		require.NotEmpty(t, id)
		require.False(t, seen[id], "duplicate response for request id %s", id)
		seen[id] = true
	}
	require.Len(t, seen, n)
}

func TestStartStopLifecycle(t *testing.T) {
	lh := host.NewLoopHost(2 * time.Millisecond)
	lh.Run()
	defer lh.Stop()

	table := registry.NewTable()
	table.Register("echo", "", func(ctx context.Context, argsJSON string) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return argsJSON, nil
	})

	b := New(config.Default().Server, "9.9.9", table, lh)
	require.NoError(t, b.Start(0))
	defer b.Stop()

	require.True(t, b.IsRunning())
	port := b.Port()
	require.GreaterOrEqual(t, port, PortRangeStart)
	require.LessOrEqual(t, port, PortRangeEnd)

	// Starting again while running fails.
	require.Error(t, b.Start(0))

	url := fmt.Sprintf("http://127.0.0.1:%d/skill/echo", port)
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(`{"msg":"hi"}`))
	require.NoError(t, err)
	req.Header.Set("User-Agent", "Claude-Code/2.0")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"msg":"hi"}`, string(body))
	require.Equal(t, "Claude", resp.Header.Get(AgentHeader))
	require.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	b.Stop()
	require.False(t, b.IsRunning())
	require.Equal(t, 0, b.Port())

	// The port is released and bindable again.
	require.NoError(t, b.Start(port))
	b.Stop()
}

// Stop can win the race against the freshly launched accept-loop
// goroutines; a tight start/stop cycle must never leave them reading
// torn-down server state.
func TestRapidStartStopCycles(t *testing.T) {
	b := New(config.Default().Server, "test", registry.NewDemoTable(), &host.ManualHost{})

	for i := 0; i < 200; i++ {
		require.NoError(t, b.Start(0))
		b.Stop()
	}
	require.False(t, b.IsRunning())
}

func TestTotalReceivedCountsEnqueuedJobs(t *testing.T) {
	b, _ := newTestBridge(t, nil)
	b.running.Store(true)
	require.Zero(t, b.TotalReceived())

	// An oversized body is rejected before the queue and must not count.
	limited, _ := newTestBridge(t, func(c *config.ServerConfig) { c.BodyLimit = 8 })
	limited.running.Store(true)
	req := httptest.NewRequest(http.MethodPost, "/skill/echo", strings.NewReader(strings.Repeat("x", 64)))
	rec := httptest.NewRecorder()
	limited.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Zero(t, limited.TotalReceived())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/skill/echo", strings.NewReader(`{}`))
		rec, done := serveAsync(b, req)
		waitForQueued(t, b.Queue(), 1)
		b.consumeTick()
		<-done
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, int64(3), b.TotalReceived())
	require.Equal(t, int64(3), b.TotalProcessed())
}

func TestStopDrainsQueuedJobsWith503(t *testing.T) {
	h := &host.ManualHost{} // never ticks: jobs stay queued
	b := New(config.Default().Server, "test", registry.NewDemoTable(), h)
	require.NoError(t, b.Start(0))

	url := fmt.Sprintf("http://127.0.0.1:%d/skill/echo", b.Port())

	type outcome struct {
		status int
		err    error
	}
	results := make(chan outcome, 3)
	for i := 0; i < 3; i++ {
		go func() {
			resp, err := http.Post(url, "application/json", strings.NewReader(`{}`))
			if err != nil {
				results <- outcome{err: err}
				return
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			results <- outcome{status: resp.StatusCode}
		}()
	}

	waitForQueued(t, b.Queue(), 3)
	b.Stop()

	for i := 0; i < 3; i++ {
		res := <-results
		require.NoError(t, res.err)
		require.Equal(t, http.StatusServiceUnavailable, res.status)
	}
}

func TestPumpNudgesHostWhenJobsPending(t *testing.T) {
	h := &host.ManualHost{}
	b := New(config.Default().Server, "test", registry.NewDemoTable(), h)
	b.running.Store(true)
	b.queue.Enqueue(NewJob(http.MethodGet, "/health", nil, "Test"))

	stop := make(chan struct{})
	go b.runPump(stop)
	defer close(stop)

	require.Eventually(t, func() bool { return h.Nudges() > 0 }, 2*time.Second, 10*time.Millisecond)
}

// Package bridge implements the request bridge: an HTTP listener whose
// requests become queued jobs, a consumer that executes them on the host
// main thread, and per-request dispatchers that deliver results back to
// the waiting connections. Three goroutine classes touch a job, in
// strict hand-off order: listener (create + enqueue), consumer (sole
// writer while processing), dispatcher (read after the completion
// signal). The shared queue is the only mutex-guarded structure.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/skillbridge/skillbridge/internal/config"
	"github.com/skillbridge/skillbridge/internal/host"
	"github.com/skillbridge/skillbridge/internal/registry"
)

// ServiceName identifies the bridge in health payloads and logs.
const ServiceName = "skillbridge"

// Bridge is one explicit server instance owning its queue, counters and
// configuration. Nothing here is package-global: embedding applications
// construct a Bridge and pass it by reference.
type Bridge struct {
	cfg      config.ServerConfig
	version  string
	registry registry.Registry
	sched    host.Host

	queue   *Queue
	limiter *rateWindow

	running        atomic.Bool
	boundPort      atomic.Int64
	totalReceived  atomic.Int64
	totalProcessed atomic.Int64

	// onHeartbeat is invoked from the consumer after a batch when the
	// heartbeat interval elapsed. Wired by the lifecycle manager.
	onHeartbeat func()
	// lastHeartbeat is consumer-thread state, like the rate window.
	lastHeartbeat time.Time

	mu         sync.Mutex
	httpServer *http.Server
	bound      *boundListeners
	pumpStop   chan struct{}

	// clock is injectable for rate-limit tests.
	clock func() time.Time

	// runID distinguishes this process run in the discovery registry.
	runID string

	registerOnce sync.Once
}

// New constructs a bridge. The consumer tick is registered with the host
// on first Start, never earlier, so a host can construct bridges it may
// never run.
func New(cfg config.ServerConfig, version string, reg registry.Registry, sched host.Host) *Bridge {
	b := &Bridge{
		cfg:      cfg,
		version:  version,
		registry: reg,
		sched:    sched,
		queue:    NewQueue(),
		clock:    time.Now,
		runID:    uuid.New().String(),
	}
	b.limiter = newRateWindow(cfg.RateLimitPerSecond, func() time.Time { return b.clock() })
	return b
}

// SetHeartbeat wires the advisory heartbeat callback invoked from the
// consumer thread. Must be set before Start.
func (b *Bridge) SetHeartbeat(fn func()) {
	b.onHeartbeat = fn
}

// IsRunning reports whether the bridge is serving.
func (b *Bridge) IsRunning() bool {
	return b.running.Load()
}

// Port returns the bound port, or 0 when stopped.
func (b *Bridge) Port() int {
	return int(b.boundPort.Load())
}

// TotalProcessed returns the lifetime processed-job counter.
func (b *Bridge) TotalProcessed() int64 {
	return b.totalProcessed.Load()
}

// TotalReceived returns the lifetime enqueued-job counter. Received and
// processed diverge while jobs wait in the queue.
func (b *Bridge) TotalReceived() int64 {
	return b.totalReceived.Load()
}

// SetTotalProcessed seeds the processed counter, used when restoring
// persisted state after a host reload.
func (b *Bridge) SetTotalProcessed(n int64) {
	b.totalProcessed.Store(n)
}

// RunID identifies this process run in the discovery registry.
func (b *Bridge) RunID() string {
	return b.runID
}

// Start negotiates a port, binds the loopback listeners and begins
// serving. preferredPort zero means automatic selection within the
// supported range. Start does not block; transport runs on its own
// goroutines and jobs execute only when the host ticks the consumer.
func (b *Bridge) Start(preferredPort int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running.Load() {
		return fmt.Errorf("bridge already running on port %d", b.Port())
	}

	bound, err := negotiatePort(preferredPort)
	if err != nil {
		return err
	}

	b.registerOnce.Do(func() {
		b.sched.RegisterTick(b.consumeTick)
	})

	b.queue.Reopen()
	b.bound = bound
	b.boundPort.Store(int64(bound.port))
	b.httpServer = &http.Server{
		Handler:     b.router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	b.pumpStop = make(chan struct{})
	b.running.Store(true)

	// Capture the server locally: Stop clears b.httpServer under the
	// lock, and these goroutines may start after that.
	srv := b.httpServer
	for _, l := range bound.listeners {
		go b.serve(srv, l)
	}
	go b.runPump(b.pumpStop)
	go b.selfTest(bound.port)

	return nil
}

// Stop halts serving. Pending jobs are drained and completed with 503 so
// no waiting dispatcher is stranded until its timeout; in-flight
// responses are given a short grace period to flush.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running.CompareAndSwap(true, false) {
		return
	}

	close(b.pumpStop)

	for _, job := range b.queue.Close() {
		job.Complete(http.StatusServiceUnavailable, errorJSON("server shutting down", "Shutdown", ""))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.httpServer.Shutdown(ctx); err != nil {
		_ = b.httpServer.Close()
	}
	b.bound.closeAll()

	b.boundPort.Store(0)
	b.httpServer = nil
	b.bound = nil
}

// serve runs one accept loop. Errors here are expected during an
// intentional shutdown and there is no safe logging channel off the host
// thread, so everything is swallowed.
func (b *Bridge) serve(srv *http.Server, l net.Listener) {
	_ = srv.Serve(l)
}

func (b *Bridge) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(b.recoverer)
	r.Handle("/*", http.HandlerFunc(b.handleRequest))
	return r
}

// recoverer keeps a panicking request from killing its connection
// silently. The listener side cannot log, so the panic is reduced to a
// structured 500.
func (b *Bridge) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeBridgeResponse(w, "", "Unknown", http.StatusInternalServerError,
					errorJSON(fmt.Sprintf("internal error: %v", rec), "Panic", ""))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// handleRequest is the producer plus dispatcher for one request: parse
// bytes, enqueue a job, then wait for the completion signal or time out.
// It performs no host-API calls and no logging.
func (b *Bridge) handleRequest(w http.ResponseWriter, r *http.Request) {
	agent := detectAgent(r.Header)

	var body []byte
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		r.Body = http.MaxBytesReader(w, r.Body, b.cfg.BodyLimit)
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				// Oversized bodies never touch the queue.
				writeBridgeResponse(w, "", agent, http.StatusRequestEntityTooLarge,
					errorJSON(fmt.Sprintf("request body exceeds %d bytes", b.cfg.BodyLimit), "BodyTooLarge", ""))
				return
			}
			writeBridgeResponse(w, "", agent, http.StatusBadRequest,
				errorJSON("failed to read request body", "BadRequest", ""))
			return
		}
	}

	job := NewJob(r.Method, r.URL.Path, body, agent)

	if !b.running.Load() || !b.queue.Enqueue(job) {
		writeBridgeResponse(w, job.ID, agent, http.StatusServiceUnavailable,
			errorJSON("server is not running", "Shutdown", ""))
		return
	}
	b.totalReceived.Add(1)

	b.dispatch(w, job)
}

// Handler exposes the router for in-process tests.
func (b *Bridge) Handler() http.Handler {
	return b.router()
}

// Queue exposes the job queue to the keep-alive pump and tests.
func (b *Bridge) Queue() *Queue {
	return b.queue
}

type errorBody struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
	Skill string `json:"skill,omitempty"`
}

func errorJSON(msg, typ, skill string) []byte {
	raw, err := json.Marshal(errorBody{Error: msg, Type: typ, Skill: skill})
	if err != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return raw
}

// errorTypeName reduces a Go error to the bare type name used in the
// structured 500 payload, e.g. "UnknownSkillError".
func errorTypeName(err error) string {
	name := fmt.Sprintf("%T", err)
	name = strings.TrimPrefix(name, "*")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

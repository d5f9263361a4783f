package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/skillbridge/skillbridge/internal/observability"
)

const skillPathPrefix = "/skill/"

// validEndpoints is the surface advertised in 404 responses.
var validEndpoints = []string{
	"GET /",
	"GET /health",
	"GET /skills",
	"POST /skill/{name}",
	"OPTIONS *",
}

// consumeTick is the host tick callback and the only code that executes
// jobs. It drains at most BatchSize jobs per invocation so one tick can
// never starve the host's other periodic work, then emits the advisory
// heartbeat when due. Everything it touches beyond the queue (rate
// window, heartbeat clock) is single-writer state owned by this thread.
func (b *Bridge) consumeTick() {
	if !b.running.Load() {
		return
	}

	batch := b.queue.DequeueBatch(b.cfg.BatchSize)
	for _, job := range batch {
		b.processJob(job)
	}

	if b.onHeartbeat != nil && b.cfg.HeartbeatInterval > 0 {
		now := b.clock()
		if now.Sub(b.lastHeartbeat) >= b.cfg.HeartbeatInterval {
			b.lastHeartbeat = now
			b.onHeartbeat()
		}
	}
}

// processJob routes and executes one job. The terminal status is
// committed in the deferred Complete so every dequeued job terminates
// exactly once even when a handler fails; after Complete the consumer
// never touches the job again.
func (b *Bridge) processJob(job *Job) {
	status := http.StatusInternalServerError
	var body []byte

	defer func() {
		if r := recover(); r != nil {
			status = http.StatusInternalServerError
			body = errorJSON(fmt.Sprintf("internal error: %v", r), "Panic", "")
		}
		job.Complete(status, body)
		b.totalProcessed.Add(1)
	}()

	switch {
	case job.Method == http.MethodOptions:
		// CORS preflight.
		status, body = http.StatusNoContent, nil

	case job.Path == "/" || job.Path == "/health":
		status, body = http.StatusOK, b.healthPayload()

	case job.Path == "/skills" && job.Method == http.MethodGet:
		status, body = http.StatusOK, []byte(b.registry.Manifest())

	case strings.HasPrefix(job.Path, skillPathPrefix) && job.Method == http.MethodPost:
		status, body = b.executeSkill(job)

	default:
		payload := struct {
			Error     string   `json:"error"`
			Endpoints []string `json:"endpoints"`
		}{
			Error:     fmt.Sprintf("no endpoint matches %s %s", job.Method, job.Path),
			Endpoints: validEndpoints,
		}
		raw, _ := json.Marshal(payload)
		status, body = http.StatusNotFound, raw
	}
}

// executeSkill validates the skill name, applies the rate limit and
// invokes the command registry. Registry failures become structured 500s
// so a single failing skill can never break the batch loop.
func (b *Bridge) executeSkill(job *Job) (int, []byte) {
	name := strings.TrimPrefix(job.Path, skillPathPrefix)
	if !validSkillName(name) {
		return http.StatusBadRequest,
			errorJSON("invalid skill name: must be non-empty without path separators", "InvalidSkillName", name)
	}

	if !b.limiter.allow() {
		return http.StatusTooManyRequests,
			errorJSON(fmt.Sprintf("rate limit exceeded: %d requests per second", b.cfg.RateLimitPerSecond),
				"RateLimited", name)
	}

	result, err := b.registry.Execute(context.Background(), name, string(job.Body))
	if err != nil {
		if logger := observability.ServerLogger; logger != nil {
			logger.Warn("Skill execution failed",
				zap.String("skill", name),
				zap.String("request_id", job.ID),
				zap.String("agent", job.Agent),
				zap.Error(err))
		}
		return http.StatusInternalServerError, errorJSON(err.Error(), errorTypeName(err), name)
	}

	if logger := observability.ServerLogger; logger != nil {
		logger.Debug("Skill executed",
			zap.String("skill", name),
			zap.String("request_id", job.ID),
			zap.String("agent", job.Agent))
	}
	return http.StatusOK, []byte(result)
}

// validSkillName rejects empty names and anything that could be read as
// a path: separators, traversal, whitespace.
func validSkillName(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	if strings.ContainsAny(name, "/\\ \t\r\n") {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return true
}

func (b *Bridge) healthPayload() []byte {
	payload := struct {
		Status         string `json:"status"`
		Service        string `json:"service"`
		Version        string `json:"version"`
		ServerRunning  bool   `json:"serverRunning"`
		QueuedRequests int    `json:"queuedRequests"`
		TotalProcessed int64  `json:"totalProcessed"`
		AutoRestart    bool   `json:"autoRestart"`
	}{
		Status:         "ok",
		Service:        ServiceName,
		Version:        b.version,
		ServerRunning:  b.running.Load(),
		QueuedRequests: b.queue.Len(),
		TotalProcessed: b.totalProcessed.Load(),
		AutoRestart:    b.cfg.AutoStart,
	}
	raw, _ := json.Marshal(payload)
	return raw
}

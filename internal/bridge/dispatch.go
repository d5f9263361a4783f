package bridge

import (
	"net/http"
	"strconv"
	"time"
)

// Response headers attached to every reply.
const (
	RequestIDHeader = "X-Request-Id"
)

// dispatch waits for the job's completion signal with a timeout and
// writes the result. On timeout it unilaterally answers 504 without
// cancelling the consumer: the job may still complete later, in which
// case its work happened but the client never sees it. That known
// double-terminal tension is inherited from the protocol, not a bug.
func (b *Bridge) dispatch(w http.ResponseWriter, job *Job) {
	timeout := b.cfg.DispatchTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-job.Done():
		status, body := job.Result()
		writeBridgeResponse(w, job.ID, job.Agent, status, body)
	case <-timer.C:
		msg := "host thread did not respond within " + timeout.String() +
			"; the host may be busy or paused, retry shortly"
		writeBridgeResponse(w, job.ID, job.Agent, http.StatusGatewayTimeout,
			errorJSON(msg, "GatewayTimeout", ""))
	}
}

// writeBridgeResponse writes pre-serialized bytes with the bridge's
// standard header set. Write errors are swallowed: the client is gone
// and the listener side has no logging channel.
func writeBridgeResponse(w http.ResponseWriter, requestID, agent string, status int, body []byte) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, "+AgentHeader)
	if requestID != "" {
		h.Set(RequestIDHeader, requestID)
	}
	if agent != "" {
		h.Set(AgentHeader, agent)
	}

	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one HTTP request in flight across the thread boundary. The
// listener goroutine creates and enqueues it, the consumer is its only
// writer while it is being processed, and the dispatcher goroutine reads
// it after the completion signal fires. Complete freezes the job: after
// the signal no field may be mutated by anyone.
type Job struct {
	ID         string
	Method     string
	Path       string
	Body       []byte
	Agent      string
	EnqueuedAt time.Time

	status   int
	response []byte

	done chan struct{}
	once sync.Once
}

// NewJob builds a queued job with a fresh request id.
func NewJob(method, path string, body []byte, agent string) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Method:     method,
		Path:       path,
		Body:       body,
		Agent:      agent,
		EnqueuedAt: time.Now().UTC(),
		done:       make(chan struct{}),
	}
}

// Complete records the terminal status and body and fires the completion
// signal. Only the first call wins; later calls are ignored, which keeps
// the shutdown drain and the consumer from double-terminating a job.
func (j *Job) Complete(status int, body []byte) {
	j.once.Do(func() {
		j.status = status
		j.response = body
		close(j.done)
	})
}

// Done returns the single-fire completion signal. Exactly one dispatcher
// waits on it.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the terminal status and body. Valid only after Done is
// closed; the channel close orders the field writes before this read.
func (j *Job) Result() (int, []byte) {
	return j.status, j.response
}

// Completed reports whether the job reached a terminal state.
func (j *Job) Completed() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

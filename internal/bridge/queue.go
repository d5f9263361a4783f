package bridge

import "sync"

// Queue is the mutex-guarded FIFO of pending jobs shared between the
// listener goroutines and the consumer. There is no backpressure on
// ingress: the queue grows without bound under sustained overload,
// limited only by the per-request body cap and the per-tick drain batch.
type Queue struct {
	mu     sync.Mutex
	jobs   []*Job
	closed bool
}

// NewQueue returns an open, empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a job. Returns false when the queue is closed, so the
// listener can reject requests racing a shutdown instead of stranding
// them until the dispatcher timeout.
func (q *Queue) Enqueue(job *Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

// DequeueBatch removes and returns up to n jobs in FIFO order.
func (q *Queue) DequeueBatch(n int) []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.jobs) == 0 {
		return nil
	}
	if n > len(q.jobs) {
		n = len(q.jobs)
	}
	batch := q.jobs[:n:n]
	q.jobs = q.jobs[n:]
	return batch
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close marks the queue closed and returns everything still pending, in
// FIFO order. Used by the shutdown path, which completes the returned
// jobs with 503.
func (q *Queue) Close() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	drained := q.jobs
	q.jobs = nil
	return drained
}

// Reopen makes a closed queue accept jobs again after a restart.
func (q *Queue) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
}

// Package worker models the pool of render worker nodes: their HTTP
// client surface, the per-node event stream listener, and the scheduler
// that picks a node for a new job.
package worker

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrNoWorkers is returned when scheduling against an empty pool. A pool
// with zero workers is a deployment error, not a runtime condition to
// route around.
var ErrNoWorkers = errors.New("worker pool is empty: no endpoints configured")

// Worker is the in-process state for one pool member. Endpoint and
// ClientID are immutable after construction; queueRemaining is written
// only by this worker's event listener and read by any dispatching task.
type Worker struct {
	Endpoint string
	ClientID string

	queueRemaining atomic.Int64
	client         *Client
}

// Client returns the HTTP client bound to this worker's endpoint.
func (w *Worker) Client() *Client {
	return w.client
}

// QueueRemaining reports the last gauge value seen on this worker's event
// stream. It is eventually-updated telemetry, not an admission guarantee.
func (w *Worker) QueueRemaining() int64 {
	return w.queueRemaining.Load()
}

// SetQueueRemaining records a new gauge value. Called only by the
// worker's own listener.
func (w *Worker) SetQueueRemaining(n int64) {
	w.queueRemaining.Store(n)
}

// Pool is the read-only-after-startup set of workers.
type Pool struct {
	workers []*Worker
}

// NewPool builds one Worker per endpoint. Each worker gets a random
// client identifier generated once for the process lifetime; the same id
// is reused across stream reconnects.
func NewPool(endpoints []string, requestTimeout time.Duration) *Pool {
	workers := make([]*Worker, 0, len(endpoints))
	for _, ep := range endpoints {
		w := &Worker{
			Endpoint: ep,
			ClientID: uuid.New().String(),
		}
		w.client = NewClient(ep, requestTimeout)
		workers = append(workers, w)
	}
	return &Pool{workers: workers}
}

// Workers returns the pool members in configuration order.
func (p *Pool) Workers() []*Worker {
	return p.workers
}

// Select picks the worker with the minimum queue_remaining gauge, first
// wins on ties. Greedy and stateless: it does not reserve capacity, so two
// near-simultaneous dispatches may land on the same worker before its
// gauge updates.
func (p *Pool) Select() (*Worker, error) {
	if len(p.workers) == 0 {
		return nil, ErrNoWorkers
	}

	best := p.workers[0]
	min := best.QueueRemaining()
	for _, w := range p.workers[1:] {
		if q := w.QueueRemaining(); q < min {
			best = w
			min = q
		}
	}
	return best, nil
}

package chain

import (
	"context"
	"sync"
)

// DepthObserver receives the number of queued jobs after every change.
type DepthObserver interface {
	SetSignerQueueDepth(depth int)
}

type queueJob struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Queue serialises work that touches the signer nonce. Jobs run one at a time
// in submission order; Do fails fast with ErrQueueFull when the buffer is full.
type Queue struct {
	jobs     chan queueJob
	observer DepthObserver

	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}
}

// NewQueue builds a queue holding up to size pending jobs. Call Run to start it.
func NewQueue(size int, observer DepthObserver) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		jobs:     make(chan queueJob, size),
		observer: observer,
		stopped:  make(chan struct{}),
	}
}

// Run processes jobs until ctx is cancelled. Pending jobs fail with ErrQueueClosed.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.stopped)
	for {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.closed = true
			q.mu.Unlock()
			q.drain()
			return
		case job := <-q.jobs:
			q.observe()
			if err := job.ctx.Err(); err != nil {
				job.done <- err
				continue
			}
			job.done <- job.fn(job.ctx)
		}
	}
}

// Do enqueues fn and waits for it to finish or ctx to end. fn receives the
// caller's context.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	job := queueJob{ctx: ctx, fn: fn, done: make(chan error, 1)}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		q.mu.RUnlock()
	default:
		q.mu.RUnlock()
		return ErrQueueFull
	}
	q.observe()

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth reports queued jobs not yet started.
func (q *Queue) Depth() int {
	return len(q.jobs)
}

// Stopped is closed once Run returns.
func (q *Queue) Stopped() <-chan struct{} {
	return q.stopped
}

func (q *Queue) drain() {
	for {
		select {
		case job := <-q.jobs:
			job.done <- ErrQueueClosed
		default:
			q.observe()
			return
		}
	}
}

func (q *Queue) observe() {
	if q.observer != nil {
		q.observer.SetSignerQueueDepth(len(q.jobs))
	}
}

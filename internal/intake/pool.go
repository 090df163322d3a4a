// Package intake throttles how many purchase attempts run against the
// ledger and the commit protocol at once, shielding the durable store from
// a thundering herd. The queue ahead of the workers is bounded: once full,
// submissions are refused immediately instead of growing without limit.
package intake

import (
	"context"
	"sync"

	"github.com/flashmart/seckill/internal/entity"
)

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Pool is a fixed-size worker pool with a bounded submission queue.
type Pool struct {
	tasks chan task
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool starts workers goroutines draining a queue of queueDepth slots.
func NewPool(workers, queueDepth int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = workers
	}

	p := &Pool{tasks: make(chan task, queueDepth)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		// The caller abandoning its wait must not cancel work that already
		// holds a reservation; values (trace ids) still flow through.
		t.done <- t.fn(context.WithoutCancel(t.ctx))
	}
}

// Submit enqueues fn and blocks until it completes. A full queue refuses
// the submission with ErrAdmissionDenied. If ctx expires while waiting, the
// caller gets ctx.Err() but the work may still complete server-side: a
// timeout means "unknown outcome", not ownership of the outcome.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return entity.ErrAdmissionDenied
	}
	select {
	case p.tasks <- t:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		return entity.ErrAdmissionDenied
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting submissions and waits for queued work to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultSize = 4

var ErrPoolClosed = errors.New("worker pool closed")

// Job is a unit of background work. A returned error is logged, not propagated.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool runs jobs on a fixed number of goroutines. Submission does not wait for
// the job, only for queue space.
type Pool struct {
	jobs   chan Job
	logger *zap.Logger
	eg     *errgroup.Group
	ctx    context.Context

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func New(ctx context.Context, size, queue int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if queue < 0 {
		queue = 0
	}
	eg, egCtx := errgroup.WithContext(context.WithoutCancel(ctx))
	p := &Pool{
		jobs:   make(chan Job, queue),
		logger: zap.L(),
		eg:     eg,
		ctx:    egCtx,
	}
	for i := 0; i < size; i++ {
		eg.Go(p.work)
	}
	return p
}

func (p *Pool) work() error {
	for job := range p.jobs {
		if err := p.safeRun(job); err != nil {
			p.logger.Error("background job failed", zap.String("job", job.Name), zap.Error(err))
		}
	}
	return nil
}

func (p *Pool) safeRun(job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return job.Run(p.ctx)
}

// Submit queues a job. It blocks only while the queue is full.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, runs what is queued and waits for the workers.
func (p *Pool) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
	return p.eg.Wait()
}

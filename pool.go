package assay

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var errPanicked = errors.New("audit panicked")

// Completion is emitted exactly once per submission.
type Completion struct {
	Path   string
	Stage  Stage // StageDone, StageFailed or StageCancelled
	Result *AnalysisResult
	Err    error
}

// Pool runs audits on a bounded number of workers.
type Pool struct {
	manager *Manager
	sem     *semaphore.Weighted
	workers int
	ctx     context.Context //nolint:containedctx // pool lifetime, cancelled by Cancel
	cancel  context.CancelFunc
	active  atomic.Int64
	wg      sync.WaitGroup
}

// DefaultWorkers leaves one core to the rest of the system, with a floor of two.
func DefaultWorkers() int {
	return max(2, runtime.NumCPU()-1) //nolint:mnd
}

// NewPool builds a pool. workers <= 0 selects DefaultWorkers.
func NewPool(manager *Manager, workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		manager: manager,
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Workers returns the concurrency bound.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit queues path. The returned channel receives one Completion and is then closed.
func (p *Pool) Submit(ctx context.Context, path string, segmented bool) <-chan Completion {
	out := make(chan Completion, 1)

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		completion := Completion{Path: path, Stage: StageCancelled, Err: ErrCancelled}

		defer func() {
			if recovered := recover(); recovered != nil {
				completion = Completion{
					Path:  path,
					Stage: StageFailed,
					Err:   fmt.Errorf("%w: %v", errPanicked, recovered),
				}
			}

			out <- completion
			close(out)
		}()

		if err := p.ctx.Err(); err != nil {
			completion.Err = fmt.Errorf("%w: %w", ErrCancelled, err)

			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stop := context.AfterFunc(p.ctx, cancel)
		defer stop()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			completion.Err = fmt.Errorf("%w: %w", ErrCancelled, err)

			return
		}
		defer p.sem.Release(1)

		p.active.Add(1)
		defer p.active.Add(-1)

		completion.Result, completion.Err = p.manager.AuditFile(ctx, path, segmented)

		switch {
		case completion.Err == nil:
			completion.Stage = StageDone
		case errors.Is(completion.Err, ErrCancelled):
			completion.Stage = StageCancelled
		default:
			completion.Stage = StageFailed
		}
	}()

	return out
}

// Active returns the number of audits currently running.
func (p *Pool) Active() int64 {
	return p.active.Load()
}

// Cancel stops every queued and running audit. Their completions report StageCancelled.
func (p *Pool) Cancel() {
	p.cancel()
}

// Wait blocks until every submission has emitted its completion.
func (p *Pool) Wait() {
	p.wg.Wait()
}

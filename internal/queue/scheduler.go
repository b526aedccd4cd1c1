// -----------------------------------------------------------------------
// Tenant Worker - Bounded-concurrency dispatch loop for one tenant
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"
)

// tenantWorker dispatches one tenant's jobs. The semaphore caps concurrent
// executions per tenant; the queue's group accounting guarantees at most one
// job per target. Both limits are enforced here, never by the executors.
type tenantWorker struct {
	tenantID string
	queue    *tenantQueue
	sem      *semaphore.Weighted
	runner   *jobRunner
	wake     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   arbor.ILogger
}

func newTenantWorker(parent context.Context, tenantID string, concurrency int, runner *jobRunner, logger arbor.ILogger) *tenantWorker {
	if concurrency <= 0 {
		concurrency = 3
	}
	ctx, cancel := context.WithCancel(parent)

	w := &tenantWorker{
		tenantID: tenantID,
		queue:    newTenantQueue(),
		sem:      semaphore.NewWeighted(int64(concurrency)),
		runner:   runner,
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}

	w.wg.Add(1)
	go w.loop()

	logger.Debug().
		Str("tenant_id", tenantID).
		Int("concurrency", concurrency).
		Msg("Tenant worker started")

	return w
}

// submit adds a job to the tenant's backlog and pokes the dispatch loop
func (w *tenantWorker) submit(qj *queuedJob) {
	w.queue.enqueue(qj)
	w.notify()
}

func (w *tenantWorker) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *tenantWorker) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.wake:
			w.dispatch()
		}
	}
}

// dispatch starts every currently runnable job up to the concurrency cap
func (w *tenantWorker) dispatch() {
	for {
		if w.ctx.Err() != nil {
			return
		}
		if !w.sem.TryAcquire(1) {
			return
		}

		qj := w.queue.nextRunnable()
		if qj == nil {
			w.sem.Release(1)
			return
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer w.notify()
			defer w.sem.Release(1)
			defer w.queue.finish(qj)
			w.runner.run(w.ctx, qj)
		}()
	}
}

// stop cancels the dispatch loop and waits for running jobs to settle
func (w *tenantWorker) stop() {
	w.cancel()
	w.wg.Wait()
	w.logger.Debug().Str("tenant_id", w.tenantID).Msg("Tenant worker stopped")
}

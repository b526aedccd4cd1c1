// -----------------------------------------------------------------------
// Queue Service - Multi-tenant job submission, status, cancellation
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/common"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/models"
	badgerstore "github.com/ternarybob/panelops/internal/storage/badger"
)

// Service implements interfaces.QueueService. Tenant workers are created
// lazily on first submission and live until Stop.
type Service struct {
	config  *common.QueueConfig
	jobs    interfaces.JobStorage
	runner  *jobRunner
	workers map[string]*tenantWorker
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	logger  arbor.ILogger
}

// NewService wires the queue service and its execution pipeline
func NewService(
	config *common.QueueConfig,
	jobs interfaces.JobStorage,
	credentials interfaces.CredentialStorage,
	targets interfaces.TargetStorage,
	audits interfaces.AuditStorage,
	events interfaces.EventService,
	browsers interfaces.BrowserProvider,
	screenshots interfaces.ScreenshotCapturer,
	registry interfaces.ExecutorRegistry,
	loginService interfaces.LoginService,
	logger arbor.ILogger,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	runner := &jobRunner{
		jobs:         jobs,
		credentials:  credentials,
		targets:      targets,
		audits:       audits,
		events:       events,
		browsers:     browsers,
		screenshots:  screenshots,
		registry:     registry,
		login:        loginService,
		jobTimeout:   config.JobTimeoutDuration(),
		shotInterval: config.ScreenshotIntervalDuration(),
		logger:       logger,
	}

	return &Service{
		config:  config,
		jobs:    jobs,
		runner:  runner,
		workers: make(map[string]*tenantWorker),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Submit validates and enqueues a job, returning its assigned ID. The job
// enters its target group's FIFO backlog with status waiting.
func (s *Service) Submit(ctx context.Context, job *models.Job) (string, error) {
	if job == nil {
		return "", fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}
	if err := job.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	job.ID = common.NewJobID(job.ActionName, job.TenantID, job.TargetID)
	job.Status = models.JobStatusWaiting
	job.CreatedAt = time.Now()
	job.Progress = 0

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}

	// Publish before handing the job to the worker so the waiting update is
	// on the wire before the worker can emit active
	s.runner.publish(interfaces.EventJobWaiting, job)

	worker := s.workerFor(job.TenantID)
	jobCtx, jobCancel := context.WithCancel(worker.ctx)
	worker.submit(&queuedJob{job: job, ctx: jobCtx, cancel: jobCancel})

	s.logger.Info().
		Str("job_id", job.ID).
		Str("tenant_id", job.TenantID).
		Str("target_id", job.TargetID).
		Str("action", job.ActionName).
		Msg("Job submitted")

	return job.ID, nil
}

// GetStatus returns the job's read model. Jobs belonging to other tenants are
// reported as not found rather than forbidden.
func (s *Service) GetStatus(ctx context.Context, jobID, tenantID string) (*models.JobView, error) {
	job, err := s.loadTenantJob(ctx, jobID, tenantID)
	if err != nil {
		return nil, err
	}
	return job.View(), nil
}

// Cancel requests cancellation. Waiting jobs are removed from the backlog with
// a hard guarantee of never executing. Active jobs get their cooperative
// context cancelled; the running action decides when to stop. Terminal jobs
// return false.
func (s *Service) Cancel(ctx context.Context, jobID, tenantID string) (bool, error) {
	job, err := s.loadTenantJob(ctx, jobID, tenantID)
	if err != nil {
		return false, err
	}
	if job.Status.IsTerminal() {
		return false, nil
	}

	s.mu.Lock()
	worker := s.workers[tenantID]
	s.mu.Unlock()

	if worker != nil {
		if qj := worker.queue.removeWaiting(jobID); qj != nil {
			// Removed before pickup: guaranteed never to execute
			qj.cancel()
			now := time.Now()
			qj.job.CancelledAt = &now
			s.runner.finalize(ctx, qj.job, models.JobStatusCancelled, "", "cancelled while waiting", nil)
			return true, nil
		}
		if qj := worker.queue.activeJob(jobID); qj != nil {
			// Persist the request on a storage copy; the runner owns the live
			// job object and will write the terminal state
			now := time.Now()
			job.Cancelled = true
			job.CancelledAt = &now
			if err := s.jobs.SaveJob(ctx, job); err != nil {
				s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to persist cancel flag")
			}
			qj.cancel()
			s.logger.Info().Str("job_id", jobID).Msg("Cooperative cancellation requested for active job")
			return true, nil
		}
	}

	// Known to storage but not in memory (e.g. orphaned by a restart):
	// finalize directly
	now := time.Now()
	job.CancelledAt = &now
	s.runner.finalize(ctx, job, models.JobStatusCancelled, "", "cancelled", nil)
	return true, nil
}

// ListGroupJobs returns the jobs queued or run against one target, newest last
func (s *Service) ListGroupJobs(ctx context.Context, tenantID, targetID string, status models.JobStatus) ([]*models.Job, error) {
	return s.jobs.ListJobs(ctx, tenantID, targetID, status)
}

// Stop shuts down every tenant worker, waiting for in-flight jobs to settle
func (s *Service) Stop() error {
	s.cancel()

	s.mu.Lock()
	workers := make([]*tenantWorker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.workers = make(map[string]*tenantWorker)
	s.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}

	s.logger.Info().Int("workers_stopped", len(workers)).Msg("Queue service stopped")
	return nil
}

// Stats returns queue depth counters for the status endpoint
func (s *Service) Stats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	waiting := 0
	for _, w := range s.workers {
		waiting += w.queue.waitingCount()
	}
	return map[string]interface{}{
		"tenants": len(s.workers),
		"waiting": waiting,
	}
}

// workerFor returns the tenant's worker, creating it on first use
func (s *Service) workerFor(tenantID string) *tenantWorker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.workers[tenantID]; ok {
		return w
	}
	w := newTenantWorker(s.ctx, tenantID, s.config.TenantConcurrency, s.runner, s.logger)
	s.workers[tenantID] = w
	return w
}

// loadTenantJob fetches a job and enforces tenant isolation
func (s *Service) loadTenantJob(ctx context.Context, jobID, tenantID string) (*models.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, badgerstore.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if job.TenantID != tenantID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

package interfaces

import (
	"context"

	"github.com/ternarybob/panelops/internal/models"
)

// QueueService is the job pipeline entry point: tenant-isolated queues with
// per-target grouping, bounded concurrency and cooperative cancellation.
type QueueService interface {
	// Submit validates and enqueues a job, returning its assigned ID.
	// Fails with ErrInvalidJob when a required field is absent.
	Submit(ctx context.Context, job *models.Job) (string, error)

	// GetStatus returns the job's read model, or ErrJobNotFound
	GetStatus(ctx context.Context, jobID, tenantID string) (*models.JobView, error)

	// Cancel removes a waiting job outright (true), or flags an active job
	// for cooperative cancellation (true). Terminal jobs return false.
	Cancel(ctx context.Context, jobID, tenantID string) (bool, error)

	// ListGroupJobs lists a target's jobs filtered by status ("" = all)
	ListGroupJobs(ctx context.Context, tenantID, targetID string, status models.JobStatus) ([]*models.Job, error)

	// Stop drains workers and stops accepting new jobs
	Stop() error
}

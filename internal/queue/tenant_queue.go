// -----------------------------------------------------------------------
// Tenant Queue - Per-target FIFO groups inside one tenant's backlog
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"sync"

	"github.com/ternarybob/panelops/internal/models"
)

// queuedJob pairs a job with its cooperative cancellation token. Cancelling
// the context asks the executor to stop; it never force-terminates anything.
type queuedJob struct {
	job    *models.Job
	ctx    context.Context
	cancel context.CancelFunc
}

// tenantQueue holds one tenant's waiting jobs grouped by target. Within a
// group order is strict FIFO; across groups the oldest eligible job wins.
// A group with an active job is ineligible until that job finishes, which is
// what serializes access to each target's live browser page.
type tenantQueue struct {
	mu           sync.Mutex
	groups       map[string][]*queuedJob // targetID -> FIFO backlog
	activeGroups map[string]bool         // targetID -> has a running job
	activeJobs   map[string]*queuedJob   // jobID -> running job
}

func newTenantQueue() *tenantQueue {
	return &tenantQueue{
		groups:       make(map[string][]*queuedJob),
		activeGroups: make(map[string]bool),
		activeJobs:   make(map[string]*queuedJob),
	}
}

// enqueue appends a job to its target group's backlog
func (q *tenantQueue) enqueue(qj *queuedJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.groups[qj.job.TargetID] = append(q.groups[qj.job.TargetID], qj)
}

// nextRunnable pops the oldest waiting job whose group has no active job and
// marks the group active. Returns nil when nothing is eligible.
func (q *tenantQueue) nextRunnable() *queuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best *queuedJob
	var bestGroup string
	for targetID, backlog := range q.groups {
		if q.activeGroups[targetID] || len(backlog) == 0 {
			continue
		}
		head := backlog[0]
		if best == nil || head.job.CreatedAt.Before(best.job.CreatedAt) {
			best = head
			bestGroup = targetID
		}
	}
	if best == nil {
		return nil
	}

	q.groups[bestGroup] = q.groups[bestGroup][1:]
	if len(q.groups[bestGroup]) == 0 {
		delete(q.groups, bestGroup)
	}
	q.activeGroups[bestGroup] = true
	q.activeJobs[best.job.ID] = best
	return best
}

// finish releases a job's group so the next job in it becomes eligible
func (q *tenantQueue) finish(qj *queuedJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.activeGroups, qj.job.TargetID)
	delete(q.activeJobs, qj.job.ID)
}

// removeWaiting removes a still-waiting job from its group's backlog.
// Returns the removed job, or nil when the job is not waiting here (already
// picked up or unknown).
func (q *tenantQueue) removeWaiting(jobID string) *queuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	for targetID, backlog := range q.groups {
		for i, qj := range backlog {
			if qj.job.ID == jobID {
				q.groups[targetID] = append(backlog[:i], backlog[i+1:]...)
				if len(q.groups[targetID]) == 0 {
					delete(q.groups, targetID)
				}
				return qj
			}
		}
	}
	return nil
}

// activeJob returns the running job with the given ID, if any
func (q *tenantQueue) activeJob(jobID string) *queuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeJobs[jobID]
}

// waitingCount returns the number of queued jobs across all groups
func (q *tenantQueue) waitingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, backlog := range q.groups {
		count += len(backlog)
	}
	return count
}

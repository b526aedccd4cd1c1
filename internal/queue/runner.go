// -----------------------------------------------------------------------
// Job Runner - Executes one job through the full attempt pipeline
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/common"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/login"
	"github.com/ternarybob/panelops/internal/models"
)

// jobRunner owns the per-job execution pipeline: status transitions, browser
// acquisition, executor dispatch, re-authentication recovery, the wall-clock
// timeout, screenshot broadcasting and the final audit row.
type jobRunner struct {
	jobs        interfaces.JobStorage
	credentials interfaces.CredentialStorage
	targets     interfaces.TargetStorage
	audits      interfaces.AuditStorage
	events      interfaces.EventService
	browsers    interfaces.BrowserProvider
	screenshots interfaces.ScreenshotCapturer
	registry    interfaces.ExecutorRegistry
	login       interfaces.LoginService

	jobTimeout   time.Duration
	shotInterval time.Duration
	logger       arbor.ILogger
}

type execOutcome struct {
	result *models.ActionResult
	err    error
}

// run takes one dequeued job through to a terminal state. The caller holds the
// tenant semaphore slot and the target group lock for the duration.
func (r *jobRunner) run(workerCtx context.Context, qj *queuedJob) {
	job := qj.job

	defer func() {
		if rec := recover(); rec != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			r.logger.Error().
				Str("job_id", job.ID).
				Str("panic", fmt.Sprintf("%v", rec)).
				Str("stack", string(buf[:n])).
				Msg("Job execution panicked")
			r.finalize(workerCtx, job, models.JobStatusFailed, models.FailureActionFailed,
				fmt.Sprintf("internal error: %v", rec), nil)
		}
	}()

	// Cancelled while waiting in the group backlog: terminal without any
	// browser interaction
	if job.Cancelled || qj.ctx.Err() != nil {
		r.finalize(workerCtx, job, models.JobStatusCancelled, "", "cancelled before execution", nil)
		return
	}

	now := time.Now()
	job.Status = models.JobStatusActive
	job.StartedAt = &now
	r.saveJob(workerCtx, job)
	r.publish(interfaces.EventJobActive, job)

	r.logger.Info().
		Str("job_id", job.ID).
		Str("tenant_id", job.TenantID).
		Str("target_id", job.TargetID).
		Str("action", job.ActionName).
		Msg("Job started")

	page, err := r.browsers.Acquire(workerCtx, job.TenantID, job.TargetID)
	if err != nil {
		r.finalize(workerCtx, job, models.JobStatusFailed, models.FailureActionFailed,
			fmt.Sprintf("failed to acquire browser session: %v", err), nil)
		return
	}

	exec, err := r.registry.Resolve(job.TargetID, job.ActionName)
	if err != nil {
		r.finalize(workerCtx, job, models.JobStatusFailed, models.FailureActionFailed, err.Error(), nil)
		return
	}

	// The attempt deadline bounds every browser call the executor makes.
	// Expiry kills the attempt, not the browser: the cached session stays
	// alive for the next job.
	attemptPage, cancelAttempt := context.WithTimeout(page, r.jobTimeout)
	defer cancelAttempt()

	stopShots := r.startScreenshotLoop(attemptPage, job)
	defer stopShots()

	outcome := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				r.logger.Error().
					Str("job_id", job.ID).
					Str("panic", fmt.Sprintf("%v", rec)).
					Str("stack", string(buf[:n])).
					Msg("Executor panicked")
				outcome <- execOutcome{err: fmt.Errorf("executor panicked: %v", rec)}
			}
		}()
		result, execErr := r.executeWithRecovery(qj.ctx, attemptPage, exec, job)
		outcome <- execOutcome{result: result, err: execErr}
	}()

	select {
	case out := <-outcome:
		r.settle(workerCtx, qj, out)
	case <-attemptPage.Done():
		stopShots()
		if errors.Is(attemptPage.Err(), context.DeadlineExceeded) {
			r.finalize(workerCtx, job, models.JobStatusFailed, models.FailureTimeout,
				fmt.Sprintf("job exceeded %s wall-clock limit", r.jobTimeout), nil)
		} else {
			r.finalize(workerCtx, job, models.JobStatusFailed, models.FailureActionFailed,
				"browser session closed during execution", nil)
		}
		// The abandoned attempt may have left the page mid-navigation
		r.browsers.Reset(job.TenantID, job.TargetID)
	}
}

// executeWithRecovery runs the executor once, and on a needs_login result
// performs exactly one re-authentication followed by one retry. The retry's
// result is final either way.
func (r *jobRunner) executeWithRecovery(jobCtx context.Context, page context.Context, exec interfaces.ActionExecutor, job *models.Job) (*models.ActionResult, error) {
	result, err := exec.Execute(jobCtx, page, job)
	if err != nil {
		return nil, err
	}
	if !result.NeedsLogin {
		return result, nil
	}

	r.logger.Info().
		Str("job_id", job.ID).
		Str("credential_ref", job.CredentialRef).
		Msg("Session expired, re-authenticating")

	cred, err := r.credentials.GetCredential(jobCtx, job.CredentialRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential %s: %w", job.CredentialRef, err)
	}
	if cred.Empty() {
		return nil, login.ErrCredentialsMissing
	}

	target, err := r.targets.GetTarget(jobCtx, job.TargetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load target %s: %w", job.TargetID, err)
	}
	if target == nil {
		return nil, fmt.Errorf("unknown target %s", job.TargetID)
	}

	if err := r.login.Login(jobCtx, page, cred, target); err != nil {
		return nil, err
	}

	return exec.Execute(jobCtx, page, job)
}

// settle maps an executor outcome onto a terminal job state
func (r *jobRunner) settle(ctx context.Context, qj *queuedJob, out execOutcome) {
	job := qj.job

	switch {
	case out.err == nil:
		result := out.result
		switch {
		case result.NeedsLogin:
			// Still unauthenticated after the single recovery round
			r.finalize(ctx, job, models.JobStatusFailed, models.FailureActionFailed,
				"authentication could not be restored", result)
		case result.Success:
			job.Progress = 100
			r.finalize(ctx, job, models.JobStatusCompleted, "", result.Message, result)
		default:
			r.finalize(ctx, job, models.JobStatusFailed, models.FailureActionFailed, result.Message, result)
		}

	case errors.Is(out.err, context.Canceled) && qj.ctx.Err() != nil:
		r.finalize(ctx, job, models.JobStatusCancelled, "", "cancelled during execution", nil)

	case errors.Is(out.err, login.ErrCredentialsMissing):
		r.finalize(ctx, job, models.JobStatusFailed, models.FailureCredentialsMissing, out.err.Error(), nil)

	case errors.Is(out.err, login.ErrCaptchaExhausted):
		r.finalize(ctx, job, models.JobStatusFailed, models.FailureCaptchaExhausted, out.err.Error(), nil)

	case errors.Is(out.err, login.ErrLoginRejected):
		r.finalize(ctx, job, models.JobStatusFailed, models.FailureLoginRejected, out.err.Error(), nil)

	default:
		r.finalize(ctx, job, models.JobStatusFailed, models.FailureActionFailed, out.err.Error(), nil)
	}
}

// finalize writes the terminal state, appends the audit row and broadcasts the
// terminal event. Every execution path funnels through here exactly once.
func (r *jobRunner) finalize(ctx context.Context, job *models.Job, status models.JobStatus, reason models.FailureReason, message string, result *models.ActionResult) {
	now := time.Now()
	job.Status = status
	job.Reason = reason
	job.Message = message
	job.Result = result
	job.FinishedAt = &now
	if status == models.JobStatusCancelled {
		job.Cancelled = true
		if job.CancelledAt == nil {
			job.CancelledAt = &now
		}
	}
	r.saveJob(ctx, job)

	record := &models.AuditRecord{
		TenantID:     job.TenantID,
		TargetID:     job.TargetID,
		JobID:        job.ID,
		ActionName:   job.ActionName,
		Outcome:      string(status),
		Params:       job.Params,
		DurationSecs: float64(job.DurationMs()) / 1000,
		Message:      message,
	}
	if err := r.audits.SaveAudit(ctx, record); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to write audit record")
	}

	switch status {
	case models.JobStatusCompleted:
		r.publish(interfaces.EventJobCompleted, job)
	case models.JobStatusCancelled:
		r.publish(interfaces.EventJobCancelled, job)
	default:
		r.publish(interfaces.EventJobFailed, job)
	}

	r.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Str("reason", string(reason)).
		Int64("duration_ms", job.DurationMs()).
		Msg("Job finished")
}

// startScreenshotLoop broadcasts page captures at the configured interval
// until stopped or the first capture failure
func (r *jobRunner) startScreenshotLoop(page context.Context, job *models.Job) func() {
	if r.screenshots == nil || r.shotInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	common.SafeGo(r.logger, "screenshots-"+job.ID, func() {
		ticker := time.NewTicker(r.shotInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-page.Done():
				return
			case <-ticker.C:
				png, err := r.screenshots.Capture(page)
				if err != nil {
					r.logger.Debug().Err(err).Str("job_id", job.ID).Msg("Screenshot capture stopped")
					return
				}
				r.publishAsync(interfaces.EventScreenshotCaptured, &models.ScreenshotFrame{
					JobID:      job.ID,
					TenantID:   job.TenantID,
					TargetID:   job.TargetID,
					ActionName: job.ActionName,
					PNG:        png,
					CapturedAt: time.Now(),
				})
			}
		}
	})

	return stop
}

func (r *jobRunner) saveJob(ctx context.Context, job *models.Job) {
	if err := r.jobs.SaveJob(ctx, job); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist job state")
	}
}

// publish delivers a lifecycle event synchronously. Lifecycle transitions for
// one job are published from a single goroutine, so synchronous delivery is
// what keeps waiting/active/terminal updates in order on the wire.
func (r *jobRunner) publish(eventType interfaces.EventType, payload interface{}) {
	if err := r.events.PublishSync(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		r.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

// publishAsync delivers high-frequency events without blocking the sender
func (r *jobRunner) publishAsync(eventType interfaces.EventType, payload interface{}) {
	if err := r.events.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		r.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

// -----------------------------------------------------------------------
// Job - Unit of automation work against an operator console
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true for states a job can never leave
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// FailureReason classifies why a job reached the failed state
type FailureReason string

const (
	FailureTimeout            FailureReason = "timeout"
	FailureCredentialsMissing FailureReason = "credentials_missing"
	FailureCaptchaExhausted   FailureReason = "captcha_exhausted"
	FailureLoginRejected      FailureReason = "login_rejected"
	FailureActionFailed       FailureReason = "action_failed"
)

// ActionResult is the structured outcome an action executor returns.
// NeedsLogin=true is the sole signal the scheduler uses to trigger
// re-authentication recovery.
type ActionResult struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message"`
	NeedsLogin bool                   `json:"needs_login,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Job represents one automation action queued against a (tenant, target) pair.
// Immutable after submission except Cancelled/Status/Result/timestamps, which
// are set by exactly one worker (the one executing it) or, for waiting jobs,
// by the cancellation path.
type Job struct {
	ID            string                 `json:"id" badgerhold:"key"`
	TenantID      string                 `json:"tenant_id"`
	TargetID      string                 `json:"target_id"` // Group label: jobs sharing a target serialize
	ActionName    string                 `json:"action_name"`
	Params        map[string]interface{} `json:"params"`
	RequesterID   string                 `json:"requester_id"`
	CredentialRef string                 `json:"credential_ref"`

	Status      JobStatus     `json:"status"`
	Reason      FailureReason `json:"reason,omitempty"`
	Progress    int           `json:"progress"` // 0-100
	Message     string        `json:"message,omitempty"`
	Cancelled   bool          `json:"cancelled"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Result *ActionResult `json:"result,omitempty"`
}

// Validate rejects submissions missing any required field
func (j *Job) Validate() error {
	if j.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if j.TargetID == "" {
		return fmt.Errorf("target_id is required")
	}
	if j.ActionName == "" {
		return fmt.Errorf("action_name is required")
	}
	if j.RequesterID == "" {
		return fmt.Errorf("requester_id is required")
	}
	if j.CredentialRef == "" {
		return fmt.Errorf("credential_ref is required")
	}
	return nil
}

// DurationMs returns wall-clock execution time in milliseconds, or 0 if the
// job has not finished
func (j *Job) DurationMs() int64 {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt).Milliseconds()
}

// ToJSON serializes the job for queue/broadcast payloads
func (j *Job) ToJSON() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// JobView is the read model returned by status polls
type JobView struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenant_id"`
	TargetID   string        `json:"target_id"`
	ActionName string        `json:"action_name"`
	Status     JobStatus     `json:"status"`
	Reason     FailureReason `json:"reason,omitempty"`
	Progress   int           `json:"progress"`
	Message    string        `json:"message,omitempty"`
	Result     *ActionResult `json:"result,omitempty"`
	StartTime  *time.Time    `json:"start_time,omitempty"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	DurationMs int64         `json:"duration_ms,omitempty"`
}

// View projects the job into its read model
func (j *Job) View() *JobView {
	return &JobView{
		ID:         j.ID,
		TenantID:   j.TenantID,
		TargetID:   j.TargetID,
		ActionName: j.ActionName,
		Status:     j.Status,
		Reason:     j.Reason,
		Progress:   j.Progress,
		Message:    j.Message,
		Result:     j.Result,
		StartTime:  j.StartedAt,
		EndTime:    j.FinishedAt,
		DurationMs: j.DurationMs(),
	}
}

package models

import "time"

// AuditRecord is one durable row per terminal job, written regardless of
// outcome so no execution is ever silently dropped.
type AuditRecord struct {
	ID           string                 `json:"id" badgerhold:"key"`
	TenantID     string                 `json:"tenant_id"`
	TargetID     string                 `json:"target_id"`
	JobID        string                 `json:"job_id"`
	ActionName   string                 `json:"action_name"`
	Outcome      string                 `json:"outcome"` // Terminal job status
	Params       map[string]interface{} `json:"params"`
	DurationSecs float64                `json:"duration_secs"`
	Message      string                 `json:"message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

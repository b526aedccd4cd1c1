package models

import "time"

// ScreenshotFrame is one live capture of a job's browser page, broadcast to
// subscribed viewers while the job is active
type ScreenshotFrame struct {
	JobID      string    `json:"job_id"`
	TenantID   string    `json:"tenant_id"`
	TargetID   string    `json:"target_id"`
	ActionName string    `json:"action_name"`
	PNG        []byte    `json:"png"`
	CapturedAt time.Time `json:"captured_at"`
}

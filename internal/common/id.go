package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewJobID generates a globally unique job ID combining the action, tenant and
// target with a timestamp and random suffix to avoid collisions.
// Format: <action>_<tenant>_<target>_<unixms>_<suffix>
func NewJobID(actionName, tenantID, targetID string) string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("%s_%s_%s_%d_%s", actionName, tenantID, targetID, time.Now().UnixMilli(), suffix)
}

// NewSessionID generates a unique persisted-session ID with the "sess_" prefix
func NewSessionID() string {
	return "sess_" + uuid.New().String()
}

// NewAuditID generates a unique audit record ID with the "audit_" prefix
func NewAuditID() string {
	return "audit_" + uuid.New().String()
}

// NewCaptchaID generates a unique captcha record ID with the "captcha_" prefix
func NewCaptchaID() string {
	return "captcha_" + uuid.New().String()
}

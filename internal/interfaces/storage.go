package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/panelops/internal/models"
)

// JobStorage persists job records
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, tenantID, targetID string, status models.JobStatus) ([]*models.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
	CountJobsByStatus(ctx context.Context, tenantID string, status models.JobStatus) (int, error)
}

// SessionStorage persists captured authentication sessions.
// GetActiveSession applies lazy expiry: the newest session by CreatedAt wins,
// and an expired or expiry-less row is flipped inactive before being skipped.
type SessionStorage interface {
	SaveSession(ctx context.Context, session *models.PersistedSession) error
	GetActiveSession(ctx context.Context, userID, credentialID string) (*models.PersistedSession, error)
	DeactivateSessions(ctx context.Context, userID, credentialID string) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// CredentialStorage looks up stored console logins by reference
type CredentialStorage interface {
	SaveCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context, ref string) (*models.Credential, error)
}

// TargetStorage looks up operator console profiles
type TargetStorage interface {
	SaveTarget(ctx context.Context, target *models.Target) error
	GetTarget(ctx context.Context, targetID string) (*models.Target, error)
	ListTargets(ctx context.Context, tenantID string) ([]*models.Target, error)
}

// AuditStorage appends terminal-job audit rows
type AuditStorage interface {
	SaveAudit(ctx context.Context, record *models.AuditRecord) error
	ListAudits(ctx context.Context, tenantID, targetID string, limit int) ([]*models.AuditRecord, error)
}

// CaptchaStorage records captcha solve attempts for observability
type CaptchaStorage interface {
	SaveCaptcha(ctx context.Context, record *models.CaptchaRecord) error
	SaveCaptchaImage(ctx context.Context, image *models.CaptchaImage) error
	GetCaptchaImage(ctx context.Context, imageID string) (*models.CaptchaImage, error)
	UpdateCaptchaOutcome(ctx context.Context, recordID string, outcome models.CaptchaOutcome) error
}

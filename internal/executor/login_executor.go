package executor

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/login"
	"github.com/ternarybob/panelops/internal/models"
)

// LoginExecutor handles explicit "login" jobs by delegating to the login
// machine. The same machine is reused by the scheduler's re-authentication
// recovery, so both paths share one captcha budget and outcome policy.
type LoginExecutor struct {
	machine     interfaces.LoginService
	credentials interfaces.CredentialStorage
	targets     interfaces.TargetStorage
	logger      arbor.ILogger
}

// NewLoginExecutor creates the built-in login action executor
func NewLoginExecutor(
	machine interfaces.LoginService,
	credentials interfaces.CredentialStorage,
	targets interfaces.TargetStorage,
	logger arbor.ILogger,
) *LoginExecutor {
	return &LoginExecutor{
		machine:     machine,
		credentials: credentials,
		targets:     targets,
		logger:      logger,
	}
}

// ActionName returns "login"
func (e *LoginExecutor) ActionName() string {
	return "login"
}

// Execute performs a full credential login on the job's target
func (e *LoginExecutor) Execute(ctx context.Context, page context.Context, job *models.Job) (*models.ActionResult, error) {
	cred, err := e.credentials.GetCredential(ctx, job.CredentialRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential %s: %w", job.CredentialRef, err)
	}
	if cred.Empty() {
		return nil, login.ErrCredentialsMissing
	}

	target, err := e.targets.GetTarget(ctx, job.TargetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load target %s: %w", job.TargetID, err)
	}
	if target == nil {
		return nil, fmt.Errorf("unknown target %s", job.TargetID)
	}

	if err := e.machine.Login(ctx, page, cred, target); err != nil {
		return nil, err
	}

	return &models.ActionResult{
		Success: true,
		Message: "login succeeded, session persisted",
	}, nil
}

// -----------------------------------------------------------------------
// Action Executor Interface - Contract for per-target automation routines
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/panelops/internal/models"
)

// ActionExecutor performs one concrete automation action against a live
// browser page. The page is a chromedp browser context owned by the session
// cache; executors must never cancel or close it.
//
// ctx is a cooperative cancellation token: it is cancelled when the job's
// requester asks for cancellation, and executors MAY check it between steps.
// Nothing forces them to - a running action is never forcibly terminated,
// because killing browser automation mid-flight can corrupt the shared
// session state the next job inherits.
type ActionExecutor interface {
	// Execute runs the action with the job's params and returns a structured
	// result. NeedsLogin=true in the result signals expired authentication.
	Execute(ctx context.Context, page context.Context, job *models.Job) (*models.ActionResult, error)

	// ActionName returns the action this executor handles, e.g. "balance_query"
	ActionName() string
}

// ExecutorRegistry resolves executors by (target, action), replacing the
// original system's dynamic per-target script loading with typed lookup.
type ExecutorRegistry interface {
	// Register binds an executor as the default for its action name
	Register(executor ActionExecutor)

	// RegisterForTarget binds a target-specific override
	RegisterForTarget(targetID string, executor ActionExecutor)

	// Resolve returns the executor for (targetID, actionName): the target
	// override if present, otherwise the action default
	Resolve(targetID, actionName string) (ActionExecutor, error)
}

// -----------------------------------------------------------------------
// Executor Registry - Typed (target, action) executor resolution
// -----------------------------------------------------------------------

package executor

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/interfaces"
)

// Registry implements interfaces.ExecutorRegistry. Target-specific overrides
// shadow action-level defaults, so one oddball console can swap in its own
// automation without forking the default.
type Registry struct {
	defaults  map[string]interfaces.ActionExecutor
	overrides map[string]map[string]interfaces.ActionExecutor // targetID -> actionName -> executor
	mu        sync.RWMutex
	logger    arbor.ILogger
}

// NewRegistry creates an empty executor registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		defaults:  make(map[string]interfaces.ActionExecutor),
		overrides: make(map[string]map[string]interfaces.ActionExecutor),
		logger:    logger,
	}
}

// Register binds an executor as the default for its action name
func (r *Registry) Register(executor interfaces.ActionExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := executor.ActionName()
	r.defaults[name] = executor
	r.logger.Debug().Str("action", name).Msg("Default executor registered")
}

// RegisterForTarget binds a target-specific override
func (r *Registry) RegisterForTarget(targetID string, executor interfaces.ActionExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.overrides[targetID] == nil {
		r.overrides[targetID] = make(map[string]interfaces.ActionExecutor)
	}
	name := executor.ActionName()
	r.overrides[targetID][name] = executor
	r.logger.Debug().
		Str("action", name).
		Str("target_id", targetID).
		Msg("Target executor override registered")
}

// Resolve returns the executor for (targetID, actionName): the target override
// if present, otherwise the action default
func (r *Registry) Resolve(targetID, actionName string) (interfaces.ActionExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if targetExecs, ok := r.overrides[targetID]; ok {
		if exec, ok := targetExecs[actionName]; ok {
			return exec, nil
		}
	}
	if exec, ok := r.defaults[actionName]; ok {
		return exec, nil
	}
	return nil, fmt.Errorf("no executor registered for action %q on target %q", actionName, targetID)
}

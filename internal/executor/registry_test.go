package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/models"
)

type stubExecutor struct {
	name string
}

func (s *stubExecutor) ActionName() string { return s.name }

func (s *stubExecutor) Execute(ctx context.Context, page context.Context, job *models.Job) (*models.ActionResult, error) {
	return &models.ActionResult{Success: true}, nil
}

func TestResolveDefault(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())
	exec := &stubExecutor{name: "balance_query"}
	registry.Register(exec)

	got, err := registry.Resolve("any-target", "balance_query")
	require.NoError(t, err)
	assert.Same(t, exec, got)
}

func TestResolveTargetOverrideShadowsDefault(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())
	defaultExec := &stubExecutor{name: "balance_query"}
	overrideExec := &stubExecutor{name: "balance_query"}
	registry.Register(defaultExec)
	registry.RegisterForTarget("target-odd", overrideExec)

	got, err := registry.Resolve("target-odd", "balance_query")
	require.NoError(t, err)
	assert.Same(t, overrideExec, got)

	got, err = registry.Resolve("target-normal", "balance_query")
	require.NoError(t, err)
	assert.Same(t, defaultExec, got)
}

func TestResolveUnknownAction(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())
	_, err := registry.Resolve("target-1", "recharge")
	assert.Error(t, err)
}

func TestBouncedToLogin(t *testing.T) {
	target := &models.Target{
		LoginURL:     "https://console.example.com/login",
		DashboardURL: "https://console.example.com/dashboard",
	}

	assert.True(t, bouncedToLogin(target, "https://console.example.com/login?expired=1"))
	assert.True(t, bouncedToLogin(target, "https://CONSOLE.example.com/login"))
	assert.False(t, bouncedToLogin(target, "https://console.example.com/dashboard/accounts"))
	assert.False(t, bouncedToLogin(target, "https://other.example.com/login"))
	assert.False(t, bouncedToLogin(target, "://bad"))
}

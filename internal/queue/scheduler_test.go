package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/login"
	"github.com/ternarybob/panelops/internal/models"
	"github.com/ternarybob/panelops/internal/services/events"
)

func TestSubmitRejectsIncompleteJob(t *testing.T) {
	h := newHarness(t, &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		return &models.ActionResult{Success: true}, nil
	}}, "60s")

	job := newJob("tenant-1", "target-1")
	job.CredentialRef = ""
	_, err := h.service.Submit(context.Background(), job)
	assert.ErrorIs(t, err, ErrInvalidJob)

	_, err = h.service.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestGroupSerializationAndFIFO(t *testing.T) {
	var mu sync.Mutex
	var order []string
	var running int32
	var maxRunning int32

	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		now := atomic.AddInt32(&running, 1)
		for {
			max := atomic.LoadInt32(&maxRunning)
			if now <= max || atomic.CompareAndSwapInt32(&maxRunning, max, now) {
				break
			}
		}
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return &models.ActionResult{Success: true}, nil
	}}

	h := newHarness(t, exec, "60s")

	var ids []string
	for i := 0; i < 4; i++ {
		job := newJob("tenant-1", "target-1")
		id, err := h.service.Submit(context.Background(), job)
		require.NoError(t, err)
		ids = append(ids, id)
		// Distinct CreatedAt so FIFO ordering is observable
		time.Sleep(2 * time.Millisecond)
	}

	for _, id := range ids {
		job := waitTerminal(t, h, id)
		assert.Equal(t, models.JobStatusCompleted, job.Status)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning), "jobs sharing a target must serialize")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ids, order, "jobs within a group must run in submission order")
}

func TestTenantConcurrencyCap(t *testing.T) {
	var running int32
	var maxRunning int32
	release := make(chan struct{})

	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		now := atomic.AddInt32(&running, 1)
		for {
			max := atomic.LoadInt32(&maxRunning)
			if now <= max || atomic.CompareAndSwapInt32(&maxRunning, max, now) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		return &models.ActionResult{Success: true}, nil
	}}

	h := newHarness(t, exec, "60s")

	var ids []string
	for i := 0; i < 6; i++ {
		job := newJob("tenant-1", fmt.Sprintf("target-%d", i))
		id, err := h.service.Submit(context.Background(), job)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// Give the dispatcher time to start as many as it will
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&running), "exactly three jobs should be running")

	close(release)
	for _, id := range ids {
		waitTerminal(t, h, id)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&maxRunning), "concurrency must never exceed the tenant cap")
}

func TestCancelWaitingJobNeverExecutes(t *testing.T) {
	release := make(chan struct{})
	var executed sync.Map

	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		executed.Store(job.ID, true)
		<-release
		return &models.ActionResult{Success: true}, nil
	}}

	h := newHarness(t, exec, "60s")

	blocker, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	waiting, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)

	ok, err := h.service.Cancel(context.Background(), waiting, "tenant-1")
	require.NoError(t, err)
	assert.True(t, ok)

	close(release)
	waitTerminal(t, h, blocker)

	job := waitTerminal(t, h, waiting)
	assert.Equal(t, models.JobStatusCancelled, job.Status)

	_, ran := executed.Load(waiting)
	assert.False(t, ran, "a cancelled waiting job must never execute")
}

func TestCancelBeforePickupMakesNoBrowserCalls(t *testing.T) {
	release := make(chan struct{})
	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		<-release
		return &models.ActionResult{Success: true}, nil
	}}

	h := newHarness(t, exec, "60s")

	blocker, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	acquiresAfterBlocker := h.browsers.acquireCount()

	waiting, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)

	ok, err := h.service.Cancel(context.Background(), waiting, "tenant-1")
	require.NoError(t, err)
	require.True(t, ok)

	close(release)
	waitTerminal(t, h, blocker)
	waitTerminal(t, h, waiting)

	assert.Equal(t, acquiresAfterBlocker, h.browsers.acquireCount(),
		"cancelled waiting job must not touch the browser cache")
}

func TestCancelActiveJobIsCooperative(t *testing.T) {
	started := make(chan struct{})
	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	h := newHarness(t, exec, "60s")

	id, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}

	ok, err := h.service.Cancel(context.Background(), id, "tenant-1")
	require.NoError(t, err)
	assert.True(t, ok)

	job := waitTerminal(t, h, id)
	assert.Equal(t, models.JobStatusCancelled, job.Status)
}

func TestCancelTerminalJobReturnsFalse(t *testing.T) {
	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		return &models.ActionResult{Success: true}, nil
	}}

	h := newHarness(t, exec, "60s")

	id, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)
	waitTerminal(t, h, id)

	ok, err := h.service.Cancel(context.Background(), id, "tenant-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNeedsLoginTriggersSingleRecoveryAndRetry(t *testing.T) {
	var calls int32
	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return &models.ActionResult{Success: false, NeedsLogin: true}, nil
		}
		return &models.ActionResult{Success: true, Message: "done after relogin"}, nil
	}}

	h := newHarness(t, exec, "60s")

	id, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)

	job := waitTerminal(t, h, id)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "done after relogin", job.Message)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "exactly one retry after recovery")
	assert.Equal(t, 1, h.login.callCount(), "exactly one re-authentication")
}

func TestNeedsLoginWithMissingCredentials(t *testing.T) {
	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		return &models.ActionResult{Success: false, NeedsLogin: true}, nil
	}}

	h := newHarness(t, exec, "60s")
	h.creds.cred = nil

	id, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)

	job := waitTerminal(t, h, id)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.FailureCredentialsMissing, job.Reason)
	assert.Equal(t, 0, h.login.callCount())
}

func TestNeedsLoginAfterRetryFails(t *testing.T) {
	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		return &models.ActionResult{Success: false, NeedsLogin: true}, nil
	}}

	h := newHarness(t, exec, "60s")

	id, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)

	job := waitTerminal(t, h, id)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.FailureActionFailed, job.Reason)
	assert.Equal(t, 1, h.login.callCount(), "recovery must not loop")
}

func TestLoginErrorsMapToFailureReasons(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason models.FailureReason
	}{
		{"captcha exhausted", login.ErrCaptchaExhausted, models.FailureCaptchaExhausted},
		{"login rejected", login.ErrLoginRejected, models.FailureLoginRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
				return &models.ActionResult{Success: false, NeedsLogin: true}, nil
			}}

			h := newHarness(t, exec, "60s")
			h.login.err = tc.err

			id, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
			require.NoError(t, err)

			job := waitTerminal(t, h, id)
			assert.Equal(t, models.JobStatusFailed, job.Status)
			assert.Equal(t, tc.reason, job.Reason)
		})
	}
}

func TestTimeoutFailsJobAndResetsPage(t *testing.T) {
	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		// Ignores cancellation entirely; only the attempt deadline stops it
		time.Sleep(2 * time.Second)
		return &models.ActionResult{Success: true}, nil
	}}

	h := newHarness(t, exec, "100ms")

	id, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)

	job := waitTerminal(t, h, id)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.FailureTimeout, job.Reason)
	assert.Equal(t, 1, h.browsers.resetCount(), "the page must be steered back to neutral after a timeout")
}

func TestTimeoutReleasesGroupForNextJob(t *testing.T) {
	var calls int32
	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(2 * time.Second)
		}
		return &models.ActionResult{Success: true}, nil
	}}

	h := newHarness(t, exec, "150ms")

	first, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)
	second, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)

	firstJob := waitTerminal(t, h, first)
	assert.Equal(t, models.FailureTimeout, firstJob.Reason)

	secondJob := waitTerminal(t, h, second)
	assert.Equal(t, models.JobStatusCompleted, secondJob.Status,
		"the group must keep flowing after a timed-out job")
}

func TestExecutorPanicBecomesActionFailed(t *testing.T) {
	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		panic("selector blew up")
	}}

	h := newHarness(t, exec, "5s")

	id, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)

	job := waitTerminal(t, h, id)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.FailureActionFailed, job.Reason)
}

func TestTenantIsolationOnStatusAndCancel(t *testing.T) {
	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		return &models.ActionResult{Success: true}, nil
	}}

	h := newHarness(t, exec, "60s")

	id, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)
	waitTerminal(t, h, id)

	_, err = h.service.GetStatus(context.Background(), id, "tenant-2")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = h.service.Cancel(context.Background(), id, "tenant-2")
	assert.ErrorIs(t, err, ErrJobNotFound)

	view, err := h.service.GetStatus(context.Background(), id, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, view.Status)
}

func TestLifecycleEventsArriveInOrder(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())

	var mu sync.Mutex
	seen := make(map[string][]interfaces.EventType)
	record := func(ctx context.Context, event interfaces.Event) error {
		job, ok := event.Payload.(*models.Job)
		if !ok {
			return nil
		}
		mu.Lock()
		seen[job.ID] = append(seen[job.ID], event.Type)
		mu.Unlock()
		return nil
	}
	for _, eventType := range []interfaces.EventType{
		interfaces.EventJobWaiting,
		interfaces.EventJobActive,
		interfaces.EventJobCompleted,
		interfaces.EventJobFailed,
		interfaces.EventJobCancelled,
	} {
		require.NoError(t, bus.Subscribe(eventType, record))
	}

	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		return &models.ActionResult{Success: true}, nil
	}}
	h := newHarnessWithEvents(t, exec, "60s", bus)

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitTerminal(t, h, id)
	}

	// Storage flips terminal just before the publish, so poll for the event
	sequence := func(id string) []interfaces.EventType {
		mu.Lock()
		defer mu.Unlock()
		return append([]interfaces.EventType(nil), seen[id]...)
	}
	deadline := time.Now().Add(5 * time.Second)
	for _, id := range ids {
		for len(sequence(id)) < 3 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		require.Equal(t, []interfaces.EventType{
			interfaces.EventJobWaiting,
			interfaces.EventJobActive,
			interfaces.EventJobCompleted,
		}, sequence(id), "lifecycle updates for job %s must arrive in submission order", id)
	}
}

func TestEveryTerminalJobGetsAnAuditRow(t *testing.T) {
	var calls int32
	exec := &scriptedExecutor{name: "noop", fn: func(ctx, page context.Context, job *models.Job) (*models.ActionResult, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return &models.ActionResult{Success: true}, nil
		}
		return &models.ActionResult{Success: false, Message: "console said no"}, nil
	}}

	h := newHarness(t, exec, "60s")

	first, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)
	waitTerminal(t, h, first)

	second, err := h.service.Submit(context.Background(), newJob("tenant-1", "target-1"))
	require.NoError(t, err)
	waitTerminal(t, h, second)

	assert.Equal(t, 2, h.audits.count(), "one audit row per terminal job")
}

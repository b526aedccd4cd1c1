package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/interfaces"
)

func TestSubscribeNilHandler(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	err := svc.Subscribe(interfaces.EventJobWaiting, nil)
	assert.Error(t, err)
}

func TestPublishSyncDeliversToAllSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var count atomic.Int32
	handler := func(ctx context.Context, event interfaces.Event) error {
		count.Add(1)
		return nil
	}

	require.NoError(t, svc.Subscribe(interfaces.EventJobCompleted, handler))
	require.NoError(t, svc.Subscribe(interfaces.EventJobCompleted, handler))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobCompleted})
	require.NoError(t, err)
	assert.Equal(t, int32(2), count.Load())
}

func TestPublishSyncCollectsHandlerErrors(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	require.NoError(t, svc.Subscribe(interfaces.EventJobFailed, func(ctx context.Context, event interfaces.Event) error {
		return fmt.Errorf("handler broke")
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobFailed})
	assert.Error(t, err)
}

func TestPublishAsyncDoesNotBlock(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	done := make(chan struct{})
	require.NoError(t, svc.Subscribe(interfaces.EventScreenshotCaptured, func(ctx context.Context, event interfaces.Event) error {
		close(done)
		return nil
	}))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventScreenshotCaptured}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestPublishNoSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobActive}))
	assert.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobActive}))
}

package interfaces

import "context"

// BrowserProvider owns the cached live browser sessions, one per
// (tenant, target) pair. Callers borrow the returned page context for the
// duration of one job and must not cancel or close it - eviction is the
// provider's job. Exclusive use is guaranteed by the scheduler's per-group
// serialization, not by locking here.
type BrowserProvider interface {
	// Acquire returns the cached live page for (tenantID, targetID),
	// creating and probing a fresh one when absent
	Acquire(ctx context.Context, tenantID, targetID string) (context.Context, error)

	// Reset steers the page back to a neutral state after an abandoned
	// attempt; on failure the entry is evicted so the next Acquire starts
	// fresh
	Reset(tenantID, targetID string)

	// Evict closes and forgets the cached session for (tenantID, targetID)
	Evict(tenantID, targetID string)

	// EvictIdle drops sessions unused for longer than the configured TTL
	EvictIdle()

	// Shutdown closes every cached session
	Shutdown()
}

// ScreenshotCapturer captures a full-page image from a live page
type ScreenshotCapturer interface {
	Capture(page context.Context) ([]byte, error)
}

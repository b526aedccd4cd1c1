// -----------------------------------------------------------------------
// Browser Session Cache - One live chromedp browser per (tenant, target)
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/common"
)

// entry holds one live browser instance and the cancels that tear it down
type entry struct {
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	lastUsed        time.Time
}

// Cache keeps one warm browser session per (tenant, target) pair so repeated
// jobs against the same console reuse cookies and avoid cold starts. Exclusive
// use of each entry is guaranteed upstream by per-target serialization, so the
// mutex here only protects the map itself.
type Cache struct {
	sessions     map[string]*entry
	mu           sync.Mutex
	config       common.BrowserConfig
	idleTTL      time.Duration
	probeTimeout time.Duration
	logger       arbor.ILogger
	shutdown     bool
}

// NewCache creates a browser session cache
func NewCache(config common.BrowserConfig, logger arbor.ILogger) *Cache {
	idleTTL, err := time.ParseDuration(config.IdleTTL)
	if err != nil || idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	probeTimeout, err := time.ParseDuration(config.ProbeTimeout)
	if err != nil || probeTimeout <= 0 {
		probeTimeout = 30 * time.Second
	}

	return &Cache{
		sessions:     make(map[string]*entry),
		config:       config,
		idleTTL:      idleTTL,
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}

func sessionKey(tenantID, targetID string) string {
	return tenantID + "|" + targetID
}

// Acquire returns the cached live page for (tenantID, targetID), creating and
// probing a fresh browser instance when none is cached. The returned context is
// the chromedp browser context; callers must not cancel it.
func (c *Cache) Acquire(ctx context.Context, tenantID, targetID string) (context.Context, error) {
	key := sessionKey(tenantID, targetID)

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil, fmt.Errorf("browser cache is shut down")
	}
	if e, ok := c.sessions[key]; ok {
		// A dead browser context reports an error; replace it
		if e.browserCtx.Err() == nil {
			e.lastUsed = time.Now()
			c.mu.Unlock()
			c.logger.Debug().
				Str("tenant_id", tenantID).
				Str("target_id", targetID).
				Msg("Reusing cached browser session")
			return e.browserCtx, nil
		}
		c.closeEntryLocked(key, e)
	}
	c.mu.Unlock()

	e, err := c.createInstance(ctx, tenantID, targetID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		e.browserCancel()
		e.allocatorCancel()
		return nil, fmt.Errorf("browser cache is shut down")
	}
	c.sessions[key] = e
	return e.browserCtx, nil
}

// createInstance launches a fresh browser and verifies it responds before
// handing it out
func (c *Cache) createInstance(ctx context.Context, tenantID, targetID string) (*entry, error) {
	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.config.Headless),
		chromedp.Flag("disable-gpu", c.config.DisableGPU),
		chromedp.Flag("no-sandbox", c.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(c.config.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(
		context.Background(),
		allocatorOpts...,
	)

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// Startup probe: browsers that cannot reach about:blank are useless
	probeCtx, probeCancel := context.WithTimeout(browserCtx, c.probeTimeout)
	defer probeCancel()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser instance failed startup probe: %w", err)
	}

	c.logger.Debug().
		Str("tenant_id", tenantID).
		Str("target_id", targetID).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser session created")

	return &entry{
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		lastUsed:        time.Now(),
	}, nil
}

// Reset steers the cached page back to about:blank after an abandoned attempt
// so leftover navigation state cannot leak into the next job. If the page does
// not respond within a short deadline the whole session is evicted instead.
func (c *Cache) Reset(tenantID, targetID string) {
	key := sessionKey(tenantID, targetID)

	c.mu.Lock()
	e, ok := c.sessions[key]
	c.mu.Unlock()
	if !ok {
		return
	}

	resetCtx, cancel := context.WithTimeout(e.browserCtx, 5*time.Second)
	defer cancel()

	if err := chromedp.Run(resetCtx, chromedp.Navigate("about:blank")); err != nil {
		c.logger.Warn().
			Err(err).
			Str("tenant_id", tenantID).
			Str("target_id", targetID).
			Msg("Page reset failed, evicting session")
		c.Evict(tenantID, targetID)
		return
	}

	c.logger.Debug().
		Str("tenant_id", tenantID).
		Str("target_id", targetID).
		Msg("Page reset to blank")
}

// Evict closes and forgets the cached session for (tenantID, targetID)
func (c *Cache) Evict(tenantID, targetID string) {
	key := sessionKey(tenantID, targetID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.sessions[key]; ok {
		c.closeEntryLocked(key, e)
		c.logger.Info().
			Str("tenant_id", tenantID).
			Str("target_id", targetID).
			Msg("Browser session evicted")
	}
}

// EvictIdle drops sessions unused for longer than the configured TTL
func (c *Cache) EvictIdle() {
	cutoff := time.Now().Add(-c.idleTTL)

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, e := range c.sessions {
		if e.lastUsed.Before(cutoff) {
			c.closeEntryLocked(key, e)
			evicted++
		}
	}

	if evicted > 0 {
		c.logger.Info().
			Int("evicted", evicted).
			Int("remaining", len(c.sessions)).
			Msg("Idle browser sessions evicted")
	}
}

// Shutdown closes every cached session. Subsequent Acquire calls fail.
func (c *Cache) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return
	}
	c.shutdown = true

	count := len(c.sessions)
	for key, e := range c.sessions {
		c.closeEntryLocked(key, e)
	}

	c.logger.Info().
		Int("sessions_closed", count).
		Msg("Browser cache shut down")
}

// closeEntryLocked cancels an entry's contexts and removes it from the map.
// Must be called with the mutex held.
func (c *Cache) closeEntryLocked(key string, e *entry) {
	e.browserCancel()
	e.allocatorCancel()
	delete(c.sessions, key)
}

// Stats returns counters for the status endpoint
func (c *Cache) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	return map[string]interface{}{
		"cached_sessions": len(c.sessions),
		"idle_ttl":        c.idleTTL.String(),
	}
}

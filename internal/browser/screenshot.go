package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Screenshotter captures full-page PNG images from a live chromedp page
type Screenshotter struct {
	timeout time.Duration
}

// NewScreenshotter creates a screenshot capturer with a per-capture deadline
func NewScreenshotter(timeout time.Duration) *Screenshotter {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Screenshotter{timeout: timeout}
}

// Capture takes a full screenshot of the current page state. The deadline keeps
// a wedged renderer from stalling the caller's capture loop.
func (s *Screenshotter) Capture(page context.Context) ([]byte, error) {
	captureCtx, cancel := context.WithTimeout(page, s.timeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(captureCtx, chromedp.FullScreenshot(&buf, 70)); err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}

	return buf, nil
}

package login

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/panelops/internal/models"
)

// driver abstracts the browser interactions the login machine performs so the
// state machine can be exercised without a real browser
type driver interface {
	Navigate(page context.Context, url string) error
	Fill(page context.Context, selector, value string) error
	Click(page context.Context, selector string) error
	Visible(page context.Context, selector string) (bool, error)
	CaptureElement(page context.Context, selector string) ([]byte, error)
	CurrentURL(page context.Context) (string, error)
	Cookies(page context.Context) ([]models.SessionCookie, error)
}

// chromeDriver drives a live chromedp page. Every call derives a step deadline
// from the page context so a wedged console cannot stall the machine.
type chromeDriver struct {
	stepTimeout time.Duration
}

func newChromeDriver(stepTimeout time.Duration) *chromeDriver {
	if stepTimeout <= 0 {
		stepTimeout = 20 * time.Second
	}
	return &chromeDriver{stepTimeout: stepTimeout}
}

func (d *chromeDriver) run(page context.Context, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(page, d.stepTimeout)
	defer cancel()
	return chromedp.Run(stepCtx, actions...)
}

func (d *chromeDriver) Navigate(page context.Context, url string) error {
	return d.run(page,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (d *chromeDriver) Fill(page context.Context, selector, value string) error {
	return d.run(page,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (d *chromeDriver) Click(page context.Context, selector string) error {
	return d.run(page,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (d *chromeDriver) Visible(page context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		const style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden' && el.offsetParent !== null;
	})()`, selector)

	var visible bool
	if err := d.run(page, chromedp.Evaluate(script, &visible)); err != nil {
		return false, err
	}
	return visible, nil
}

func (d *chromeDriver) CaptureElement(page context.Context, selector string) ([]byte, error) {
	var buf []byte
	err := d.run(page,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *chromeDriver) CurrentURL(page context.Context) (string, error) {
	var url string
	if err := d.run(page, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (d *chromeDriver) Cookies(page context.Context) ([]models.SessionCookie, error) {
	var cookies []models.SessionCookie
	err := d.run(page, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		cookies = make([]models.SessionCookie, 0, len(raw))
		for _, c := range raw {
			cookies = append(cookies, models.SessionCookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  c.Expires,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
				SameSite: string(c.SameSite),
			})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return cookies, nil
}

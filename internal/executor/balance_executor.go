// -----------------------------------------------------------------------
// Balance Query Executor - Reads an account balance off the console dashboard
// -----------------------------------------------------------------------

package executor

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/models"
)

const defaultBalanceSelector = ".account-balance"

// BalanceQueryExecutor navigates to the target's dashboard and scrapes the
// account balance cell. A bounce back to the login page is reported as
// NeedsLogin so the scheduler can re-authenticate and retry.
type BalanceQueryExecutor struct {
	targets     interfaces.TargetStorage
	stepTimeout time.Duration
	logger      arbor.ILogger
}

// NewBalanceQueryExecutor creates the built-in balance_query action executor
func NewBalanceQueryExecutor(targets interfaces.TargetStorage, stepTimeout time.Duration, logger arbor.ILogger) *BalanceQueryExecutor {
	if stepTimeout <= 0 {
		stepTimeout = 20 * time.Second
	}
	return &BalanceQueryExecutor{
		targets:     targets,
		stepTimeout: stepTimeout,
		logger:      logger,
	}
}

// ActionName returns "balance_query"
func (e *BalanceQueryExecutor) ActionName() string {
	return "balance_query"
}

// Execute loads the dashboard and extracts the balance text
func (e *BalanceQueryExecutor) Execute(ctx context.Context, page context.Context, job *models.Job) (*models.ActionResult, error) {
	target, err := e.targets.GetTarget(ctx, job.TargetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load target %s: %w", job.TargetID, err)
	}
	if target == nil {
		return nil, fmt.Errorf("unknown target %s", job.TargetID)
	}

	stepCtx, cancel := context.WithTimeout(page, e.stepTimeout)
	defer cancel()

	var currentURL, html string
	err = chromedp.Run(stepCtx,
		chromedp.Navigate(target.DashboardURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&currentURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("dashboard navigation failed: %w", err)
	}

	if bouncedToLogin(target, currentURL) {
		return &models.ActionResult{
			Success:    false,
			Message:    "console redirected to login page",
			NeedsLogin: true,
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard html: %w", err)
	}

	selector := defaultBalanceSelector
	if s, ok := job.Params["selector"].(string); ok && s != "" {
		selector = s
	}

	balance := strings.TrimSpace(doc.Find(selector).First().Text())
	if balance == "" {
		return &models.ActionResult{
			Success: false,
			Message: fmt.Sprintf("no balance found at selector %q", selector),
		}, nil
	}

	e.logger.Debug().
		Str("target_id", target.ID).
		Str("balance", balance).
		Msg("Balance extracted")

	return &models.ActionResult{
		Success: true,
		Message: "balance retrieved",
		Data:    map[string]interface{}{"balance": balance},
	}, nil
}

// bouncedToLogin reports whether the console redirected the page back to its
// login URL, the signal that the session is no longer authenticated
func bouncedToLogin(target *models.Target, rawURL string) bool {
	got, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	want, err := url.Parse(target.LoginURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(got.Host, want.Host) && strings.HasPrefix(got.Path, want.Path)
}

// -----------------------------------------------------------------------
// Login Machine - Drives a target console's login form to completion
// -----------------------------------------------------------------------

package login

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/common"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/models"
)

// Machine implements interfaces.LoginService. It walks one login attempt
// through navigate, fill, captcha solve, submit and outcome detection, then
// persists the captured cookies as the credential's current session.
type Machine struct {
	driver      driver
	solver      interfaces.CaptchaSolver
	sessions    interfaces.SessionStorage
	captchas    interfaces.CaptchaStorage
	maxAttempts int
	backoff     time.Duration
	logger      arbor.ILogger
}

// NewMachine creates the login state machine backed by a live chromedp driver
func NewMachine(
	config *common.LoginConfig,
	solver interfaces.CaptchaSolver,
	sessions interfaces.SessionStorage,
	captchas interfaces.CaptchaStorage,
	logger arbor.ILogger,
) *Machine {
	stepTimeout, err := time.ParseDuration(config.NavigationTimeout)
	if err != nil || stepTimeout <= 0 {
		stepTimeout = 20 * time.Second
	}
	backoff, err := time.ParseDuration(config.CaptchaBackoff)
	if err != nil || backoff <= 0 {
		backoff = 3 * time.Second
	}
	maxAttempts := config.MaxCaptchaAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	return &Machine{
		driver:      newChromeDriver(stepTimeout),
		solver:      solver,
		sessions:    sessions,
		captchas:    captchas,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger,
	}
}

// Login drives the target's login form on the given page. Targets with a
// captcha get up to the configured number of solve rounds with a fixed backoff
// between them; targets without one get a single round. Success is decided by
// URL comparison against the dashboard, not by scraping success banners.
func (m *Machine) Login(ctx context.Context, page context.Context, cred *models.Credential, target *models.Target) error {
	if cred.Empty() {
		return fmt.Errorf("credential %s has no usable username/password", cred.Ref)
	}

	hasCaptcha := target.Selectors.CaptchaImage != "" && target.Selectors.CaptchaField != ""
	attempts := 1
	if hasCaptcha {
		attempts = m.maxAttempts
	}

	m.logger.Info().
		Str("target_id", target.ID).
		Str("credential_ref", cred.Ref).
		Bool("captcha", hasCaptcha).
		Msg("Starting login")

	if err := m.driver.Navigate(page, target.LoginURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		captchaRecordID, err := m.submitForm(ctx, page, cred, target, hasCaptcha)
		if err != nil {
			return err
		}

		success, err := m.checkOutcome(page, target)
		if err != nil {
			return err
		}

		if success {
			if captchaRecordID != "" {
				m.markCaptcha(ctx, captchaRecordID, models.CaptchaOutcomeSuccess)
			}
			return m.persistSession(ctx, page, cred)
		}

		if captchaRecordID != "" {
			m.markCaptcha(ctx, captchaRecordID, models.CaptchaOutcomeFail)
		}

		// Without a captcha there is nothing retrying can fix
		if !hasCaptcha {
			m.logger.Warn().
				Str("target_id", target.ID).
				Str("credential_ref", cred.Ref).
				Msg("Login rejected")
			return ErrLoginRejected
		}

		if attempt < attempts {
			m.logger.Debug().
				Str("target_id", target.ID).
				Int("attempt", attempt).
				Int("max_attempts", attempts).
				Msg("Captcha round failed, retrying after backoff")

			select {
			case <-time.After(m.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}

			// Reload the login page so the console serves a fresh captcha
			if err := m.driver.Navigate(page, target.LoginURL); err != nil {
				return fmt.Errorf("failed to reload login page: %w", err)
			}
		}
	}

	m.logger.Warn().
		Str("target_id", target.ID).
		Str("credential_ref", cred.Ref).
		Int("attempts", attempts).
		Msg("Captcha attempts exhausted")

	return ErrCaptchaExhausted
}

// submitForm fills every login field and clicks submit. Returns the captcha
// record ID when a captcha round was performed.
func (m *Machine) submitForm(ctx context.Context, page context.Context, cred *models.Credential, target *models.Target, hasCaptcha bool) (string, error) {
	sel := target.Selectors

	if err := m.driver.Fill(page, sel.UsernameField, cred.Username); err != nil {
		return "", fmt.Errorf("failed to fill username: %w", err)
	}
	if err := m.driver.Fill(page, sel.PasswordField, cred.Password); err != nil {
		return "", fmt.Errorf("failed to fill password: %w", err)
	}

	var captchaRecordID string
	if hasCaptcha {
		image, err := m.driver.CaptureElement(page, sel.CaptchaImage)
		if err != nil {
			return "", fmt.Errorf("failed to capture captcha image: %w", err)
		}

		solution, err := m.solver.Solve(ctx, image)
		if err != nil {
			return "", fmt.Errorf("captcha solve failed: %w", err)
		}

		captchaRecordID = common.NewCaptchaID()

		imageRef := captchaRecordID + "/image"
		if err := m.captchas.SaveCaptchaImage(ctx, &models.CaptchaImage{
			ID:        imageRef,
			PNG:       image,
			CreatedAt: time.Now(),
		}); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to persist captcha image")
			imageRef = ""
		}

		record := &models.CaptchaRecord{
			ID:            captchaRecordID,
			TargetID:      target.ID,
			ImageRef:      imageRef,
			ModelResponse: solution,
			Outcome:       models.CaptchaOutcomePending,
			CreatedAt:     time.Now(),
		}
		if err := m.captchas.SaveCaptcha(ctx, record); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to record captcha attempt")
		}

		if err := m.driver.Fill(page, sel.CaptchaField, solution); err != nil {
			return captchaRecordID, fmt.Errorf("failed to fill captcha field: %w", err)
		}
	}

	if err := m.driver.Click(page, sel.SubmitButton); err != nil {
		return captchaRecordID, fmt.Errorf("failed to click submit: %w", err)
	}

	return captchaRecordID, nil
}

// checkOutcome decides whether the submit landed on the dashboard. A matching
// URL with the password field still visible is treated as a failed attempt;
// some consoles render the dashboard route with the login form re-embedded.
func (m *Machine) checkOutcome(page context.Context, target *models.Target) (bool, error) {
	currentURL, err := m.driver.CurrentURL(page)
	if err != nil {
		return false, fmt.Errorf("failed to read page URL: %w", err)
	}

	if !target.MatchesDashboard(currentURL) {
		return false, nil
	}

	passwordVisible, err := m.driver.Visible(page, target.Selectors.PasswordField)
	if err != nil {
		// Visibility probe failures should not flip a URL match into success
		// ambiguity; treat the probe error as non-fatal and trust the URL
		m.logger.Debug().Err(err).Msg("Password field visibility probe failed")
		return true, nil
	}

	if passwordVisible {
		m.logger.Warn().
			Str("target_id", target.ID).
			Str("url", currentURL).
			Msg("Dashboard URL reached but login form still visible")
		return false, nil
	}

	return true, nil
}

// persistSession captures the browser cookies and stores them as the
// credential's single current session
func (m *Machine) persistSession(ctx context.Context, page context.Context, cred *models.Credential) error {
	cookies, err := m.driver.Cookies(page)
	if err != nil {
		return fmt.Errorf("failed to capture session cookies: %w", err)
	}

	if err := m.sessions.DeactivateSessions(ctx, cred.UserID, cred.Ref); err != nil {
		return fmt.Errorf("failed to deactivate previous sessions: %w", err)
	}

	session := &models.PersistedSession{
		ID:           common.NewSessionID(),
		UserID:       cred.UserID,
		CredentialID: cred.Ref,
		Cookies:      cookies,
		IsActive:     true,
		ExpiresAt:    models.EarliestCookieExpiry(cookies),
		CreatedAt:    time.Now(),
	}

	if err := m.sessions.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	m.logger.Info().
		Str("session_id", session.ID).
		Str("credential_ref", cred.Ref).
		Int("cookie_count", len(cookies)).
		Msg("Login succeeded, session persisted")

	return nil
}

// markCaptcha updates a captcha record's final outcome
func (m *Machine) markCaptcha(ctx context.Context, recordID string, outcome models.CaptchaOutcome) {
	if err := m.captchas.UpdateCaptchaOutcome(ctx, recordID, outcome); err != nil {
		m.logger.Warn().Err(err).Str("record_id", recordID).Msg("Failed to update captcha outcome")
	}
}

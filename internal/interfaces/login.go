package interfaces

import (
	"context"

	"github.com/ternarybob/panelops/internal/models"
)

// LoginService performs one authenticated login against a target's console,
// including the bounded captcha solve-and-verify loop. Reused by explicit
// "login" jobs and by automatic re-authentication on session expiry.
type LoginService interface {
	// Login drives the target's login form on the given page. On success the
	// captured cookies are persisted as the current session for the
	// credential's user. Returns ErrCaptchaExhausted after the attempt budget
	// is spent, ErrLoginRejected for non-captcha rejection.
	Login(ctx context.Context, page context.Context, cred *models.Credential, target *models.Target) error
}

// CaptchaSolver delegates captcha images to an external vision model
type CaptchaSolver interface {
	// Solve returns the text the model reads from the captcha image
	Solve(ctx context.Context, imagePNG []byte) (string, error)
}

package models

import (
	"net/url"
	"strings"
)

// LoginSelectors are the CSS selectors the login machine drives on a target's
// login page. Selector data replaces per-target automation scripts: executors
// and the login machine are typed code resolved by name, configured by data.
type LoginSelectors struct {
	UsernameField string `json:"username_field"`
	PasswordField string `json:"password_field"`
	CaptchaImage  string `json:"captcha_image,omitempty"` // Empty when the target has no captcha
	CaptchaField  string `json:"captcha_field,omitempty"`
	SubmitButton  string `json:"submit_button"`
}

// Target describes one external operator console accounts are managed on.
// TargetID is the unit of serialization: at most one job executes against a
// target's live browser page at a time.
type Target struct {
	ID           string         `json:"id" badgerhold:"key"`
	TenantID     string         `json:"tenant_id"`
	Name         string         `json:"name"`
	LoginURL     string         `json:"login_url"`
	DashboardURL string         `json:"dashboard_url"` // Post-login landing page, used for outcome detection
	Selectors    LoginSelectors `json:"selectors"`
}

// MatchesDashboard reports whether rawURL lands on the target's dashboard:
// same host and the dashboard path as a prefix. Operator UIs are inconsistent
// about success banners, so login outcome is decided by URL comparison.
func (t *Target) MatchesDashboard(rawURL string) bool {
	got, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	want, err := url.Parse(t.DashboardURL)
	if err != nil {
		return false
	}
	if !strings.EqualFold(got.Host, want.Host) {
		return false
	}
	return strings.HasPrefix(got.Path, want.Path)
}

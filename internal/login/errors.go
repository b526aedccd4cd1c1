package login

import "errors"

var (
	// ErrCaptchaExhausted means every captcha round in the attempt budget was
	// spent without landing on the dashboard
	ErrCaptchaExhausted = errors.New("captcha attempts exhausted")

	// ErrLoginRejected means the console refused the credentials for a reason
	// retrying will not fix
	ErrLoginRejected = errors.New("login rejected by target")

	// ErrCredentialsMissing means no usable stored credential exists for the
	// job's credential reference
	ErrCredentialsMissing = errors.New("credentials missing")
)

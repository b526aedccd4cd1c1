package models

import "time"

// CaptchaOutcome is the final result of one captcha solve attempt
type CaptchaOutcome string

const (
	CaptchaOutcomePending CaptchaOutcome = "pending"
	CaptchaOutcomeSuccess CaptchaOutcome = "success"
	CaptchaOutcomeFail    CaptchaOutcome = "fail"
)

// CaptchaRecord logs one vision-model solve attempt. Written once with outcome
// pending, then updated when the encompassing login attempt's result is known.
// Observability only; never consulted for control flow.
type CaptchaRecord struct {
	ID            string         `json:"id" badgerhold:"key"`
	TargetID      string         `json:"target_id"`
	ImageRef      string         `json:"image_ref"` // Storage key of the captured captcha image
	ModelResponse string         `json:"model_response"`
	Outcome       CaptchaOutcome `json:"outcome"`
	CreatedAt     time.Time      `json:"created_at"`
}

// CaptchaImage holds the captured captcha PNG, stored apart from the attempt
// record so listing records stays cheap. Keyed by CaptchaRecord.ImageRef.
type CaptchaImage struct {
	ID        string    `json:"id" badgerhold:"key"`
	PNG       []byte    `json:"png"`
	CreatedAt time.Time `json:"created_at"`
}

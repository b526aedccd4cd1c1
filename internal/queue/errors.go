package queue

import "errors"

var (
	// ErrInvalidJob means the submission was missing required fields
	ErrInvalidJob = errors.New("invalid job submission")

	// ErrJobNotFound means no job with that ID exists for the tenant
	ErrJobNotFound = errors.New("job not found")
)

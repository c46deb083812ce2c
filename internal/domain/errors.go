package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrQuestionRequired indicates a blank or missing question
	ErrQuestionRequired = errors.New("question is required")
	// ErrMissingCredentials indicates no usable provider API key
	ErrMissingCredentials = errors.New("missing API keys")
	// ErrRateLimited indicates rate limit exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
)

package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrValidation            = errors.New("malformed upstream payload")
	ErrRateLimited           = errors.New("upstream rate limited")
	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
	ErrModelUnavailable      = errors.New("model service unavailable")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

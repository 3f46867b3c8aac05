package contracts

import "errors"

// Provider error taxonomy. Providers wrap these with context.
var (
	ErrNotFound            = errors.New("instrument not found")
	ErrRateLimited         = errors.New("provider rate limited")
	ErrTimeout             = errors.New("provider call timed out")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

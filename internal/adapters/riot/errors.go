package riot

import "errors"

// Sentinel kinds for upstream call errors.
var (
	// ErrThrottled marks a 429. It is retried and only surfaces wrapped in
	// ErrRetriesExhausted.
	ErrThrottled = errors.New("upstream throttled")
	// ErrNotFound is terminal for one entity, never for the run.
	ErrNotFound = errors.New("upstream entity not found")
	// ErrUnavailable covers transport failures, timeouts and non-2xx replies.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrRetriesExhausted is returned once the attempt budget is spent.
	ErrRetriesExhausted = errors.New("upstream retries exhausted")
)

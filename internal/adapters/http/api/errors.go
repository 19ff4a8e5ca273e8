package api

import "errors"

// ErrServe is returned when the listener stops for a reason other than shutdown.
var ErrServe = errors.New("http serve failed")

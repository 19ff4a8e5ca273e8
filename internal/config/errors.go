package config

import (
	"errors"
)

// Sentinel error kinds for this package. Both are fatal at startup.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

package config

import "errors"

// Sentinel error kinds. Load wraps source failures in ErrLoadConfig and
// Validate reports rejected settings as ErrInvalidConfig.
var (
	ErrLoadConfig    = errors.New("load config failed")
	ErrInvalidConfig = errors.New("invalid config")
)

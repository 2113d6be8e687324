package driver

import "time"

// Defaults applied to zero config fields.
const (
	DefaultMaxInvocations = 1000
	DefaultTimeout        = 30 * time.Second
	DefaultConflictDelay  = time.Second
)

package driver

import "errors"

// Error constants.
var (
	ErrMaxInvocations = errors.New("max invocations reached")
	ErrReportFailed   = errors.New("report failed")
	ErrInconsistent   = errors.New("inconsistent report")
)

package service

import "errors"

// Sentinel kinds returned by the service and processor.
var (
	ErrReportNotFound       = errors.New("report not found")
	ErrReportExpired        = errors.New("report expired")
	ErrConcurrentAdvance    = errors.New("report is being advanced concurrently")
	ErrMetadataUnavailable  = errors.New("asset metadata unavailable")
	ErrInventoryUnavailable = errors.New("wallet inventory unavailable")
	ErrInvalidRequest       = errors.New("invalid request")
)

package driver

import "time"

// Config holds the settings of one drive run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Owner          string        // Wallet to create a report for
	AssetIDs       []string      // Explicit selection; empty means the whole inventory
	ReportID       string        // Resume an existing report instead of creating one
	MaxInvocations int           // Upper bound on advance calls
	Timeout        time.Duration // HTTP request timeout
	ConflictDelay  time.Duration // Wait after a 409 before retrying
	LogFile        string        // Log file for drive output
	Verbose        bool          // Log every invocation
}

// Stats holds drive statistics.
type Stats struct {
	Invocations int
	Queued      int
	Conflicts   int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}

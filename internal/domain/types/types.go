// Package types contains common types used across the application
package types

import "github.com/okian/appraisal/internal/domain/model"

// Result statuses returned by an advance call. Besides the persisted report
// statuses, an advance may report that the report is waiting for capacity.
const (
	StatusQueued = "queued"
)

// Progress is the response of one advance invocation.
type Progress struct {
	ReportID        string  `json:"report_id"`
	Status          string  `json:"status"`
	ProcessedCount  int     `json:"processed_count"`
	TotalCount      int     `json:"total_count"`
	ProgressPercent float64 `json:"progress_percent"`
	// RetryAfterMs hints how long the caller should wait before the next
	// advance; zero once the report is terminal.
	RetryAfterMs int64 `json:"retry_after_ms"`
}

// Done reports whether the caller should stop re-invoking.
func (p Progress) Done() bool {
	return p.Status == string(model.StatusComplete) || p.Status == string(model.StatusFailed)
}

// ReportSummary is the read shape of a report.
type ReportSummary struct {
	Progress
	Owner     string `json:"owner"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	LastError string `json:"last_error,omitempty"`
	// Rows are exposed for every status, including partial and failed.
	Rows []model.ValuationRow `json:"rows"`
}

// Package model contains domain models passed between layers.
package model

import (
	"slices"
	"time"
)

// Status is the persisted lifecycle state of a report.
type Status string

// Report statuses.
const (
	StatusNotStarted Status = "not_started"
	StatusProcessing Status = "processing"
	StatusPartial    Status = "partial"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Terminal reports accept no further work.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Report is the persisted accumulator of one wallet valuation.
//
// SelectedIDs is fixed at creation. PendingIDs is the FIFO queue of ids not
// yet valued and Results the rows already written; once QueueInitialized is
// set, len(Results)+len(PendingIDs) == len(SelectedIDs).
type Report struct {
	ID               string         `json:"id"`
	Owner            string         `json:"owner"`
	Status           Status         `json:"status"`
	SelectedIDs      []string       `json:"selected_ids"`
	PendingIDs       []string       `json:"pending_ids"`
	QueueInitialized bool           `json:"queue_initialized"`
	Results          []ValuationRow `json:"results"`
	LastError        string         `json:"last_error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	// Version is bumped by every successful save and guards against
	// concurrent read-modify-write cycles.
	Version int64 `json:"version"`
}

// ProcessedCount is the number of rows accumulated so far.
func (r *Report) ProcessedCount() int { return len(r.Results) }

// TotalCount is the size of the original selection.
func (r *Report) TotalCount() int { return len(r.SelectedIDs) }

// InProgress reports whether the report holds an admission slot.
func (r *Report) InProgress() bool {
	return r.Status == StatusProcessing || r.Status == StatusPartial
}

// Expired reports whether the report is older than retention at now.
func (r *Report) Expired(now time.Time, retention time.Duration) bool {
	return retention > 0 && now.Sub(r.CreatedAt) > retention
}

// ProgressPercent is processed/total in [0,100]. An empty selection is 100.
func (r *Report) ProgressPercent() float64 {
	total := r.TotalCount()
	if total == 0 {
		return 100
	}
	return float64(r.ProcessedCount()) * 100 / float64(total)
}

// ProcessedIDs returns the asset ids that already have a row.
func (r *Report) ProcessedIDs() []string {
	out := make([]string, len(r.Results))
	for i, row := range r.Results {
		out[i] = row.AssetID
	}
	return out
}

// Clone returns a deep copy so callers can mutate without touching the
// stored record.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	c.SelectedIDs = slices.Clone(r.SelectedIDs)
	c.PendingIDs = slices.Clone(r.PendingIDs)
	c.Results = slices.Clone(r.Results)
	return &c
}

// ReportEvent is emitted after each persisted advance.
type ReportEvent struct {
	ReportID  string    `json:"report_id"`
	Owner     string    `json:"owner"`
	Status    Status    `json:"status"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	At        time.Time `json:"at"`
}

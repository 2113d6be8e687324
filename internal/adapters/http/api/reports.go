package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/appraisal/internal/domain/types"
)

const maxAssetIDs = 10_000

// ReportsHandler serves report creation, reads and advancing.
type ReportsHandler struct {
	deps Dependencies
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps Dependencies) *ReportsHandler {
	return &ReportsHandler{deps: deps}
}

// createRequest mirrors the OpenAPI schema for POST /reports.
type createRequest struct {
	Owner    string   `json:"owner"`
	AssetIDs []string `json:"asset_ids"`
}

func (c createRequest) validate() error {
	switch {
	case strings.TrimSpace(c.Owner) == "":
		return fmt.Errorf("%w: missing owner", ErrBadRequest)
	case len(c.AssetIDs) > maxAssetIDs:
		return fmt.Errorf("%w: at most %d asset_ids", ErrBadRequest, maxAssetIDs)
	}
	return nil
}

// HandleCreate handles POST /reports.
func (h *ReportsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid JSON body", ErrBadRequest))
		return
	}
	if err := req.validate(); err != nil {
		writeServiceError(w, err)
		return
	}
	sum, err := h.deps.CreateReport(r.Context(), req.Owner, req.AssetIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/reports/"+sum.ReportID)
	writeJSON(w, http.StatusCreated, sum)
}

// HandleGet handles GET /reports/{id}.
func (h *ReportsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	sum, err := h.deps.GetReport(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HandleAdvance handles POST /reports/{id}/advance. A queued report answers
// 202 with a retry hint.
func (h *ReportsHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	prog, err := h.deps.Advance(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if prog.Status == types.StatusQueued {
		status = http.StatusAccepted
	}
	if prog.RetryAfterMs > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", (prog.RetryAfterMs+999)/1000))
	}
	writeJSON(w, status, prog)
}

// -----------------------------------------------------------------------
// Job Handler - REST surface for job submission, status and cancellation
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/models"
	"github.com/ternarybob/panelops/internal/queue"
)

// JobHandler exposes the queue service over HTTP
type JobHandler struct {
	queueService interfaces.QueueService
	logger       arbor.ILogger
}

// NewJobHandler creates a job API handler
func NewJobHandler(queueService interfaces.QueueService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		queueService: queueService,
		logger:       logger,
	}
}

// submitRequest is the POST /api/jobs body
type submitRequest struct {
	TenantID      string                 `json:"tenant_id"`
	TargetID      string                 `json:"target_id"`
	ActionName    string                 `json:"action_name"`
	Params        map[string]interface{} `json:"params"`
	RequesterID   string                 `json:"requester_id"`
	CredentialRef string                 `json:"credential_ref"`
}

// SubmitJobHandler handles POST /api/jobs
func (h *JobHandler) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job := &models.Job{
		TenantID:      req.TenantID,
		TargetID:      req.TargetID,
		ActionName:    req.ActionName,
		Params:        req.Params,
		RequesterID:   req.RequesterID,
		CredentialRef: req.CredentialRef,
	}

	jobID, err := h.queueService.Submit(r.Context(), job)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidJob) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Job submission failed")
		WriteError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": jobID,
		"status": string(models.JobStatusWaiting),
	})
}

// JobRoutesHandler dispatches /api/jobs/{id} and /api/jobs/{id}/cancel
func (h *JobHandler) JobRoutesHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if path == "" {
		WriteError(w, http.StatusNotFound, "job ID is required")
		return
	}

	if strings.HasSuffix(path, "/cancel") {
		jobID := strings.TrimSuffix(path, "/cancel")
		h.cancelJob(w, r, strings.TrimSuffix(jobID, "/"))
		return
	}

	h.getJobStatus(w, r, path)
}

// getJobStatus handles GET /api/jobs/{id}?tenant_id=
func (h *JobHandler) getJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		WriteError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	view, err := h.queueService.GetStatus(r.Context(), jobID, tenantID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Status lookup failed")
		WriteError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	WriteJSON(w, http.StatusOK, view)
}

// cancelJob handles POST /api/jobs/{id}/cancel?tenant_id=
func (h *JobHandler) cancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		WriteError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	cancelled, err := h.queueService.Cancel(r.Context(), jobID, tenantID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Cancel failed")
		WriteError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":    jobID,
		"cancelled": cancelled,
	})
}

// TargetJobsHandler handles GET /api/targets/{id}/jobs?tenant_id=&status=
func (h *JobHandler) TargetJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/targets/")
	targetID := strings.TrimSuffix(path, "/jobs")
	if targetID == "" || targetID == path {
		WriteError(w, http.StatusNotFound, "target ID is required")
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		WriteError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	status := models.JobStatus(r.URL.Query().Get("status"))

	jobs, err := h.queueService.ListGroupJobs(r.Context(), tenantID, targetID, status)
	if err != nil {
		h.logger.Error().Err(err).Str("target_id", targetID).Msg("Job listing failed")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	views := make([]*models.JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, job.View())
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"target_id": targetID,
		"count":     len(views),
		"jobs":      views,
	})
}

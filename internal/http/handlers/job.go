package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	jobdomain "github.com/rmhgeo/jobengine/internal/domain/jobs"
	"github.com/rmhgeo/jobengine/internal/http/response"
	"github.com/rmhgeo/jobengine/internal/jobs/gateway"
	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
)

// JobHandler is the Submission Gateway's HTTP adapter (spec §4.4, §6).
type JobHandler struct {
	gw *gateway.Gateway
}

func NewJobHandler(gw *gateway.Gateway) *JobHandler {
	return &JobHandler{gw: gw}
}

type submitJobRequest struct {
	Parameters map[string]any `json:"parameters"`
}

// POST /jobs/:job_type
func (h *JobHandler) SubmitJob(c *gin.Context) {
	jobType := c.Param("job_type")
	var req submitJobRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
			return
		}
	}

	result, err := h.gw.Submit(c.Request.Context(), jobType, req.Parameters)
	if err != nil {
		if errors.Is(err, gateway.ErrUnknownJobType) {
			response.RespondError(c, http.StatusNotFound, "unknown_job_type", err)
			return
		}
		if errors.Is(err, joberrors.ErrInvalidArgument) {
			response.RespondError(c, http.StatusBadRequest, "invalid_parameters", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "submit_job_failed", err)
		return
	}

	status := http.StatusAccepted
	if result.Deduplicated {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"job_id":       result.JobID,
		"deduplicated": result.Deduplicated,
		"status":       result.Status,
	})
}

// GET /jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	job, err := h.gw.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, joberrors.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "get_job_failed", err)
		return
	}

	stageResults, err := job.StageResultsMap()
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "decode_stage_results_failed", err)
		return
	}

	response.RespondOK(c, gin.H{"job": jobView(job, stageResults)})
}

// POST /jobs/:job_id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if err := h.gw.Cancel(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, joberrors.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "cancel_job_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"job_id": jobID, "status": jobdomain.JobFailed})
}

// jobView renders the GET /jobs/{job_id} poll response (spec §6): current
// status/stage, and a per-stage summary so a caller never has to decode
// stage_results itself.
func jobView(job *jobdomain.Job, stageResults map[string]jobdomain.StageResult) gin.H {
	stages := make(gin.H, len(stageResults))
	for key, sr := range stageResults {
		stages[key] = gin.H{
			"status":           sr.Status,
			"task_count":       sr.TaskCount,
			"successful_tasks": sr.SuccessfulTasks,
			"failed_tasks":     sr.FailedTasks,
			"success_rate":     sr.SuccessRate,
			"completed_at":     sr.CompletedAt,
		}
	}
	return gin.H{
		"job_id":        job.JobID,
		"job_type":      job.JobType,
		"status":        job.Status,
		"stage":         job.Stage,
		"total_stages":  job.TotalStages,
		"stage_results": stages,
		"result_data":   job.ResultData,
		"error_details": job.ErrorDetails,
		"created_at":    job.CreatedAt,
		"updated_at":    job.UpdatedAt,
	}
}

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/service"
)

type jobResponse struct {
	JobID       uuid.UUID  `json:"jobId"`
	FileID      uuid.UUID  `json:"fileId"`
	OrgID       uuid.UUID  `json:"orgId"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func jobToResponse(job *models.Job) jobResponse {
	return jobResponse{
		JobID:       job.JobID,
		FileID:      job.FileID,
		OrgID:       job.OrgID,
		Status:      string(job.Status),
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
	}
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID string `json:"fileId"`
		OrgID  string `json:"organizationId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: malformed body: %v", service.ErrValidation, err))
		return
	}

	fileID, err := uuid.Parse(req.FileID)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: fileId must be a UUID", service.ErrValidation))
		return
	}

	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: organizationId must be a UUID", service.ErrValidation))
		return
	}

	job, err := s.jobs.CreateJob(r.Context(), fileID, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"jobId":   job.JobID,
		"fileId":  job.FileID,
		"status":  string(job.Status),
		"message": "job queued for transcription",
	})
}

func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathUUID(r, "jobID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	scope, err := tenantScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	job, err := s.jobs.GetJobStatus(r.Context(), jobID, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *Server) handleGetJobResult(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathUUID(r, "jobID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	scope, err := tenantScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.jobs.GetJobResult(r.Context(), jobID, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":      result.JobID,
		"transcript": result.Transcript,
		"sentiment":  result.Sentiment,
		"metadata":   result.Metadata,
		"createdAt":  result.CreatedAt,
	})
}

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

type organizationResponse struct {
	OrgID             uuid.UUID  `json:"orgId"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Contact           string     `json:"contact,omitempty"`
	MaxUsers          int        `json:"maxUsers"`
	MaxConcurrentJobs int        `json:"maxConcurrentJobs"`
	TotalMemberCount  int        `json:"totalMemberCount"`
	ArchivedAt        *time.Time `json:"archivedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func orgResponse(org *models.Organization) organizationResponse {
	return organizationResponse{
		OrgID:             org.OrgID,
		Name:              org.Name,
		Email:             org.Email,
		Contact:           org.Contact,
		MaxUsers:          org.EffectiveMaxUsers(),
		MaxConcurrentJobs: org.EffectiveMaxConcurrentJobs(),
		TotalMemberCount:  org.TotalMemberCount,
		ArchivedAt:        org.ArchivedAt,
		CreatedAt:         org.CreatedAt,
	}
}

func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name              string `json:"name"`
		Email             string `json:"email"`
		Contact           string `json:"contact"`
		MaxUsers          *int   `json:"maxUsers"`
		MaxConcurrentJobs *int   `json:"maxConcurrentJobs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: malformed body: %v", service.ErrValidation, err))
		return
	}

	org, err := s.tenants.CreateOrganization(r.Context(), req.Name, req.Email, req.Contact, req.MaxUsers, req.MaxConcurrentJobs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, orgResponse(org))
}

func (s *Server) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	org, err := s.tenants.GetOrganization(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, orgResponse(org))
}

func (s *Server) handleArchiveOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.tenants.ArchiveOrganization(r.Context(), orgID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	users, jobs, err := s.tenants.QuotaUsage(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": map[string]int{
			"used":      users.Used,
			"limit":     users.Limit,
			"remaining": users.Remaining(),
		},
		"concurrentJobs": map[string]int{
			"used":      jobs.Used,
			"limit":     jobs.Limit,
			"remaining": jobs.Remaining(),
		},
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathUUID(r, "orgID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: malformed body: %v", service.ErrValidation, err))
		return
	}

	user, err := s.tenants.CreateUser(r.Context(), orgID, req.Name, req.Email, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"userId": user.UserID,
		"orgId":  user.OrgID,
		"name":   user.Name,
		"email":  user.Email,
		"role":   user.Role,
	})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	scope, err := tenantScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.tenants.DeleteUser(r.Context(), userID, scope); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	report := s.cleanup.RunOnce(r.Context())
	writeJSON(w, http.StatusOK, report)
}

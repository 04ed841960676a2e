package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/service"
)

type fileResponse struct {
	FileID     uuid.UUID `json:"fileId"`
	OrgID      uuid.UUID `json:"orgId"`
	Filename   string    `json:"filename"`
	Mimetype   string    `json:"mimetype"`
	SizeBytes  int64     `json:"sizeBytes"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func recordResponse(rec *models.StorageRecord) fileResponse {
	return fileResponse{
		FileID:     rec.FileID,
		OrgID:      rec.OrgID,
		Filename:   rec.Filename,
		Mimetype:   rec.Mimetype,
		SizeBytes:  rec.SizeBytes,
		UploadedAt: rec.UploadedAt,
	}
}

// handleUpload accepts a multipart form with a "file" part and an
// "organizationId" field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(models.MaxUploadBytes); err != nil {
		writeError(w, r, fmt.Errorf("%w: malformed multipart body: %v", service.ErrValidation, err))
		return
	}

	orgID, err := uuid.Parse(r.FormValue("organizationId"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: organizationId must be a UUID", service.ErrValidation))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: file part is required", service.ErrValidation))
		return
	}
	defer file.Close()

	mimetype := header.Header.Get("Content-Type")
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}

	rec, err := s.storage.Upload(r.Context(), file, header.Filename, mimetype, header.Size, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, recordResponse(rec))
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathUUID(r, "fileID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	scope, err := tenantScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := s.storage.Get(r.Context(), fileID, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, recordResponse(rec))
}

// handleDownload streams the stored audio back to the caller.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathUUID(r, "fileID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	scope, err := tenantScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body, rec, err := s.storage.Open(r.Context(), fileID, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", rec.Mimetype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Filename))
	if rec.SizeBytes > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", rec.SizeBytes))
	}
	_, _ = io.Copy(w, body)
}

func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathUUID(r, "fileID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	scope, err := tenantScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Filename string `json:"filename"`
		Mimetype string `json:"mimetype"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: malformed body: %v", service.ErrValidation, err))
		return
	}

	rec, err := s.storage.UpdateMetadata(r.Context(), fileID, scope, req.Filename, req.Mimetype)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, recordResponse(rec))
}

func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathUUID(r, "fileID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	scope, err := tenantScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	url, err := s.storage.PresignedURL(r.Context(), fileID, scope, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathUUID(r, "fileID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	scope, err := tenantScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.storage.Delete(r.Context(), fileID, scope); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

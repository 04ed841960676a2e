package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/audiolens/scribed/internal/service"
	"github.com/audiolens/scribed/internal/store"
)

// Server exposes the core subsystems over HTTP: the webhook ingestion
// endpoint, thin JSON handlers for uploads/jobs/tenants, health, and
// metrics. Handlers decode, delegate, and translate errors; all business
// rules live in the service layer.
type Server struct {
	tenants *service.Tenants
	storage *service.StorageManager
	jobs    *service.JobLifecycle
	cleanup *service.Cleanup

	webhookSecret string
}

// Config wires the server's collaborators.
type Config struct {
	Tenants       *service.Tenants
	Storage       *service.StorageManager
	Jobs          *service.JobLifecycle
	Cleanup       *service.Cleanup
	WebhookSecret string
}

// New creates the HTTP server facade.
func New(cfg Config) *Server {
	return &Server{
		tenants:       cfg.Tenants,
		storage:       cfg.Storage,
		jobs:          cfg.Jobs,
		cleanup:       cfg.Cleanup,
		webhookSecret: cfg.WebhookSecret,
	}
}

// Routes returns the request mux with all endpoints registered.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/organizations", s.handleCreateOrganization)
	mux.HandleFunc("GET /v1/organizations/{orgID}", s.handleGetOrganization)
	mux.HandleFunc("DELETE /v1/organizations/{orgID}", s.handleArchiveOrganization)
	mux.HandleFunc("GET /v1/organizations/{orgID}/quota", s.handleGetQuota)
	mux.HandleFunc("POST /v1/organizations/{orgID}/users", s.handleCreateUser)
	mux.HandleFunc("DELETE /v1/users/{userID}", s.handleDeleteUser)

	mux.HandleFunc("POST /v1/files", s.handleUpload)
	mux.HandleFunc("GET /v1/files/{fileID}", s.handleGetFile)
	mux.HandleFunc("GET /v1/files/{fileID}/content", s.handleDownload)
	mux.HandleFunc("PATCH /v1/files/{fileID}", s.handleUpdateFile)
	mux.HandleFunc("GET /v1/files/{fileID}/url", s.handlePresign)
	mux.HandleFunc("DELETE /v1/files/{fileID}", s.handleDeleteFile)

	mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /v1/jobs/{jobID}", s.handleGetJobStatus)
	mux.HandleFunc("GET /v1/jobs/{jobID}/result", s.handleGetJobResult)

	mux.HandleFunc("POST /webhooks/transcription", s.handleWebhook)

	mux.HandleFunc("POST /admin/cleanup", s.handleCleanup)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates the error taxonomy to a status code and a JSON
// error body. Unknown errors are reported generically and logged by the
// request middleware via the 5xx status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, service.ErrAuth):
		status = http.StatusUnauthorized
		message = err.Error()
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, store.ErrJobQuotaExceeded),
		errors.Is(err, store.ErrUserQuotaExceeded):
		status = http.StatusTooManyRequests
		message = err.Error()
	case errors.Is(err, store.ErrOrganizationNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrStorageRecordNotFound),
		errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrResultNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, store.ErrEmailTaken),
		errors.Is(err, store.ErrOrganizationArchived):
		status = http.StatusConflict
		message = err.Error()
	}

	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}

	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

// pathUUID parses a UUID path segment.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, service.ErrValidation
	}
	return id, nil
}

// tenantScope reads the optional orgId query parameter. Privileged callers
// omit it and act across tenants; everyone else is scoped to their own
// organization by the auth layer in front of this server.
func tenantScope(r *http.Request) (*uuid.UUID, error) {
	raw := r.URL.Query().Get("orgId")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, service.ErrValidation
	}
	return &id, nil
}

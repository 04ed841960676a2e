package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	scribehttp "github.com/audiolens/scribed/internal/http"
	"github.com/audiolens/scribed/internal/metrics"
	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/service"
	"github.com/audiolens/scribed/internal/store"
)

// WebhookSecretHeader carries the shared secret the external transcription
// worker was configured with. Header name matching is case-insensitive per
// net/http canonicalization.
const WebhookSecretHeader = "X-Scribed-Webhook-Secret"

// webhookPayload is the callback body posted by the external worker.
type webhookPayload struct {
	JobID      string         `json:"jobId"`
	Status     string         `json:"status"`
	Transcript string         `json:"transcript,omitempty"`
	Sentiment  string         `json:"sentiment,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// handleWebhook ingests an external callback: authenticate, validate,
// delegate to the job lifecycle manager, translate. Duplicate deliveries for
// terminal jobs acknowledge success without mutating anything; all
// state-machine rules live in the service layer.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(r.Header.Get(WebhookSecretHeader)), []byte(s.webhookSecret)) != 1 {
		metrics.WebhookDeliveries.WithLabelValues("auth_failed").Inc()
		zerolog.Ctx(r.Context()).Warn().
			Str("client_ip", scribehttp.ClientIPFromContext(r.Context())).
			Msg("Webhook delivery rejected, secret mismatch")
		writeError(w, r, fmt.Errorf("%w: webhook secret mismatch", service.ErrAuth))
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		metrics.WebhookDeliveries.WithLabelValues("invalid").Inc()
		writeError(w, r, fmt.Errorf("%w: malformed webhook body: %v", service.ErrValidation, err))
		return
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("invalid").Inc()
		writeError(w, r, fmt.Errorf("%w: jobId must be a UUID", service.ErrValidation))
		return
	}

	status := models.JobStatus(payload.Status)

	// Workers may optionally report pickup before delivering the outcome.
	if status == models.JobStatusProcessing {
		if err := s.jobs.MarkProcessing(r.Context(), jobID); err != nil {
			if errors.Is(err, store.ErrJobNotFound) {
				metrics.WebhookDeliveries.WithLabelValues("not_found").Inc()
			} else {
				metrics.WebhookDeliveries.WithLabelValues("error").Inc()
			}
			writeError(w, r, err)
			return
		}
		metrics.WebhookDeliveries.WithLabelValues("progress").Inc()
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if !status.IsTerminal() {
		metrics.WebhookDeliveries.WithLabelValues("invalid").Inc()
		writeError(w, r, fmt.Errorf("%w: status must be completed or failed, got %q", service.ErrValidation, payload.Status))
		return
	}

	outcome := &models.JobOutcome{
		Status:     status,
		Transcript: payload.Transcript,
		Sentiment:  payload.Sentiment,
		Metadata:   payload.Metadata,
		Error:      payload.Error,
	}

	applied, err := s.jobs.ApplyWebhookOutcome(r.Context(), jobID, outcome)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrJobNotFound):
			metrics.WebhookDeliveries.WithLabelValues("not_found").Inc()
		case errors.Is(err, service.ErrValidation):
			metrics.WebhookDeliveries.WithLabelValues("invalid").Inc()
		default:
			metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		}
		writeError(w, r, err)
		return
	}

	if applied {
		metrics.WebhookDeliveries.WithLabelValues("applied").Inc()
	} else {
		metrics.WebhookDeliveries.WithLabelValues("duplicate").Inc()
	}

	zerolog.Ctx(r.Context()).Info().
		Str("job_id", jobID.String()).
		Str("status", payload.Status).
		Msg("Webhook delivery applied")

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

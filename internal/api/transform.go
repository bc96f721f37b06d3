package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"kpopdemonz-relay/internal/archive"
	"kpopdemonz-relay/internal/models"
	"kpopdemonz-relay/internal/ratelimit"
	"kpopdemonz-relay/internal/replicate"
	"kpopdemonz-relay/internal/telemetry"
	"kpopdemonz-relay/internal/upload"
)

type transformResponse struct {
	Success      bool   `json:"success"`
	PredictionID string `json:"predictionId"`
	Status       string `json:"status"`
	StatusURL    string `json:"statusUrl"`
}

// handleTransform accepts one uploaded photo, fires the asynchronous
// generation request, and returns immediately with a polling URL.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, ratelimit.KeyForRequest(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "rate limit error", nil)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited", nil)
			return
		}
	}

	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		telemetry.SubmissionRejects.Inc()
		writeError(w, http.StatusBadRequest, "Invalid upload", nil)
		return
	}

	email := r.FormValue("email")
	name := r.FormValue("name")
	captchaToken := r.FormValue("captchaToken")

	if s.captcha != nil {
		if captchaToken == "" {
			telemetry.SubmissionRejects.Inc()
			writeError(w, http.StatusBadRequest, "CAPTCHA token is missing", nil)
			return
		}
		ok, err := s.captcha.Verify(ctx, captchaToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "CAPTCHA verification unavailable", nil)
			return
		}
		if !ok {
			telemetry.SubmissionRejects.Inc()
			writeError(w, http.StatusForbidden, "CAPTCHA verification failed", nil)
			return
		}
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		telemetry.SubmissionRejects.Inc()
		writeError(w, http.StatusBadRequest, "No image provided", nil)
		return
	}
	defer file.Close()

	if s.cfg.ReplicateAPIToken == "" {
		writeError(w, http.StatusInternalServerError, "API key not configured", map[string]any{
			"instructions": "Set the REPLICATE_API_TOKEN environment variable",
		})
		return
	}
	if s.cfg.PublicBaseURL == "" {
		writeError(w, http.StatusInternalServerError, "Public URL not configured", map[string]any{
			"instructions": "Set PUBLIC_BASE_URL to this service's externally reachable base URL",
		})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read upload", nil)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		telemetry.SubmissionRejects.Inc()
		writeError(w, http.StatusBadRequest, "Image too large", nil)
		return
	}

	normalized, contentType, err := upload.Normalize(data, header.Header.Get("Content-Type"), s.cfg.MaxImageDim)
	if err != nil {
		telemetry.SubmissionRejects.Inc()
		writeError(w, http.StatusBadRequest, "Unsupported or corrupt image", nil)
		return
	}

	pred, err := s.replicate.CreatePrediction(ctx, replicate.CreateInput{
		Prompt:       replicate.Prompt,
		ImageDataURI: upload.DataURI(normalized, contentType),
		WebhookURL:   s.cfg.PublicBaseURL + "/webhook",
	})
	if err != nil {
		var upstream *replicate.UpstreamError
		if errors.As(err, &upstream) {
			log.Printf("replicate rejected submission: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to start transformation", map[string]any{
				"details": upstream.Body,
			})
			return
		}
		log.Printf("replicate submission error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to start transformation", nil)
		return
	}

	if name == "" {
		name = models.DefaultName
	}
	now := time.Now().UTC()
	shortID := models.NewShortID()
	job := models.Job{
		ID:        pred.ID,
		Status:    models.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
		Email:     email,
		Name:      name,
		ShortID:   shortID,
	}

	if err := s.kv.PutJob(ctx, job); err != nil {
		log.Printf("store job %s: %v", pred.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to track transformation", nil)
		return
	}
	if err := s.kv.PutShortLink(ctx, shortID, pred.ID); err != nil {
		log.Printf("store short link %s: %v", shortID, err)
		writeError(w, http.StatusInternalServerError, "Failed to track transformation", nil)
		return
	}

	// Side effects below never fail the submission.
	if email != "" && s.db != nil {
		if err := s.db.UpsertUser(ctx, email, r.FormValue("name")); err != nil {
			log.Printf("upsert user %s: %v", email, err)
		}
	}
	if s.archive != nil {
		key := fmt.Sprintf("%s%s", archive.OriginalsPrefix, pred.ID)
		if _, err := s.archive.Upload(ctx, key, normalized, contentType); err != nil {
			telemetry.ArchiveErrors.Inc()
			log.Printf("archive original %s: %v", pred.ID, err)
		}
	}

	telemetry.Submissions.Inc()
	writeJSON(w, http.StatusOK, transformResponse{
		Success:      true,
		PredictionID: pred.ID,
		Status:       models.StatusProcessing,
		StatusURL:    "/status/" + pred.ID,
	})
}

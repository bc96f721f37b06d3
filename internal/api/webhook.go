package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"kpopdemonz-relay/internal/archive"
	"kpopdemonz-relay/internal/kv"
	"kpopdemonz-relay/internal/models"
	"kpopdemonz-relay/internal/replicate"
	"kpopdemonz-relay/internal/telemetry"
)

// handleWebhook receives the provider's completion callback. Anything
// after a successful parse answers 200 so the provider does not retry-
// storm us; internal failures are logged instead.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload replicate.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Webhook processing failed", http.StatusInternalServerError)
		return
	}
	if payload.ID == "" {
		http.Error(w, "Missing prediction ID", http.StatusBadRequest)
		return
	}

	// Merge over the record created at submission time. A missing base
	// (expired, or the webhook raced the submit write) is tolerated.
	job, err := s.kv.GetJob(ctx, payload.ID)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		log.Printf("webhook: load job %s: %v", payload.ID, err)
	}
	job.ID = payload.ID
	job.Status = payload.Status
	job.UpdatedAt = time.Now().UTC()

	switch payload.Status {
	case models.StatusSucceeded:
		job.ImageURL = payload.Output.URL
		job.ProcessingTime = payload.Metrics.PredictTime
		telemetry.WebhookSucceeded.Inc()
	case models.StatusFailed:
		raw := payload.Error
		if raw == "" {
			raw = "Unknown error"
		}
		kind, message := classifyError(raw)
		job.Error = message
		job.ErrorType = kind
		if kind == models.ErrKindProcessing {
			job.ErrorDetails = raw
		}
		telemetry.WebhookFailed.WithLabelValues(kind).Inc()
	}

	if err := s.kv.PutJob(ctx, job); err != nil {
		log.Printf("webhook: store job %s: %v", payload.ID, err)
	}

	if payload.Status == models.StatusSucceeded && job.ImageURL != "" {
		if err := s.kv.AppendFeed(ctx, models.FeedEntry{
			ImageURL:  job.ImageURL,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			log.Printf("webhook: feed append for %s: %v", payload.ID, err)
		}
		s.storeDurableCopy(ctx, job)

		if job.Email != "" && job.ShortID != "" && s.mailer != nil {
			// Give the durable writes a moment to land before the email
			// links to them. Runs off the request goroutine; the provider
			// gets its 200 immediately.
			go s.notifyAfterDelay(job)
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// storeDurableCopy downloads the provider's (transient) result and
// re-uploads it to the archive, recording the durable URL in Postgres.
// Every failure here is logged and swallowed; the transient KV record
// still serves the result.
func (s *Server) storeDurableCopy(ctx context.Context, job models.Job) {
	durableURL := job.ImageURL

	if s.archive != nil {
		data, contentType, err := s.fetchResult(ctx, job.ImageURL)
		if err != nil {
			telemetry.ArchiveErrors.Inc()
			log.Printf("webhook: fetch result %s: %v", job.ID, err)
		} else {
			key := fmt.Sprintf("%s%s%s", archive.TransformedPrefix, job.ID, extensionFor(contentType))
			url, err := s.archive.Upload(ctx, key, data, contentType)
			if err != nil {
				telemetry.ArchiveErrors.Inc()
				log.Printf("webhook: archive result %s: %v", job.ID, err)
			} else {
				durableURL = url
			}
		}
	}

	if s.db != nil {
		err := s.db.InsertTransformation(ctx, models.Transformation{
			JobID:    job.ID,
			ShortID:  job.ShortID,
			ImageURL: durableURL,
			Email:    job.Email,
		})
		if err != nil {
			log.Printf("webhook: record transformation %s: %v", job.ID, err)
		}
	}
}

func (s *Server) fetchResult(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("download result: status %d", resp.StatusCode)
	}

	limit := s.cfg.ResultMaxBytes
	if limit == 0 {
		limit = 25 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read result: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("result too large (>%d bytes)", limit)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (s *Server) notifyAfterDelay(job models.Job) {
	time.Sleep(s.cfg.NotifyDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.mailer.SendResultReady(ctx, job.Email, job.Name, job.ShortID); err != nil {
		telemetry.NotificationErrors.Inc()
		log.Printf("notify %s for job %s: %v", job.Email, job.ID, err)
		return
	}
	telemetry.NotificationsSent.Inc()
	log.Printf("notification sent to %s for job %s", job.Email, job.ID)
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "jpeg"):
		return ".jpg"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	default:
		return ".png"
	}
}

// Classification patterns for the provider's free-text errors. This is
// a best-effort substring match and will misclassify if the upstream
// wording changes.
func classifyError(raw string) (kind, message string) {
	switch {
	case strings.Contains(raw, "facexlib") || strings.Contains(raw, "align face fail"):
		return models.ErrKindNoFace, "No human face detected in the image. Please upload a photo with a clear face."
	case strings.Contains(raw, "NSFW") || strings.Contains(raw, "safety"):
		return models.ErrKindSafety, "Image rejected by safety filter. Please use an appropriate photo."
	default:
		return models.ErrKindProcessing, "Processing failed. Please try again with a different image."
	}
}

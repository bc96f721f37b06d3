package api

import (
	"errors"
	"html/template"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kpopdemonz-relay/internal/kv"
	"kpopdemonz-relay/internal/models"
	"kpopdemonz-relay/internal/store"
)

// handleStatus returns the full job record for polling clients.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.kv.GetJob(r.Context(), id)
	if errors.Is(err, kv.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Prediction not found", map[string]any{
			"message": "This prediction ID does not exist or has expired",
		})
		return
	}
	if err != nil {
		log.Printf("status %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch status", nil)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// resolveResult maps a short token to the best available image reference,
// preferring the durable relational copy over the transient KV one.
func (s *Server) resolveResult(r *http.Request, shortID string) (imageURL, name string, err error) {
	ctx := r.Context()

	jobID, err := s.kv.ResolveShort(ctx, shortID)
	if err != nil {
		return "", "", err
	}

	name = models.DefaultName
	job, jobErr := s.kv.GetJob(ctx, jobID)
	if jobErr == nil {
		imageURL = job.ImageURL
		if job.Name != "" {
			name = job.Name
		}
	}

	if s.db != nil {
		durable, dbErr := s.db.GetTransformationByShortID(ctx, shortID)
		if dbErr == nil && durable.ImageURL != "" {
			imageURL = durable.ImageURL
		} else if dbErr != nil && !errors.Is(dbErr, store.ErrNotFound) {
			log.Printf("durable lookup %s: %v", shortID, dbErr)
		}
	}

	if imageURL == "" {
		return "", "", kv.ErrNotFound
	}
	return imageURL, name, nil
}

var viewTemplate = template.Must(template.New("view").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Your K-Pop Demon Hunter Transformation</title>
<style>
body { margin: 0; padding: 20px; background: linear-gradient(135deg, #1a0000 0%, #000 100%); font-family: Arial, sans-serif; color: white; display: flex; flex-direction: column; align-items: center; justify-content: center; min-height: 100vh; }
h1 { color: #ff6b35; margin-bottom: 20px; }
img { max-width: 90%; max-height: 70vh; border-radius: 20px; box-shadow: 0 10px 40px rgba(255, 107, 53, 0.3); }
.buttons a { margin-top: 30px; padding: 15px 40px; background: linear-gradient(to right, #ff6b35, #f7931e); color: white; text-decoration: none; border-radius: 50px; font-weight: bold; display: inline-block; margin-right: 10px; }
</style>
</head>
<body>
<h1>🔥 Your Demon Hunter is Ready! 🔥</h1>
<p style="margin-bottom: 20px; opacity: 0.8;">Hey {{.Name}}, your transformation is complete!</p>
<img src="{{.ImageURL}}" alt="K-Pop Demon Hunter Transformation" />
<div class="buttons">
<a href="{{.ImageURL}}" download>Download Image</a>
<a href="{{.SiteURL}}">Create Your Own</a>
</div>
</body>
</html>`))

// handleView renders the shareable result page for a short link.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	shortID := chi.URLParam(r, "shortId")

	imageURL, name, err := s.resolveResult(r, shortID)
	if errors.Is(err, kv.ErrNotFound) {
		http.Error(w, "Result not found or expired", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("view %s: %v", shortID, err)
		http.Error(w, "Error loading transformation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = viewTemplate.Execute(w, struct {
		Name     string
		ImageURL string
		SiteURL  string
	}{Name: name, ImageURL: imageURL, SiteURL: s.cfg.SiteBaseURL})
	if err != nil {
		log.Printf("view render %s: %v", shortID, err)
	}
}

// handleTransformationAPI is the JSON variant of the view page, for
// client-side rendering.
func (s *Server) handleTransformationAPI(w http.ResponseWriter, r *http.Request) {
	shortID := chi.URLParam(r, "shortId")

	imageURL, name, err := s.resolveResult(r, shortID)
	if errors.Is(err, kv.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found", nil)
		return
	}
	if err != nil {
		log.Printf("transformation api %s: %v", shortID, err)
		writeError(w, http.StatusInternalServerError, "Error loading transformation", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"imageUrl": imageURL,
		"userName": name,
		"shortId":  shortID,
	})
}

type updateEmailRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// handleUpdateEmail captures an address after submission, so a user can
// opt into notification while the job is still processing.
func (s *Server) handleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "predictionId")

	var req updateEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email required", nil)
		return
	}

	job, err := s.kv.GetJob(ctx, id)
	if errors.Is(err, kv.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Prediction not found", nil)
		return
	}
	if err != nil {
		log.Printf("update email %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to update email", nil)
		return
	}

	job.Email = req.Email
	if req.Name != "" {
		job.Name = req.Name
	}
	if err := s.kv.PutJob(ctx, job); err != nil {
		log.Printf("update email %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to update email", nil)
		return
	}

	if s.db != nil {
		if err := s.db.UpsertUser(ctx, req.Email, req.Name); err != nil {
			log.Printf("upsert user %s: %v", req.Email, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleRecent serves the public feed for social proof. Errors degrade
// to an empty feed rather than failing the marketing page.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	entries, err := s.kv.RecentFeed(r.Context())
	if err != nil {
		log.Printf("recent feed: %v", err)
		entries = nil
	}
	if entries == nil {
		entries = []models.FeedEntry{}
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, map[string]any{"transformations": entries})
}

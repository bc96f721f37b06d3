package api

import (
	"log"
	"net/http"
	"time"

	"kpopdemonz-relay/internal/archive"
	"kpopdemonz-relay/internal/models"
)

// handleAdminEmails exports every captured user for the mailing list.
func (s *Server) handleAdminEmails(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "Durable store not configured", nil)
		return
	}
	users, err := s.db.ListUsers(r.Context())
	if err != nil {
		log.Printf("admin emails: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to export users", nil)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":      len(users),
		"users":      users,
		"exportedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

type cleanupStats struct {
	StorageOriginals   int   `json:"storage_originals"`
	StorageTransformed int   `json:"storage_transformed"`
	KVKeys             int64 `json:"kv_keys"`
	DBTransformations  int64 `json:"db_transformations"`
	DBUsers            int64 `json:"db_users"`
}

// handleAdminCleanup deletes everything: archived objects, KV entries
// reachable via the relational job list, the public feed, and the
// relational tables. Each category is attempted independently; a failure
// in one never aborts the others, and nothing can be rolled back.
func (s *Server) handleAdminCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var stats cleanupStats

	if s.archive != nil {
		n, err := s.archive.DeletePrefix(ctx, archive.OriginalsPrefix)
		if err != nil {
			log.Printf("cleanup originals: %v", err)
		}
		stats.StorageOriginals = n

		n, err = s.archive.DeletePrefix(ctx, archive.TransformedPrefix)
		if err != nil {
			log.Printf("cleanup transformed: %v", err)
		}
		stats.StorageTransformed = n
	}

	if s.db != nil {
		keys, err := s.db.ListJobKeys(ctx)
		if err != nil {
			log.Printf("cleanup list jobs: %v", err)
		}
		for _, k := range keys {
			n, err := s.kv.DeleteJob(ctx, k.JobID, k.ShortID)
			if err != nil {
				log.Printf("cleanup kv %s: %v", k.JobID, err)
				continue
			}
			stats.KVKeys += n
		}
	}
	if n, err := s.kv.DeleteFeed(ctx); err != nil {
		log.Printf("cleanup feed: %v", err)
	} else {
		stats.KVKeys += n
	}

	if s.db != nil {
		transformations, users, err := s.db.TruncateAll(ctx)
		if err != nil {
			log.Printf("cleanup tables: %v", err)
		}
		stats.DBTransformations = transformations
		stats.DBUsers = users
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "All user data deleted",
		"stats":   stats,
	})
}

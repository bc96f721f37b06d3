package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kpopdemonz-relay/internal/archive"
	"kpopdemonz-relay/internal/captcha"
	"kpopdemonz-relay/internal/config"
	"kpopdemonz-relay/internal/kv"
	"kpopdemonz-relay/internal/mailer"
	"kpopdemonz-relay/internal/ratelimit"
	"kpopdemonz-relay/internal/replicate"
	"kpopdemonz-relay/internal/store"
	"kpopdemonz-relay/internal/telemetry"
)

// Deps collects the collaborators the server relays between. DB, Captcha,
// Mailer, Archive, and Limiter may be nil, which disables the matching
// side effects.
type Deps struct {
	KV        *kv.Store
	DB        *store.Store
	Replicate *replicate.Client
	Captcha   *captcha.Verifier
	Mailer    *mailer.Mailer
	Archive   *archive.Archive
	Limiter   *ratelimit.TokenBucket
}

// Server wires HTTP handlers for the transformation relay.
type Server struct {
	cfg        config.Config
	kv         *kv.Store
	db         *store.Store
	replicate  *replicate.Client
	captcha    *captcha.Verifier
	mailer     *mailer.Mailer
	archive    *archive.Archive
	limiter    *ratelimit.TokenBucket
	httpClient *http.Client
}

// New constructs the relay server.
func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:        cfg,
		kv:         deps.KV,
		db:         deps.DB,
		replicate:  deps.Replicate,
		captcha:    deps.Captcha,
		mailer:     deps.Mailer,
		archive:    deps.Archive,
		limiter:    deps.Limiter,
		httpClient: &http.Client{Timeout: cfg.HTTPClientTimeout},
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(corsMiddleware)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/transform", s.handleTransform)
	r.Get("/status/{id}", s.handleStatus)
	r.Post("/webhook", s.handleWebhook)
	r.Get("/view/{shortId}", s.handleView)
	r.Get("/api/transformation/{shortId}", s.handleTransformationAPI)
	r.Post("/update-email/{predictionId}", s.handleUpdateEmail)
	r.Get("/recent", s.handleRecent)

	r.Group(func(admin chi.Router) {
		admin.Use(s.adminKeyMiddleware)
		admin.Get("/admin/emails", s.handleAdminEmails)
		admin.Post("/admin/cleanup", s.handleAdminCleanup)
	})

	return r
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError emits the `{error, ...}` body the frontend expects. extra
// carries optional fields like message or instructions.
func writeError(w http.ResponseWriter, code int, msg string, extra map[string]any) {
	body := map[string]any{"error": msg}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, code, body)
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kpopdemonz-relay/internal/config"
	"kpopdemonz-relay/internal/models"
)

func doGet(t *testing.T, env *testEnv, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedJob(t, env, models.Job{
		ID:       "st-1",
		Status:   models.StatusSucceeded,
		ImageURL: "https://delivery.example/st.png",
		ShortID:  "st1st1",
	})

	rec := doGet(t, env, "/status/st-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var job models.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if job.Status != models.StatusSucceeded || job.ImageURL != "https://delivery.example/st.png" {
		t.Fatalf("unexpected status body: %+v", job)
	}

	rec = doGet(t, env, "/status/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", rec.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "Prediction not found" {
		t.Fatalf("unexpected 404 body: %v", body)
	}
}

func TestStatusExpiry(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedJob(t, env, models.Job{ID: "exp-1", Status: models.StatusProcessing})

	if rec := doGet(t, env, "/status/exp-1"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 before expiry, got %d", rec.Code)
	}

	env.mr.FastForward(24*time.Hour + time.Minute)

	if rec := doGet(t, env, "/status/exp-1"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after TTL, got %d", rec.Code)
	}
}

func TestViewPage(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedJob(t, env, models.Job{
		ID:       "vw-1",
		Status:   models.StatusSucceeded,
		ImageURL: "https://delivery.example/vw.png",
		Name:     "Mira",
		ShortID:  "vwvwvw",
	})

	rec := doGet(t, env, "/view/vwvwvw")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html, got %s", ct)
	}
	html := rec.Body.String()
	if !strings.Contains(html, "https://delivery.example/vw.png") {
		t.Fatalf("page missing image url: %s", html)
	}
	if !strings.Contains(html, "Mira") {
		t.Fatalf("page missing name")
	}
	if !strings.Contains(html, env.cfg.SiteBaseURL) {
		t.Fatalf("page missing site link")
	}
}

func TestViewNotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := doGet(t, env, "/view/zz99zz")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Result not found or expired") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestViewPendingResult(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	// Short link exists but the job has no image yet.
	seedJob(t, env, models.Job{ID: "pend-1", Status: models.StatusProcessing, ShortID: "pendin"})

	rec := doGet(t, env, "/view/pendin")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for pending job, got %d", rec.Code)
	}
}

func TestTransformationAPI(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedJob(t, env, models.Job{
		ID:       "api-1",
		Status:   models.StatusSucceeded,
		ImageURL: "https://delivery.example/api.png",
		Name:     "Jinu",
		ShortID:  "apiapi",
	})

	rec := doGet(t, env, "/api/transformation/apiapi")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["imageUrl"] != "https://delivery.example/api.png" || body["userName"] != "Jinu" || body["shortId"] != "apiapi" {
		t.Fatalf("unexpected body: %v", body)
	}

	rec = doGet(t, env, "/api/transformation/nonono")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateEmail(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedJob(t, env, models.Job{ID: "ue-1", Status: models.StatusProcessing, ShortID: "ueueue"})

	post := func(id, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/update-email/"+id, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)
		return rec
	}

	rec := post("ue-1", `{"email":"late@example.com","name":"Rumi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != true {
		t.Fatalf("unexpected body: %v", body)
	}

	job, err := env.kv.GetJob(context.Background(), "ue-1")
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Email != "late@example.com" || job.Name != "Rumi" {
		t.Fatalf("job not updated: %+v", job)
	}

	if rec := post("ue-1", `{"email":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty email, got %d", rec.Code)
	}
	if rec := post("ue-1", `{not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}
	if rec := post("ghost", `{"email":"x@y.z"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestRecentFeedEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := doGet(t, env, "/recent")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Transformations []models.FeedEntry `json:"transformations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode empty feed: %v", err)
	}
	if body.Transformations == nil || len(body.Transformations) != 0 {
		t.Fatalf("expected empty array, got %+v", body.Transformations)
	}

	for i := 0; i < 3; i++ {
		err := env.kv.AppendFeed(context.Background(), models.FeedEntry{
			ImageURL:  "https://delivery.example/feed-" + string(rune('0'+i)) + ".png",
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("append feed: %v", err)
		}
	}

	rec = doGet(t, env, "/recent")
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=60" {
		t.Fatalf("unexpected cache header: %s", cc)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if len(body.Transformations) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(body.Transformations))
	}
	if body.Transformations[0].ImageURL != "https://delivery.example/feed-2.png" {
		t.Fatalf("expected most recent first, got %s", body.Transformations[0].ImageURL)
	}
}

func TestAdminKeyGate(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.AdminAPIKey = "sekrit"
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/cleanup", nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/cleanup", nil)
	req.Header.Set("X-Admin-Key", "wrong")
	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/cleanup", nil)
	req.Header.Set("X-Admin-Key", "sekrit")
	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid key, got %d", rec.Code)
	}
}

func TestAdminCleanup(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	if err := env.kv.AppendFeed(context.Background(), models.FeedEntry{
		ImageURL:  "https://delivery.example/c.png",
		Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("append feed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/cleanup", nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Success bool         `json:"success"`
		Message string       `json:"message"`
		Stats   cleanupStats `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode cleanup response: %v", err)
	}
	if !body.Success || body.Message != "All user data deleted" {
		t.Fatalf("unexpected response: %+v", body)
	}
	if body.Stats.KVKeys != 1 {
		t.Fatalf("expected feed key deletion counted, got %d", body.Stats.KVKeys)
	}

	feed, err := env.kv.RecentFeed(context.Background())
	if err != nil {
		t.Fatalf("recent feed: %v", err)
	}
	if len(feed) != 0 {
		t.Fatalf("feed not emptied: %+v", feed)
	}
}

func TestAdminEmailsUnavailable(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := doGet(t, env, "/admin/emails")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without durable store, got %d", rec.Code)
	}
}

package api

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"kpopdemonz-relay/internal/config"
	"kpopdemonz-relay/internal/kv"
)

type testEnv struct {
	server *Server
	kv     *kv.Store
	mr     *miniredis.Miniredis
	cfg    config.Config
}

// newTestEnv builds a server against miniredis with no optional
// collaborators; tests attach fakes through the two callbacks.
func newTestEnv(t *testing.T, mutateCfg func(*config.Config), mutateDeps func(*Deps)) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := config.Config{
		RedisAddr:         mr.Addr(),
		JobTTL:            24 * time.Hour,
		FeedTTL:           7 * 24 * time.Hour,
		FeedMaxEntries:    50,
		MaxUploadBytes:    10 * 1024 * 1024,
		MaxImageDim:       1024,
		ResultMaxBytes:    25 * 1024 * 1024,
		ReplicateAPIToken: "test-token",
		PublicBaseURL:     "https://relay.test",
		SiteBaseURL:       "https://kpopdemonz.com",
		NotifyDelay:       time.Millisecond,
		HTTPClientTimeout: 5 * time.Second,
	}
	if mutateCfg != nil {
		mutateCfg(&cfg)
	}

	kvStore := kv.New(cfg)
	t.Cleanup(func() { _ = kvStore.Close() })

	deps := Deps{KV: kvStore}
	if mutateDeps != nil {
		mutateDeps(&deps)
	}

	return &testEnv{
		server: New(cfg, deps),
		kv:     kvStore,
		mr:     mr,
		cfg:    cfg,
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// multipartBody builds a /transform form. imageData may be nil to omit
// the file part entirely.
func multipartBody(t *testing.T, imageData []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	if imageData != nil {
		part, err := mw.CreateFormFile("image", "photo.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(imageData); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return body, mw.FormDataContentType()
}

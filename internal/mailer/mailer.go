// Package mailer sends the result-ready notification through Resend.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"
)

const defaultEndpoint = "https://api.resend.com/emails"

// Mailer sends templated HTML notifications.
type Mailer struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	from       string
	siteBase   string
}

// New constructs a mailer. endpoint may be empty to use the Resend API.
func New(apiKey, from, siteBaseURL, endpoint string) *Mailer {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Mailer{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		endpoint:   endpoint,
		apiKey:     apiKey,
		from:       from,
		siteBase:   siteBaseURL,
	}
}

var bodyTemplate = template.Must(template.New("result-ready").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
body { font-family: Arial, sans-serif; background-color: #000; color: #fff; padding: 40px; }
.container { max-width: 600px; margin: 0 auto; background: linear-gradient(135deg, #1a0000 0%, #000 100%); padding: 40px; border-radius: 20px; }
h1 { color: #ff6b35; font-size: 32px; margin-bottom: 20px; }
.cta-button { display: inline-block; background: linear-gradient(to right, #ff6b35, #f7931e); color: white; padding: 15px 40px; text-decoration: none; border-radius: 50px; font-weight: bold; margin: 20px 0; }
p { line-height: 1.6; font-size: 16px; color: #ccc; }
</style>
</head>
<body>
<div class="container">
<h1>🔥 Hey {{.Name}}!</h1>
<p>Your K-Pop Demon Hunter transformation is complete and it looks <strong>AMAZING</strong>!</p>
<p>Click the button below to see your fierce new look:</p>
<a href="{{.ViewURL}}" class="cta-button">View My Transformation</a>
<p style="margin-top: 30px; font-size: 14px; opacity: 0.7;">This link will expire in 24 hours. Download your image to keep it forever!</p>
</div>
</body>
</html>`))

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendResultReady emails the shareable view link. Callers treat failures
// as non-fatal; the transformation already succeeded without them.
func (m *Mailer) SendResultReady(ctx context.Context, email, name, shortID string) error {
	viewURL := fmt.Sprintf("%s/view/%s", m.siteBase, shortID)

	var htmlBody bytes.Buffer
	if err := bodyTemplate.Execute(&htmlBody, struct {
		Name    string
		ViewURL string
	}{Name: name, ViewURL: viewURL}); err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	payload, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      []string{email},
		Subject: "🔥 Your K-Pop Demon Hunter Transformation is Ready!",
		HTML:    htmlBody.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("send email: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

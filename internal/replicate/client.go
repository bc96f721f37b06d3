// Package replicate is a thin client for the Replicate predictions API,
// covering only what the relay needs: submitting one webhook-backed
// prediction and decoding the completion payload.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.replicate.com"

// Client talks to the predictions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
}

// New constructs a client. baseURL may be empty to use the production API.
func New(token, model, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		token:      token,
		model:      model,
	}
}

// Prompt is the style instruction sent with every prediction.
const Prompt = `Transform this person into an elite K-Pop demon hunter character. They should have:
- Striking, intense eyes with a supernatural glow
- Sleek, stylish hair with vibrant highlights (red, orange, or silver streaks)
- Modern tactical outfit with K-Pop fashion elements (leather, metallic accents, asymmetric designs)
- Dramatic lighting with red and orange tones
- Battle-ready pose and confident expression
- Mystical energy effects or aura around them
- Professional idol-quality photography aesthetic
- Sharp, high-contrast styling
Make them look like they could be on a K-Pop album cover meets supernatural action hero. Keep their facial features recognizable but enhanced to look more fierce and powerful.`

// CreateInput carries the bits of one prediction request.
type CreateInput struct {
	Prompt       string
	ImageDataURI string
	WebhookURL   string
}

// Prediction is the provider's acknowledgement of an accepted job.
type Prediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// UpstreamError is a non-2xx answer from the provider; Body is surfaced
// to the submitting client as best-effort detail.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("replicate: status %d: %s", e.StatusCode, e.Body)
}

type createRequest struct {
	Version             string          `json:"version"`
	Input               predictionInput `json:"input"`
	Webhook             string          `json:"webhook"`
	WebhookEventsFilter []string        `json:"webhook_events_filter"`
}

type predictionInput struct {
	Prompt        string  `json:"prompt"`
	MainFaceImage string  `json:"main_face_image"`
	NumSteps      int     `json:"num_steps"`
	GuidanceScale float64 `json:"guidance_scale"`
	NumOutputs    int     `json:"num_outputs"`
}

// CreatePrediction submits one asynchronous generation request. The
// provider fires the webhook only on completion; this call returns as
// soon as the job is accepted.
func (c *Client) CreatePrediction(ctx context.Context, in CreateInput) (Prediction, error) {
	body, err := json.Marshal(createRequest{
		Version: c.model,
		Input: predictionInput{
			Prompt:        in.Prompt,
			MainFaceImage: in.ImageDataURI,
			NumSteps:      20,
			GuidanceScale: 4,
			NumOutputs:    1,
		},
		Webhook:             in.WebhookURL,
		WebhookEventsFilter: []string{"completed"},
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("marshal prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("build prediction request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("create prediction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return Prediction{}, &UpstreamError{StatusCode: resp.StatusCode, Body: string(detail)}
	}

	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return Prediction{}, fmt.Errorf("decode prediction: %w", err)
	}
	if pred.ID == "" {
		return Prediction{}, fmt.Errorf("prediction accepted without an id")
	}
	return pred, nil
}

// Package captcha verifies hCaptcha proofs against the siteverify endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultEndpoint = "https://api.hcaptcha.com/siteverify"

// Verifier checks submitted CAPTCHA tokens.
type Verifier struct {
	httpClient *http.Client
	endpoint   string
	secret     string
}

// New constructs a verifier. endpoint may be empty to use the hCaptcha API.
func New(secret, endpoint string) *Verifier {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Verifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   endpoint,
		secret:     secret,
	}
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify returns whether the provider accepted the token. A transport or
// decode failure is an error, not a rejection.
func (v *Verifier) Verify(ctx context.Context, token string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("siteverify: %w", err)
	}
	defer resp.Body.Close()

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode siteverify response: %w", err)
	}
	return result.Success, nil
}

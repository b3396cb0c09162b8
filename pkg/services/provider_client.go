package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/pixelmuse/pixelmuse/pkg/config"
	"github.com/pixelmuse/pixelmuse/pkg/nodes"
	"github.com/pixelmuse/pixelmuse/pkg/utils"
)

// Retry policy for rate-limited provider calls: up to 3 retries, delays of
// 2s, 4s, 8s. Only HTTP 429 is retried; every other failure is terminal for
// the calling node.
const (
	providerMaxRetries   = 3
	providerRetryBackoff = 2000 * time.Millisecond
)

// ProviderError is a terminal generation API failure.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
}

// ProviderClient implements nodes.Provider against the configured generation
// API endpoints.
type ProviderClient struct {
	cfg  config.ProvidersConfig
	http *utils.HTTPClient
}

// NewProviderClient creates a provider client.
func NewProviderClient(cfg config.ProvidersConfig) *ProviderClient {
	client := utils.NewHTTPClient()
	client.SetTimeout(120 * time.Second)
	return &ProviderClient{cfg: cfg, http: client}
}

// GenerateImages produces n images for a prompt. Presence of reference
// images switches to the image-to-image endpoint.
func (c *ProviderClient) GenerateImages(ctx context.Context, req nodes.ImageRequest) ([]string, error) {
	endpoint := c.cfg.TextToImageEndpoint
	body := map[string]interface{}{
		"model":           req.Model,
		"prompt":          req.Prompt,
		"negative_prompt": req.NegativePrompt,
		"size":            req.Size,
		"n":               req.N,
	}
	if len(req.ReferenceImages) > 0 {
		endpoint = c.cfg.ImageToImageEndpoint
		body["images"] = req.ReferenceImages
	}

	payload, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}
	urls := extractImages(payload)
	if len(urls) == 0 {
		return nil, &ProviderError{StatusCode: http.StatusOK, Message: "response contained no images"}
	}
	return urls, nil
}

// GenerateVideo produces one video URL for a prompt.
func (c *ProviderClient) GenerateVideo(ctx context.Context, req nodes.VideoRequest) (string, error) {
	body := map[string]interface{}{
		"model":    req.Model,
		"prompt":   req.Prompt,
		"duration": req.Duration,
	}
	if req.ImageURL != "" {
		body["images"] = []string{req.ImageURL}
	}

	payload, err := c.post(ctx, c.cfg.VideoEndpoint, body)
	if err != nil {
		return "", err
	}
	if url, ok := payload["video"].(string); ok && url != "" {
		return url, nil
	}
	if urls := extractImages(payload); len(urls) > 0 {
		return urls[0], nil
	}
	return "", &ProviderError{StatusCode: http.StatusOK, Message: "response contained no video"}
}

// GenerateText produces free-form text for an instruction prompt.
func (c *ProviderClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	payload, err := c.post(ctx, c.cfg.TextEndpoint, map[string]interface{}{"prompt": prompt})
	if err != nil {
		return "", err
	}
	if text, ok := payload["text"].(string); ok && text != "" {
		return text, nil
	}
	return "", &ProviderError{StatusCode: http.StatusOK, Message: "response contained no text"}
}

// post performs one provider call with the retry-on-429 policy.
func (c *ProviderClient) post(ctx context.Context, endpoint string, body map[string]interface{}) (map[string]interface{}, error) {
	var payload map[string]interface{}

	backoff := retry.WithMaxRetries(providerMaxRetries, retry.NewExponential(providerRetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.http.Do(ctx, &utils.HTTPRequest{
			URL:    c.cfg.BaseURL + endpoint,
			Method: http.MethodPost,
			Body:   body,
			Auth:   map[string]interface{}{"token": c.cfg.APIKey},
		})
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(&ProviderError{
				StatusCode: resp.StatusCode,
				Message:    "rate limited",
			})
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &ProviderError{StatusCode: resp.StatusCode, Message: string(resp.RawBody)}
		}

		parsed, ok := resp.Body.(map[string]interface{})
		if !ok {
			return &ProviderError{StatusCode: resp.StatusCode, Message: "response was not a JSON object"}
		}
		payload = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// extractImages reads {"images": [...]} entries, accepting either bare URL
// strings or {"url": ...} objects.
func extractImages(payload map[string]interface{}) []string {
	raw, ok := payload["images"].([]interface{})
	if !ok {
		return nil
	}
	urls := make([]string, 0, len(raw))
	for _, entry := range raw {
		switch v := entry.(type) {
		case string:
			if v != "" {
				urls = append(urls, v)
			}
		case map[string]interface{}:
			if url, ok := v["url"].(string); ok && url != "" {
				urls = append(urls, url)
			}
		}
	}
	return urls
}

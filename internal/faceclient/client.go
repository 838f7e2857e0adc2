package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// VerifyResult is the oracle's answer for one check-in photo.
type VerifyResult struct {
	Verified   bool    `json:"verified"`
	Similarity float64 `json:"similarity"`
	Threshold  float64 `json:"threshold"`
}

// Client calls the face verification microservice. The service is treated
// as an opaque boolean oracle: it has no side effects on attendance state
// beyond its answer.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, Verify always passes — used in dev
// when no face service is running.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face processing can take time
		},
	}
}

// Verify asks the service whether the photo at imageURL matches the
// enrolled face for userID.
func (c *Client) Verify(ctx context.Context, userID, imageURL string) (*VerifyResult, error) {
	if c.Skip {
		return &VerifyResult{Verified: true, Similarity: 0.99, Threshold: 0.6}, nil
	}

	payload, err := json.Marshal(map[string]string{
		"user_id":   userID,
		"image_url": imageURL,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("face service returned %d: %s", resp.StatusCode, body)
	}

	var result VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	return &result, nil
}

// Health checks service availability.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

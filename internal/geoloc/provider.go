package geoloc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Position is a WGS84 coordinate pair.
type Position struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Provider yields the current position once per call. There is no
// continuous tracking; callers re-sample by calling Current again.
type Provider interface {
	Current(ctx context.Context) (Position, error)
}

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context) (Position, error)

// Current implements Provider.
func (f Func) Current(ctx context.Context) (Position, error) { return f(ctx) }

// Static always returns a fixed position (or a fixed error). Used for dev
// deployments and for wrapping a position submitted in a request body.
type Static struct {
	Pos Position
	Err error
}

// Current implements Provider.
func (s Static) Current(ctx context.Context) (Position, error) {
	if s.Err != nil {
		return Position{}, s.Err
	}
	return s.Pos, nil
}

// HTTPProvider fetches the current position from a location service.
type HTTPProvider struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTP creates an HTTP-backed provider with a request timeout so a hung
// location service cannot stall a lifecycle transition indefinitely.
func NewHTTP(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Current requests GET {BaseURL}/position and decodes the coordinates.
func (p *HTTPProvider) Current(ctx context.Context) (Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/position", nil)
	if err != nil {
		return Position{}, err
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return Position{}, fmt.Errorf("location service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Position{}, fmt.Errorf("location service returned %d", resp.StatusCode)
	}
	var pos Position
	if err := json.NewDecoder(resp.Body).Decode(&pos); err != nil {
		return Position{}, fmt.Errorf("decode position: %w", err)
	}
	return pos, nil
}

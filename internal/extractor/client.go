package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is the output of a successful descriptor extraction.
type Result struct {
	Descriptor []float64
	Quality    float64
	Liveness   float64
	FacesFound int
}

var (
	// ErrNoFace means no face was detected in the image.
	ErrNoFace = errors.New("no face detected")
	// ErrMultipleFaces means more than one face was detected.
	ErrMultipleFaces = errors.New("multiple faces detected")
	// ErrLowQuality means the capture is below the absolute quality floor.
	ErrLowQuality = errors.New("face quality too low")
)

// Client calls the external descriptor-extraction microservice.
type Client struct {
	BaseURL      string
	HTTP         *http.Client
	Skip         bool
	QualityFloor float64
}

// New creates a client. Skip enables a deterministic mock for dev setups
// without the face service running.
func New(baseURL string, skip bool, qualityFloor float64) *Client {
	return &Client{
		BaseURL:      baseURL,
		Skip:         skip,
		QualityFloor: qualityFloor,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face processing can take time
		},
	}
}

// Extract converts raw image bytes into a descriptor plus quality and
// liveness scores. Image bytes travel as base64 JSON; the content type is
// declared alongside so the service can decode without sniffing.
func (c *Client) Extract(ctx context.Context, imageBytes []byte, contentType string) (*Result, error) {
	if len(imageBytes) == 0 {
		return nil, fmt.Errorf("image bytes required")
	}
	if c.Skip {
		return mockResult(), nil
	}

	body, _ := json.Marshal(map[string]string{
		"image":        base64.StdEncoding.EncodeToString(imageBytes),
		"content_type": contentType,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extractor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extractor error %s: %s", resp.Status, string(respBody))
	}

	var out struct {
		Descriptor []float64 `json:"descriptor"`
		Quality    float64   `json:"quality"`
		Liveness   float64   `json:"liveness"`
		FacesFound int       `json:"faces_detected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	switch {
	case out.FacesFound == 0 || len(out.Descriptor) == 0:
		return nil, ErrNoFace
	case out.FacesFound > 1:
		return nil, ErrMultipleFaces
	case out.Quality < c.QualityFloor:
		return nil, ErrLowQuality
	}

	return &Result{
		Descriptor: out.Descriptor,
		Quality:    out.Quality,
		Liveness:   out.Liveness,
		FacesFound: out.FacesFound,
	}, nil
}

// Health checks if the extractor service is available.
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
		return fmt.Errorf("extractor unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("extractor unhealthy: %s", resp.Status)
	}
	return nil
}

func mockResult() *Result {
	return &Result{
		Descriptor: []float64{0.1, 0.2, 0.3},
		Quality:    0.85,
		Liveness:   0.9,
		FacesFound: 1,
	}
}

package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func extractServer(t *testing.T, payload map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			http.NotFound(w, r)
			return
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req["image"] == "" {
			http.Error(w, "image required", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtract_Success(t *testing.T) {
	srv := extractServer(t, map[string]any{
		"descriptor":     []float64{0.5, 0.1, -0.2},
		"quality":        0.7,
		"liveness":       0.8,
		"faces_detected": 1,
	})
	c := New(srv.URL, false, 0.2)

	res, err := c.Extract(context.Background(), []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(res.Descriptor) != 3 {
		t.Errorf("expected 3-d descriptor, got %d", len(res.Descriptor))
	}
	if res.Quality != 0.7 || res.Liveness != 0.8 {
		t.Errorf("unexpected scores: quality %g, liveness %g", res.Quality, res.Liveness)
	}
}

func TestExtract_NoFace(t *testing.T) {
	srv := extractServer(t, map[string]any{
		"descriptor":     []float64{},
		"faces_detected": 0,
	})
	c := New(srv.URL, false, 0.2)

	if _, err := c.Extract(context.Background(), []byte("img"), "image/jpeg"); !errors.Is(err, ErrNoFace) {
		t.Errorf("expected ErrNoFace, got %v", err)
	}
}

func TestExtract_MultipleFaces(t *testing.T) {
	srv := extractServer(t, map[string]any{
		"descriptor":     []float64{0.1},
		"quality":        0.9,
		"faces_detected": 2,
	})
	c := New(srv.URL, false, 0.2)

	if _, err := c.Extract(context.Background(), []byte("img"), "image/jpeg"); !errors.Is(err, ErrMultipleFaces) {
		t.Errorf("expected ErrMultipleFaces, got %v", err)
	}
}

func TestExtract_BelowQualityFloor(t *testing.T) {
	srv := extractServer(t, map[string]any{
		"descriptor":     []float64{0.1},
		"quality":        0.1,
		"liveness":       0.9,
		"faces_detected": 1,
	})
	c := New(srv.URL, false, 0.2)

	if _, err := c.Extract(context.Background(), []byte("img"), "image/jpeg"); !errors.Is(err, ErrLowQuality) {
		t.Errorf("expected ErrLowQuality, got %v", err)
	}
}

func TestExtract_EmptyImage(t *testing.T) {
	c := New("http://unused", true, 0.2)
	if _, err := c.Extract(context.Background(), nil, "image/jpeg"); err == nil {
		t.Error("expected error for empty image")
	}
}

func TestExtract_SkipMode(t *testing.T) {
	c := New("http://unused", true, 0.2)
	res, err := c.Extract(context.Background(), []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("skip mode extract failed: %v", err)
	}
	if len(res.Descriptor) == 0 || res.FacesFound != 1 {
		t.Errorf("unexpected mock result: %+v", res)
	}
}

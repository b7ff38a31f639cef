package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mfields/weathervane/internal/weather"
)

func TestGeoResolverFirstMatchWins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "Miami" {
			t.Errorf("expected q=Miami, got %s", r.URL.Query().Get("q"))
		}
		if r.URL.Query().Get("limit") != "1" {
			t.Errorf("expected limit=1, got %s", r.URL.Query().Get("limit"))
		}
		if r.URL.Query().Get("appid") != "test-key" {
			t.Errorf("expected appid=test-key, got %s", r.URL.Query().Get("appid"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"name": "Miami", "country": "US", "lat": 25.7617, "lon": -80.1918},
			{"name": "Miami", "country": "MX", "lat": 18.0, "lon": -94.0}
		]`))
	}))
	defer server.Close()

	g := NewGeoResolver(server.Client(), "test-key")
	g.baseURL = server.URL

	loc, err := g.Resolve(context.Background(), "Miami")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.Name != "Miami" || loc.Country != "US" {
		t.Errorf("expected first match Miami/US, got %s/%s", loc.Name, loc.Country)
	}
	if loc.Latitude != 25.7617 {
		t.Errorf("expected latitude 25.7617, got %f", loc.Latitude)
	}
}

func TestGeoResolverNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	g := NewGeoResolver(server.Client(), "test-key")
	g.baseURL = server.URL

	_, err := g.Resolve(context.Background(), "Nowhere12345")

	var notFound *weather.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *weather.NotFoundError, got %T: %v", err, err)
	}
}

func TestGeoResolverRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer server.Close()

	g := NewGeoResolver(server.Client(), "test-key")
	g.baseURL = server.URL

	_, err := g.Resolve(context.Background(), "Miami")

	var pe *weather.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *weather.ProviderError, got %T: %v", err, err)
	}
	if pe.Status != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", pe.Status)
	}
}

func TestGeoResolverSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("expected limit=5, got %s", r.URL.Query().Get("limit"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"name": "Springfield", "country": "US", "state": "IL", "lat": 39.8, "lon": -89.6},
			{"name": "Springfield", "country": "US", "state": "MA", "lat": 42.1, "lon": -72.6}
		]`))
	}))
	defer server.Close()

	g := NewGeoResolver(server.Client(), "test-key")
	g.baseURL = server.URL

	matches, err := g.Search(context.Background(), "Springfield")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

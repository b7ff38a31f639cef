package providers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"

	"github.com/mfields/weathervane/internal/weather"
)

// GeoResolver resolves free-text city names through the OpenWeatherMap
// geocoding endpoint. The first match wins; no ranking beyond the provider's
// own ordering.
type GeoResolver struct {
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewGeoResolver(client *http.Client, apiKey string) *GeoResolver {
	return &GeoResolver{
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/geo/1.0/direct",
		client:  client,
		circuit: newBreaker("geocoding"),
	}
}

type geoMatch struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Resolve returns the best match for cityText, or *weather.NotFoundError
// when the provider has no match at all.
func (g *GeoResolver) Resolve(ctx context.Context, cityText string) (weather.ResolvedLocation, error) {
	matches, err := g.lookup(ctx, cityText, 1)
	if err != nil {
		return weather.ResolvedLocation{}, err
	}
	if len(matches) == 0 {
		return weather.ResolvedLocation{}, &weather.NotFoundError{City: cityText}
	}
	return toLocation(matches[0]), nil
}

// Search returns up to five candidate locations for an ambiguous query.
func (g *GeoResolver) Search(ctx context.Context, query string) ([]weather.ResolvedLocation, error) {
	matches, err := g.lookup(ctx, query, 5)
	if err != nil {
		return nil, err
	}
	locs := make([]weather.ResolvedLocation, 0, len(matches))
	for _, m := range matches {
		locs = append(locs, toLocation(m))
	}
	return locs, nil
}

func (g *GeoResolver) lookup(ctx context.Context, query string, limit int) ([]geoMatch, error) {
	values := url.Values{}
	values.Set("q", query)
	values.Set("limit", strconv.Itoa(limit))
	values.Set("appid", g.apiKey)

	var matches []geoMatch
	if err := doJSON(ctx, g.client, g.circuit, "geocoding", g.baseURL+"?"+values.Encode(), &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func toLocation(m geoMatch) weather.ResolvedLocation {
	return weather.ResolvedLocation{
		Name:      m.Name,
		Country:   m.Country,
		Latitude:  m.Lat,
		Longitude: m.Lon,
	}
}

package weather

import "context"

// Provider abstracts one external weather data source. Adapters translate a
// resolved location into provider-specific HTTP calls and map the response
// into the normalized model. Provider-specific field names never leak past
// this boundary.
type Provider interface {
	Name() string

	// MaxForecastDays is the longest forecast the provider can serve.
	// Requests for more days are clamped, never rejected.
	MaxForecastDays() int

	FetchCurrent(ctx context.Context, loc ResolvedLocation) (*CurrentConditions, error)
	FetchForecast(ctx context.Context, loc ResolvedLocation, days int) (Forecast, error)

	// FetchAlerts returns the provider's native alerts. Providers without a
	// first-class alert feed return an empty set, not an error.
	FetchAlerts(ctx context.Context, loc ResolvedLocation) (AlertSet, error)
}

// Geocoder resolves free-text city names to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, cityText string) (ResolvedLocation, error)
	Search(ctx context.Context, query string) ([]ResolvedLocation, error)
}

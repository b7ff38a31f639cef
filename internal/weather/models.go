package weather

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/mfields/weathervane/internal/common"
)

// Units selects the unit system presented to the caller. Internally every
// value is metric (Celsius, m/s, hPa, km); conversion happens at export time.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// RequestKind identifies which data a query asks for.
type RequestKind string

const (
	KindCurrent  RequestKind = "current"
	KindForecast RequestKind = "forecast"
	KindAlerts   RequestKind = "alerts"
)

// ProviderRole records which provider actually supplied a piece of data.
type ProviderRole string

const (
	RolePrimary  ProviderRole = "primary"
	RoleFallback ProviderRole = "fallback"
)

// Severity levels for alerts.
type Severity string

const (
	SeveritySevere   Severity = "Severe"
	SeverityModerate Severity = "Moderate"
	SeverityMinor    Severity = "Minor"
)

// AlertCategory classifies what an alert is about.
type AlertCategory string

const (
	CategorySevere  AlertCategory = "Severe"
	CategoryCyclone AlertCategory = "Cyclone"
	CategoryWind    AlertCategory = "Wind"
	CategoryOther   AlertCategory = "Other"
)

// DerivedSource tags alerts produced by the synthesizer rather than by a
// provider's native alert feed.
const DerivedSource = "derived"

// Query describes one user-issued weather request. Immutable once built.
type Query struct {
	City  string      `json:"city"`
	Units Units       `json:"units"`
	Kind  RequestKind `json:"kind"`
	Days  int         `json:"days,omitempty"`
}

// Key returns the canonical cache key text for this query's city.
func (q Query) Key() string {
	return common.NormalizeCity(q.City)
}

// ResolvedLocation is the geocoded form of a free-text city query.
type ResolvedLocation struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CurrentConditions is the normalized view of present weather at a location.
type CurrentConditions struct {
	Temperature   float64   `json:"temperatureC"`
	FeelsLike     float64   `json:"feelsLikeC"`
	Humidity      float64   `json:"humidityPercent"`
	Pressure      float64   `json:"pressureHpa"`
	WindSpeed     float64   `json:"windSpeedMs"`
	WindDirection float64   `json:"windDirectionDeg"`
	ConditionText string    `json:"condition"`
	Sunrise       string    `json:"sunrise"`
	SunriseUnix   int64     `json:"sunriseUnix"`
	Sunset        string    `json:"sunset"`
	VisibilityKm  float64   `json:"visibilityKm"`
	ObservedAt    time.Time `json:"observedAt"`
}

// ForecastDay is one normalized daily forecast entry.
// HighTemp >= LowTemp is enforced at the adapter boundary.
type ForecastDay struct {
	Date          string  `json:"date"` // YYYY-MM-DD
	HighTemp      float64 `json:"highTempC"`
	LowTemp       float64 `json:"lowTempC"`
	ConditionText string  `json:"condition"`
	Humidity      float64 `json:"humidityPercent"`
	WindSpeed     float64 `json:"windSpeedMs"`
	Pressure      float64 `json:"pressureHpa"`
	PrecipProb    float64 `json:"precipProbPercent"`
}

// Forecast is an ordered sequence of daily entries, earliest first.
type Forecast []ForecastDay

// AlertRecord is a single normalized weather alert, native or derived.
type AlertRecord struct {
	Severity       Severity      `json:"severity"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	StartTime      time.Time     `json:"startTime"`
	EndTime        time.Time     `json:"endTime,omitzero"`
	SourceProvider string        `json:"sourceProvider"`
	Category       AlertCategory `json:"category"`
}

type alertKey struct {
	title  string
	start  int64
	source string
}

func (a AlertRecord) key() alertKey {
	return alertKey{title: a.Title, start: a.StartTime.Unix(), source: a.SourceProvider}
}

// AlertSet is a set of alerts keyed by (title, startTime, sourceProvider).
// Duplicates from repeated synthesis passes or overlapping provider feeds
// collapse on Add.
type AlertSet struct {
	records map[alertKey]AlertRecord
}

// NewAlertSet returns an empty set.
func NewAlertSet() AlertSet {
	return AlertSet{records: make(map[alertKey]AlertRecord)}
}

// Add inserts the alert, replacing an existing record with the same key.
func (s *AlertSet) Add(a AlertRecord) {
	if s.records == nil {
		s.records = make(map[alertKey]AlertRecord)
	}
	s.records[a.key()] = a
}

// Union merges every record of other into the set.
func (s *AlertSet) Union(other AlertSet) {
	for _, a := range other.records {
		s.Add(a)
	}
}

// Len reports the number of distinct alerts.
func (s AlertSet) Len() int {
	return len(s.records)
}

// Contains reports whether an alert with the same dedup key is present.
func (s AlertSet) Contains(a AlertRecord) bool {
	_, ok := s.records[a.key()]
	return ok
}

// Records returns the alerts sorted by start time, then title, then source.
// The ordering keeps exported documents deterministic.
func (s AlertSet) Records() []AlertRecord {
	out := make([]AlertRecord, 0, len(s.records))
	for _, a := range s.records {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].SourceProvider < out[j].SourceProvider
	})
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s AlertSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Records())
}

// UnmarshalJSON decodes an array of alerts back into a set.
func (s *AlertSet) UnmarshalJSON(data []byte) error {
	var records []AlertRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	*s = NewAlertSet()
	for _, a := range records {
		s.Add(a)
	}
	return nil
}

// Result is the aggregate answer to one query. It is the only type that
// crosses the core boundary towards the presentation layer.
type Result struct {
	Location ResolvedLocation   `json:"location"`
	Current  *CurrentConditions `json:"current,omitempty"`
	Forecast Forecast           `json:"forecast,omitempty"`
	Alerts   AlertSet           `json:"alerts"`

	// ProviderUsed names the provider that actually supplied the principal
	// data for the requested kind, not merely the one attempted first.
	ProviderUsed ProviderRole                 `json:"providerUsed"`
	Sources      map[RequestKind]ProviderRole `json:"sources,omitempty"`

	// Truncated is set when fewer forecast days were available than asked for.
	Truncated bool      `json:"truncated,omitempty"`
	Notes     []string  `json:"notes,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
	Units     Units     `json:"queryUnits"`
}

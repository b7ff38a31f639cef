package weather

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExportVersion identifies the export document layout.
const ExportVersion = 1

// ExportDocument is the flat one-shot snapshot written on export. Values are
// expressed in the query's unit system; this is the presentation boundary
// where metric-internal data may become imperial.
type ExportDocument struct {
	Version      int                 `json:"version"`
	City         string              `json:"city"`
	Location     ResolvedLocation    `json:"location"`
	FetchedAt    time.Time           `json:"fetchedAt"`
	ProviderUsed ProviderRole        `json:"providerUsed"`
	QueryUnits   Units               `json:"queryUnits"`
	Truncated    bool                `json:"truncated,omitempty"`
	Notes        []string            `json:"notes,omitempty"`
	Current      *ExportCurrent      `json:"current,omitempty"`
	Forecast     []ExportForecastDay `json:"forecast,omitempty"`
	Alerts       AlertSet            `json:"alerts"`
}

// ExportCurrent mirrors CurrentConditions with unit-neutral field names.
type ExportCurrent struct {
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feelsLike"`
	Humidity      float64   `json:"humidity"`
	Pressure      float64   `json:"pressure"`
	WindSpeed     float64   `json:"windSpeed"`
	WindDirection float64   `json:"windDirection"`
	ConditionText string    `json:"condition"`
	Sunrise       string    `json:"sunrise"`
	SunriseUnix   int64     `json:"sunriseUnix"`
	Sunset        string    `json:"sunset"`
	Visibility    float64   `json:"visibility"`
	ObservedAt    time.Time `json:"observedAt"`
}

// ExportForecastDay mirrors ForecastDay with unit-neutral field names.
type ExportForecastDay struct {
	Date          string  `json:"date"`
	HighTemp      float64 `json:"highTemp"`
	LowTemp       float64 `json:"lowTemp"`
	ConditionText string  `json:"condition"`
	Humidity      float64 `json:"humidity"`
	WindSpeed     float64 `json:"windSpeed"`
	Pressure      float64 `json:"pressure"`
	PrecipProb    float64 `json:"precipProb"`
}

// Export renders the result as an indented JSON document in the result's
// query units.
func Export(result *Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("nil result")
	}
	doc := BuildExport(result)
	return json.MarshalIndent(doc, "", "  ")
}

// BuildExport converts a result into its export view, applying imperial
// conversion when the query asked for it.
func BuildExport(result *Result) *ExportDocument {
	imperial := result.Units == UnitsImperial

	doc := &ExportDocument{
		Version:      ExportVersion,
		City:         result.Location.Name,
		Location:     result.Location,
		FetchedAt:    result.FetchedAt,
		ProviderUsed: result.ProviderUsed,
		QueryUnits:   result.Units,
		Truncated:    result.Truncated,
		Notes:        result.Notes,
		Alerts:       result.Alerts,
	}

	if cc := result.Current; cc != nil {
		doc.Current = &ExportCurrent{
			Temperature:   temp(cc.Temperature, imperial),
			FeelsLike:     temp(cc.FeelsLike, imperial),
			Humidity:      cc.Humidity,
			Pressure:      cc.Pressure,
			WindSpeed:     speed(cc.WindSpeed, imperial),
			WindDirection: cc.WindDirection,
			ConditionText: cc.ConditionText,
			Sunrise:       cc.Sunrise,
			SunriseUnix:   cc.SunriseUnix,
			Sunset:        cc.Sunset,
			Visibility:    distance(cc.VisibilityKm, imperial),
			ObservedAt:    cc.ObservedAt,
		}
	}

	for _, fd := range result.Forecast {
		doc.Forecast = append(doc.Forecast, ExportForecastDay{
			Date:          fd.Date,
			HighTemp:      temp(fd.HighTemp, imperial),
			LowTemp:       temp(fd.LowTemp, imperial),
			ConditionText: fd.ConditionText,
			Humidity:      fd.Humidity,
			WindSpeed:     speed(fd.WindSpeed, imperial),
			Pressure:      fd.Pressure,
			PrecipProb:    fd.PrecipProb,
		})
	}

	return doc
}

// ParseExport reads an export document back. Together with Export it
// round-trips every field of the original result.
func ParseExport(data []byte) (*ExportDocument, error) {
	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid export document: %w", err)
	}
	if doc.Version != ExportVersion {
		return nil, fmt.Errorf("unsupported export version %d", doc.Version)
	}
	return &doc, nil
}

// ExportFilename builds the conventional snapshot filename for a city.
func ExportFilename(city string, at time.Time) string {
	city = strings.ReplaceAll(strings.TrimSpace(city), " ", "_")
	return fmt.Sprintf("weather_data_%s_%s.json", city, at.Format("20060102_150405"))
}

func temp(c float64, imperial bool) float64 {
	if !imperial {
		return c
	}
	return c*9/5 + 32
}

func speed(ms float64, imperial bool) float64 {
	if !imperial {
		return ms
	}
	return ms * 2.23694 // m/s to mph
}

func distance(km float64, imperial bool) float64 {
	if !imperial {
		return km
	}
	return km * 0.621371 // km to miles
}

package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mfields/weathervane/internal/weather"
)

// VisualCrossingProvider is the primary provider. Its timeline API serves up
// to 15 forecast days and carries a native alert feed in the same response.
type VisualCrossingProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewVisualCrossingProvider(client *http.Client, apiKey string) *VisualCrossingProvider {
	return &VisualCrossingProvider{
		name:    "visualcrossing",
		apiKey:  apiKey,
		baseURL: "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline",
		client:  client,
		circuit: newBreaker("visualcrossing"),
	}
}

func (p *VisualCrossingProvider) Name() string { return p.name }

func (p *VisualCrossingProvider) MaxForecastDays() int { return 15 }

type vcConditions struct {
	Temp          float64 `json:"temp"`
	FeelsLike     float64 `json:"feelslike"`
	Humidity      float64 `json:"humidity"`
	Pressure      float64 `json:"pressure"`
	WindSpeed     float64 `json:"windspeed"`
	WindDir       float64 `json:"winddir"`
	Conditions    string  `json:"conditions"`
	Sunrise       string  `json:"sunrise"`
	SunriseEpoch  int64   `json:"sunriseEpoch"`
	Sunset        string  `json:"sunset"`
	Visibility    float64 `json:"visibility"`
	DatetimeEpoch int64   `json:"datetimeEpoch"`
}

type vcDay struct {
	Datetime   string  `json:"datetime"`
	TempMax    float64 `json:"tempmax"`
	TempMin    float64 `json:"tempmin"`
	Humidity   float64 `json:"humidity"`
	WindSpeed  float64 `json:"windspeed"`
	Pressure   float64 `json:"pressure"`
	PrecipProb float64 `json:"precipprob"`
	Conditions string  `json:"conditions"`
}

type vcAlert struct {
	Event       string `json:"event"`
	Description string `json:"description"`
	Onset       string `json:"onset"`
	Ends        string `json:"ends"`
}

type vcTimeline struct {
	CurrentConditions *vcConditions `json:"currentConditions"`
	Days              []vcDay       `json:"days"`
	Alerts            []vcAlert     `json:"alerts"`
}

func (p *VisualCrossingProvider) FetchCurrent(ctx context.Context, loc weather.ResolvedLocation) (*weather.CurrentConditions, error) {
	payload, err := p.timeline(ctx, loc, "today", "current,alerts")
	if err != nil {
		return nil, err
	}
	cc := payload.CurrentConditions
	if cc == nil {
		return nil, &weather.ProviderError{Provider: p.name, Message: "missing currentConditions in payload"}
	}

	observed := time.Unix(cc.DatetimeEpoch, 0).UTC()
	if cc.DatetimeEpoch == 0 {
		observed = time.Now().UTC()
	}

	return &weather.CurrentConditions{
		Temperature:   cc.Temp,
		FeelsLike:     cc.FeelsLike,
		Humidity:      cc.Humidity,
		Pressure:      cc.Pressure,
		WindSpeed:     cc.WindSpeed / 3.6, // metric unitGroup reports km/h
		WindDirection: cc.WindDir,
		ConditionText: cc.Conditions,
		Sunrise:       cc.Sunrise,
		SunriseUnix:   cc.SunriseEpoch,
		Sunset:        cc.Sunset,
		VisibilityKm:  cc.Visibility,
		ObservedAt:    observed,
	}, nil
}

func (p *VisualCrossingProvider) FetchForecast(ctx context.Context, loc weather.ResolvedLocation, days int) (weather.Forecast, error) {
	if days > p.MaxForecastDays() {
		days = p.MaxForecastDays()
	}
	if days < 1 {
		days = 1
	}

	end := time.Now().UTC().AddDate(0, 0, days-1).Format("2006-01-02")
	payload, err := p.timeline(ctx, loc, "today/"+end, "days,alerts")
	if err != nil {
		return nil, err
	}
	if len(payload.Days) == 0 {
		return nil, &weather.ProviderError{Provider: p.name, Message: "empty days in payload"}
	}

	forecast := make(weather.Forecast, 0, days)
	for _, d := range payload.Days {
		if len(forecast) >= days {
			break
		}
		high, low := d.TempMax, d.TempMin
		if low > high {
			high, low = low, high
		}
		forecast = append(forecast, weather.ForecastDay{
			Date:          d.Datetime,
			HighTemp:      high,
			LowTemp:       low,
			ConditionText: d.Conditions,
			Humidity:      d.Humidity,
			WindSpeed:     d.WindSpeed / 3.6,
			Pressure:      d.Pressure,
			PrecipProb:    d.PrecipProb,
		})
	}
	return forecast, nil
}

func (p *VisualCrossingProvider) FetchAlerts(ctx context.Context, loc weather.ResolvedLocation) (weather.AlertSet, error) {
	payload, err := p.timeline(ctx, loc, "today", "alerts")
	if err != nil {
		return weather.AlertSet{}, err
	}

	alerts := weather.NewAlertSet()
	for _, a := range payload.Alerts {
		title := a.Event
		if title == "" {
			title = "Weather Alert"
		}
		start := parseVCTime(a.Onset)
		end := parseVCTime(a.Ends)
		// The feed occasionally reports an end before the onset; keep the
		// onset and treat the alert as open-ended.
		if !end.IsZero() && end.Before(start) {
			end = time.Time{}
		}
		alerts.Add(weather.AlertRecord{
			Severity:       classifyEventSeverity(a.Event),
			Title:          title,
			Description:    a.Description,
			StartTime:      start,
			EndTime:        end,
			SourceProvider: p.name,
			Category:       classifyEventCategory(a.Event),
		})
	}
	return alerts, nil
}

func (p *VisualCrossingProvider) timeline(ctx context.Context, loc weather.ResolvedLocation, span, include string) (*vcTimeline, error) {
	values := url.Values{}
	values.Set("key", p.apiKey)
	values.Set("unitGroup", "metric")
	values.Set("include", include)
	values.Set("contentType", "json")

	endpoint := fmt.Sprintf("%s/%f,%f/%s?%s", p.baseURL, loc.Latitude, loc.Longitude, span, values.Encode())

	var payload vcTimeline
	if err := doJSON(ctx, p.client, p.circuit, p.name, endpoint, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// classifyEventSeverity maps an alert event name onto our severity scale
// using the usual warning/watch/advisory wording of upstream feeds.
func classifyEventSeverity(event string) weather.Severity {
	e := strings.ToLower(event)
	switch {
	case strings.Contains(e, "warning"), strings.Contains(e, "extreme"), strings.Contains(e, "severe"):
		return weather.SeveritySevere
	case strings.Contains(e, "watch"):
		return weather.SeverityModerate
	default:
		return weather.SeverityMinor
	}
}

func classifyEventCategory(event string) weather.AlertCategory {
	e := strings.ToLower(event)
	switch {
	case strings.Contains(e, "cyclone"), strings.Contains(e, "hurricane"), strings.Contains(e, "tropical"):
		return weather.CategoryCyclone
	case strings.Contains(e, "wind"):
		return weather.CategoryWind
	case strings.Contains(e, "tornado"), strings.Contains(e, "thunderstorm"), strings.Contains(e, "blizzard"), strings.Contains(e, "severe"):
		return weather.CategorySevere
	default:
		return weather.CategoryOther
	}
}

// parseVCTime handles the timestamp shapes the timeline API emits for alert
// onset/end fields.
func parseVCTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

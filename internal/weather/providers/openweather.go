package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mfields/weathervane/internal/weather"
)

// OpenWeatherProvider is the secondary provider. OpenWeatherMap serves
// current conditions and a 3-hourly forecast covering at most five days; it
// has no alert feed on this tier, so FetchAlerts returns an empty set.
type OpenWeatherProvider struct {
	name        string
	apiKey      string
	currentURL  string
	forecastURL string
	client      *http.Client
	circuit     *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:        "openweathermap",
		apiKey:      apiKey,
		currentURL:  "https://api.openweathermap.org/data/2.5/weather",
		forecastURL: "https://api.openweathermap.org/data/2.5/forecast",
		client:      client,
		circuit:     newBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string { return p.name }

func (p *OpenWeatherProvider) MaxForecastDays() int { return 5 }

func (p *OpenWeatherProvider) FetchCurrent(ctx context.Context, loc weather.ResolvedLocation) (*weather.CurrentConditions, error) {
	var payload struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  float64 `json:"humidity"`
			Pressure  float64 `json:"pressure"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
			Deg   float64 `json:"deg"`
		} `json:"wind"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Visibility float64 `json:"visibility"` // meters
		Sys        struct {
			Sunrise int64 `json:"sunrise"`
			Sunset  int64 `json:"sunset"`
		} `json:"sys"`
	}

	if err := doJSON(ctx, p.client, p.circuit, p.name, p.currentURL+"?"+p.query(loc).Encode(), &payload); err != nil {
		return nil, err
	}

	condition := ""
	if len(payload.Weather) > 0 {
		condition = payload.Weather[0].Description
	}

	observed := time.Unix(payload.Dt, 0).UTC()
	if payload.Dt == 0 {
		observed = time.Now().UTC()
	}

	return &weather.CurrentConditions{
		Temperature:   payload.Main.Temp,
		FeelsLike:     payload.Main.FeelsLike,
		Humidity:      payload.Main.Humidity,
		Pressure:      payload.Main.Pressure,
		WindSpeed:     payload.Wind.Speed, // metric units report m/s
		WindDirection: payload.Wind.Deg,
		ConditionText: condition,
		Sunrise:       clockTime(payload.Sys.Sunrise),
		SunriseUnix:   payload.Sys.Sunrise,
		Sunset:        clockTime(payload.Sys.Sunset),
		VisibilityKm:  payload.Visibility / 1000,
		ObservedAt:    observed,
	}, nil
}

func (p *OpenWeatherProvider) FetchForecast(ctx context.Context, loc weather.ResolvedLocation, days int) (weather.Forecast, error) {
	if days > p.MaxForecastDays() {
		days = p.MaxForecastDays()
	}
	if days < 1 {
		days = 1
	}

	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp     float64 `json:"temp"`
				Humidity float64 `json:"humidity"`
				Pressure float64 `json:"pressure"`
			} `json:"main"`
			Wind struct {
				Speed float64 `json:"speed"`
			} `json:"wind"`
			Weather []struct {
				Description string `json:"description"`
			} `json:"weather"`
			Pop float64 `json:"pop"`
		} `json:"list"`
	}

	if err := doJSON(ctx, p.client, p.circuit, p.name, p.forecastURL+"?"+p.query(loc).Encode(), &payload); err != nil {
		return nil, err
	}
	if len(payload.List) == 0 {
		return nil, &weather.ProviderError{Provider: p.name, Message: "empty forecast list in payload"}
	}

	// Group the 3-hourly entries into daily buckets.
	type bucket struct {
		high, low      float64
		sumHum         float64
		sumWind        float64
		sumPressure    float64
		maxPop         float64
		n              int
		conditionCount map[string]int
	}
	buckets := make(map[string]*bucket)

	for _, item := range payload.List {
		date := time.Unix(item.Dt, 0).UTC().Format("2006-01-02")
		b, ok := buckets[date]
		if !ok {
			b = &bucket{high: item.Main.Temp, low: item.Main.Temp, conditionCount: make(map[string]int)}
			buckets[date] = b
		}
		if item.Main.Temp > b.high {
			b.high = item.Main.Temp
		}
		if item.Main.Temp < b.low {
			b.low = item.Main.Temp
		}
		b.sumHum += item.Main.Humidity
		b.sumWind += item.Wind.Speed
		b.sumPressure += item.Main.Pressure
		if item.Pop > b.maxPop {
			b.maxPop = item.Pop
		}
		if len(item.Weather) > 0 {
			b.conditionCount[item.Weather[0].Description]++
		}
		b.n++
	}

	dates := make([]string, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	forecast := make(weather.Forecast, 0, days)
	for _, date := range dates {
		if len(forecast) >= days {
			break
		}
		b := buckets[date]
		n := float64(b.n)

		// Majority condition, ties broken lexicographically so output is stable.
		condition := ""
		best := 0
		for text, count := range b.conditionCount {
			if count > best || (count == best && text < condition) {
				best = count
				condition = text
			}
		}

		forecast = append(forecast, weather.ForecastDay{
			Date:          date,
			HighTemp:      b.high,
			LowTemp:       b.low,
			ConditionText: condition,
			Humidity:      b.sumHum / n,
			WindSpeed:     b.sumWind / n,
			Pressure:      b.sumPressure / n,
			PrecipProb:    b.maxPop * 100,
		})
	}
	return forecast, nil
}

// FetchAlerts returns an empty set: OpenWeatherMap has no native alert feed
// at this API tier. Derived alerts for this provider's data come from the
// synthesizer instead.
func (p *OpenWeatherProvider) FetchAlerts(ctx context.Context, loc weather.ResolvedLocation) (weather.AlertSet, error) {
	return weather.NewAlertSet(), nil
}

func (p *OpenWeatherProvider) query(loc weather.ResolvedLocation) url.Values {
	values := url.Values{}
	values.Set("lat", fmt.Sprintf("%f", loc.Latitude))
	values.Set("lon", fmt.Sprintf("%f", loc.Longitude))
	values.Set("units", "metric")
	values.Set("appid", p.apiKey)
	return values
}

func clockTime(unix int64) string {
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format("15:04")
}

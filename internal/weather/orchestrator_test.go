package weather

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeGeocoder struct {
	loc   ResolvedLocation
	err   error
	calls int
}

func (g *fakeGeocoder) Resolve(ctx context.Context, cityText string) (ResolvedLocation, error) {
	g.calls++
	if g.err != nil {
		return ResolvedLocation{}, g.err
	}
	return g.loc, nil
}

func (g *fakeGeocoder) Search(ctx context.Context, query string) ([]ResolvedLocation, error) {
	return []ResolvedLocation{g.loc}, nil
}

type fakeProvider struct {
	name    string
	maxDays int

	current    *CurrentConditions
	currentErr error

	forecastErr error

	alerts    AlertSet
	alertsErr error

	currentCalls  int
	forecastCalls int
	alertCalls    int
}

func (p *fakeProvider) Name() string         { return p.name }
func (p *fakeProvider) MaxForecastDays() int { return p.maxDays }

func (p *fakeProvider) FetchCurrent(ctx context.Context, loc ResolvedLocation) (*CurrentConditions, error) {
	p.currentCalls++
	if p.currentErr != nil {
		return nil, p.currentErr
	}
	return p.current, nil
}

func (p *fakeProvider) FetchForecast(ctx context.Context, loc ResolvedLocation, days int) (Forecast, error) {
	p.forecastCalls++
	if p.forecastErr != nil {
		return nil, p.forecastErr
	}
	if days > p.maxDays {
		days = p.maxDays
	}
	forecast := make(Forecast, 0, days)
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		forecast = append(forecast, ForecastDay{
			Date:     base.AddDate(0, 0, i).Format("2006-01-02"),
			HighTemp: 25,
			LowTemp:  15,
		})
	}
	return forecast, nil
}

func (p *fakeProvider) FetchAlerts(ctx context.Context, loc ResolvedLocation) (AlertSet, error) {
	p.alertCalls++
	if p.alertsErr != nil {
		return AlertSet{}, p.alertsErr
	}
	return p.alerts, nil
}

func miami() ResolvedLocation {
	return ResolvedLocation{Name: "Miami", Country: "US", Latitude: 25.76, Longitude: -80.19}
}

func calmCurrent() *CurrentConditions {
	return &CurrentConditions{
		Temperature:   28,
		WindSpeed:     4,
		ConditionText: "clear",
		ObservedAt:    time.Now().UTC(),
	}
}

func newTestOrchestrator(geo Geocoder, primary, secondary Provider, cache Cache) *Orchestrator {
	return NewOrchestrator(geo, primary, secondary, cache, Config{
		ForecastDays:   10,
		WindThreshold:  15,
		RequestTimeout: time.Second,
	})
}

func TestPerformBothProvidersFailIsTotalFailure(t *testing.T) {
	geo := &fakeGeocoder{loc: miami()}
	primary := &fakeProvider{
		name: "p", maxDays: 15,
		currentErr: &ProviderError{Provider: "p", Status: 500, Message: "boom"},
		alertsErr:  &ProviderError{Provider: "p", Status: 500, Message: "boom"},
	}
	secondary := &fakeProvider{
		name: "s", maxDays: 5,
		currentErr: &TransportError{Provider: "s", Err: errors.New("timeout")},
		alertsErr:  &TransportError{Provider: "s", Err: errors.New("timeout")},
	}
	orch := newTestOrchestrator(geo, primary, secondary, nil)

	result, err := orch.Perform(context.Background(), Query{City: "Miami", Units: UnitsMetric, Kind: KindCurrent})
	if err == nil {
		t.Fatalf("expected total failure, got result %+v", result)
	}
	var total *TotalFailure
	if !errors.As(err, &total) {
		t.Fatalf("expected *TotalFailure, got %T: %v", err, err)
	}
	if result != nil {
		t.Error("a total failure must never return a partially populated result")
	}
}

func TestPerformUnknownCitySkipsProviders(t *testing.T) {
	geo := &fakeGeocoder{err: &NotFoundError{City: "Nowhere12345"}}
	primary := &fakeProvider{name: "p", maxDays: 15}
	secondary := &fakeProvider{name: "s", maxDays: 5}
	orch := newTestOrchestrator(geo, primary, secondary, nil)

	_, err := orch.Perform(context.Background(), Query{City: "Nowhere12345", Units: UnitsMetric, Kind: KindCurrent})

	var total *TotalFailure
	if !errors.As(err, &total) {
		t.Fatalf("expected *TotalFailure, got %T: %v", err, err)
	}
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected wrapped *NotFoundError, got %v", err)
	}
	if primary.currentCalls+primary.forecastCalls+primary.alertCalls > 0 {
		t.Error("primary provider must not be called when resolution fails")
	}
	if secondary.currentCalls+secondary.forecastCalls+secondary.alertCalls > 0 {
		t.Error("secondary provider must not be called when resolution fails")
	}
}

func TestPerformPrimaryTimeoutFallsBackToSecondary(t *testing.T) {
	geo := &fakeGeocoder{loc: miami()}
	primary := &fakeProvider{
		name: "p", maxDays: 15,
		currentErr: &TransportError{Provider: "p", Err: context.DeadlineExceeded},
	}
	secondary := &fakeProvider{name: "s", maxDays: 5, current: calmCurrent()}
	orch := newTestOrchestrator(geo, primary, secondary, nil)

	result, trace, err := orch.perform(context.Background(), Query{City: "Miami", Units: UnitsMetric, Kind: KindCurrent})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Current == nil {
		t.Fatal("expected current conditions from the fallback provider")
	}
	if result.ProviderUsed != RoleFallback {
		t.Errorf("expected providerUsed %s, got %s", RoleFallback, result.ProviderUsed)
	}
	assertTraceContains(t, trace, StateTryingPrimary, StateTryingSecondary, StateSynthesizing, StateDone)
}

func TestPerformPrimarySuccessSkipsSecondaryForData(t *testing.T) {
	geo := &fakeGeocoder{loc: miami()}
	primary := &fakeProvider{name: "p", maxDays: 15, current: calmCurrent()}
	secondary := &fakeProvider{name: "s", maxDays: 5, current: calmCurrent()}
	orch := newTestOrchestrator(geo, primary, secondary, nil)

	result, trace, err := orch.perform(context.Background(), Query{City: "Miami", Units: UnitsMetric, Kind: KindCurrent})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ProviderUsed != RolePrimary {
		t.Errorf("expected providerUsed %s, got %s", RolePrimary, result.ProviderUsed)
	}
	if secondary.currentCalls != 0 {
		t.Error("secondary must not be consulted for current data after primary success")
	}
	// Alert feeds follow the data: only the provider that supplied data is
	// asked for its alerts.
	if primary.alertCalls != 1 || secondary.alertCalls != 0 {
		t.Errorf("expected alert fetch only from the contributing provider, got primary=%d secondary=%d",
			primary.alertCalls, secondary.alertCalls)
	}
	assertTraceContains(t, trace, StateTryingPrimary, StateSynthesizing, StateDone)
	for _, s := range trace {
		if s == StateTryingSecondary {
			t.Error("trace must not enter trying_secondary when primary succeeds")
		}
	}
}

func TestPerformForecastClampedBySecondary(t *testing.T) {
	geo := &fakeGeocoder{loc: miami()}
	primary := &fakeProvider{
		name: "p", maxDays: 15,
		forecastErr: &ProviderError{Provider: "p", Status: 429, Message: "rate limited"},
	}
	secondary := &fakeProvider{name: "s", maxDays: 5}
	orch := newTestOrchestrator(geo, primary, secondary, nil)

	result, err := orch.Perform(context.Background(), Query{City: "Miami", Units: UnitsMetric, Kind: KindForecast, Days: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Forecast) != 5 {
		t.Errorf("expected forecast clamped to 5 days, got %d", len(result.Forecast))
	}
	if !result.Truncated {
		t.Error("expected truncation flag when requested days exceed provider maximum")
	}
	if result.ProviderUsed != RoleFallback {
		t.Errorf("expected providerUsed %s, got %s", RoleFallback, result.ProviderUsed)
	}
}

func TestPerformForecastFullLengthFromPrimary(t *testing.T) {
	geo := &fakeGeocoder{loc: miami()}
	primary := &fakeProvider{name: "p", maxDays: 15}
	secondary := &fakeProvider{name: "s", maxDays: 5}
	orch := newTestOrchestrator(geo, primary, secondary, nil)

	result, err := orch.Perform(context.Background(), Query{City: "Miami", Units: UnitsMetric, Kind: KindForecast, Days: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Forecast) != 10 {
		t.Errorf("expected 10 forecast days from primary, got %d", len(result.Forecast))
	}
	if result.Truncated {
		t.Error("truncation flag must stay clear when the provider covers the request")
	}
	if result.ProviderUsed != RolePrimary {
		t.Errorf("expected providerUsed %s, got %s", RolePrimary, result.ProviderUsed)
	}
}

func TestPerformMergesNativeAndDerivedAlerts(t *testing.T) {
	native := NewAlertSet()
	native.Add(AlertRecord{
		Severity:       SeveritySevere,
		Title:          "Hurricane Warning",
		StartTime:      time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		SourceProvider: "p",
		Category:       CategoryCyclone,
	})

	geo := &fakeGeocoder{loc: miami()}
	windy := calmCurrent()
	windy.WindSpeed = 20
	primary := &fakeProvider{name: "p", maxDays: 15, current: windy, alerts: native}
	secondary := &fakeProvider{name: "s", maxDays: 5, current: calmCurrent()}
	orch := newTestOrchestrator(geo, primary, secondary, nil)

	result, err := orch.Perform(context.Background(), Query{City: "Miami", Units: UnitsMetric, Kind: KindCurrent})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Alerts.Len() != 2 {
		t.Fatalf("expected native + derived alert, got %d alerts", result.Alerts.Len())
	}
	var sources []string
	for _, a := range result.Alerts.Records() {
		sources = append(sources, a.SourceProvider)
	}
	found := map[string]bool{}
	for _, s := range sources {
		found[s] = true
	}
	if !found["p"] || !found[DerivedSource] {
		t.Errorf("expected alerts from provider and synthesizer, got sources %v", sources)
	}
}

func TestPerformPartialSuccessKeepsCurrent(t *testing.T) {
	geo := &fakeGeocoder{loc: miami()}
	primary := &fakeProvider{
		name: "p", maxDays: 15,
		current:     calmCurrent(),
		forecastErr: &ProviderError{Provider: "p", Status: 503, Message: "unavailable"},
	}
	secondary := &fakeProvider{
		name: "s", maxDays: 5,
		forecastErr: &TransportError{Provider: "s", Err: errors.New("refused")},
	}
	orch := newTestOrchestrator(geo, primary, secondary, nil)

	result, err := orch.Perform(context.Background(), Query{City: "Miami", Units: UnitsMetric, Kind: KindAll})
	if err != nil {
		t.Fatalf("partial success must not surface an error, got %v", err)
	}
	if result.Current == nil {
		t.Fatal("expected current conditions despite forecast failure")
	}
	if result.Sources[KindCurrent] != RolePrimary {
		t.Errorf("expected current sourced from %s, got %s", RolePrimary, result.Sources[KindCurrent])
	}
	if result.Forecast != nil {
		t.Error("forecast must be absent when both providers failed for it")
	}
	if len(result.Notes) == 0 {
		t.Error("expected an explanatory note for the absent forecast")
	}
}

func TestPerformAlertsKindConsultsContributingFeed(t *testing.T) {
	geo := &fakeGeocoder{loc: miami()}
	primary := &fakeProvider{name: "p", maxDays: 15, current: calmCurrent()}
	secondary := &fakeProvider{name: "s", maxDays: 5}
	orch := newTestOrchestrator(geo, primary, secondary, nil)

	result, err := orch.Perform(context.Background(), Query{City: "Miami", Units: UnitsMetric, Kind: KindAlerts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.alertCalls != 1 || secondary.alertCalls != 0 {
		t.Errorf("expected alert fetch only from the contributing provider, got primary=%d secondary=%d",
			primary.alertCalls, secondary.alertCalls)
	}
	if result.Current != nil {
		t.Error("an alerts-only query must not carry current conditions in the result")
	}
	if result.Sources[KindAlerts] != RolePrimary {
		t.Errorf("expected alerts sourced from %s, got %s", RolePrimary, result.Sources[KindAlerts])
	}
	if _, ok := result.Sources[KindCurrent]; ok {
		t.Error("sources must not advertise a kind the result does not carry")
	}
}

func TestPerformAlertFeedSkipsFailedProvider(t *testing.T) {
	geo := &fakeGeocoder{loc: miami()}
	primary := &fakeProvider{
		name: "p", maxDays: 15,
		currentErr: &ProviderError{Provider: "p", Status: 500, Message: "boom"},
	}
	secondary := &fakeProvider{name: "s", maxDays: 5, current: calmCurrent()}
	orch := newTestOrchestrator(geo, primary, secondary, nil)

	if _, err := orch.Perform(context.Background(), Query{City: "Miami", Units: UnitsMetric, Kind: KindCurrent}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.alertCalls != 0 {
		t.Errorf("a provider that failed this request must not be asked for alerts, got %d calls", primary.alertCalls)
	}
	if secondary.alertCalls != 1 {
		t.Errorf("expected one alert fetch from the fallback provider, got %d", secondary.alertCalls)
	}
}

func TestPerformServesRepeatQueriesFromCache(t *testing.T) {
	geo := &fakeGeocoder{loc: miami()}
	primary := &fakeProvider{name: "p", maxDays: 15, current: calmCurrent()}
	secondary := &fakeProvider{name: "s", maxDays: 5}
	cache := &fakeCache{data: make(map[string]*Result)}
	orch := newTestOrchestrator(geo, primary, secondary, cache)

	q := Query{City: "Miami", Units: UnitsMetric, Kind: KindCurrent}

	if _, err := orch.Perform(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.puts != 1 {
		t.Fatalf("expected 1 cache write, got %d", cache.puts)
	}

	if _, err := orch.Perform(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.currentCalls != 1 {
		t.Errorf("second query should be served from cache; primary called %d times", primary.currentCalls)
	}
}

func TestPerformAllWarmsPerKindCacheEntries(t *testing.T) {
	geo := &fakeGeocoder{loc: miami()}
	primary := &fakeProvider{name: "p", maxDays: 15, current: calmCurrent()}
	secondary := &fakeProvider{name: "s", maxDays: 5}
	cache := &fakeCache{data: make(map[string]*Result)}
	orch := newTestOrchestrator(geo, primary, secondary, cache)

	if _, err := orch.Perform(context.Background(), Query{City: "Miami", Units: UnitsMetric, Kind: KindAll}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	currentCalls, forecastCalls, alertCalls := primary.currentCalls, primary.forecastCalls, primary.alertCalls

	for _, kind := range []RequestKind{KindCurrent, KindForecast, KindAlerts} {
		result, err := orch.Perform(context.Background(), Query{City: "Miami", Units: UnitsMetric, Kind: kind})
		if err != nil {
			t.Fatalf("%s query after warm-up failed: %v", kind, err)
		}
		if result == nil {
			t.Fatalf("%s query after warm-up returned no result", kind)
		}
	}

	if primary.currentCalls != currentCalls || primary.forecastCalls != forecastCalls || primary.alertCalls != alertCalls {
		t.Errorf("per-kind queries after a full snapshot must be served warm; provider calls grew from %d/%d/%d to %d/%d/%d",
			currentCalls, forecastCalls, alertCalls,
			primary.currentCalls, primary.forecastCalls, primary.alertCalls)
	}

	warm, err := cache.Get(cacheKey(Query{City: "Miami", Units: UnitsMetric, Kind: KindForecast}))
	if err != nil {
		t.Fatalf("expected a warmed forecast entry: %v", err)
	}
	if warm.Current != nil {
		t.Error("forecast projection must not carry current conditions")
	}
	if len(warm.Forecast) == 0 {
		t.Error("forecast projection must carry the forecast days")
	}
}

type fakeCache struct {
	data map[string]*Result
	gen  uint64
	puts int
}

func (c *fakeCache) Begin(key string) uint64 {
	c.gen++
	return c.gen
}

func (c *fakeCache) Get(key string) (*Result, error) {
	if r, ok := c.data[key]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("not cached")
}

func (c *fakeCache) Put(key string, result *Result, gen uint64) bool {
	if gen < c.gen {
		return false
	}
	c.data[key] = result
	c.puts++
	return true
}

func assertTraceContains(t *testing.T, trace []State, want ...State) {
	t.Helper()
	i := 0
	for _, s := range trace {
		if i < len(want) && s == want[i] {
			i++
		}
	}
	if i != len(want) {
		t.Errorf("trace %v does not contain ordered states %v", trace, want)
	}
}

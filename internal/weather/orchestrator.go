package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// State names one phase of the fallback chain for a single request. The
// orchestrator records every transition so tests can assert on the chain
// instead of on error call stacks.
type State string

const (
	StateNotStarted      State = "not_started"
	StateTryingPrimary   State = "trying_primary"
	StateTryingSecondary State = "trying_secondary"
	StateSynthesizing    State = "synthesizing"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// KindAll requests current conditions, forecast and alerts in one action.
// The export surface uses it to capture a full snapshot.
const KindAll RequestKind = "all"

// Cache is the subset of the session cache the orchestrator needs.
type Cache interface {
	Begin(key string) uint64
	Get(key string) (*Result, error)
	Put(key string, result *Result, gen uint64) bool
}

// Config is the read-only configuration surface consumed by the orchestrator
// and passed explicitly at construction. No ambient key lookup.
type Config struct {
	ForecastDays   int
	WindThreshold  float64
	RequestTimeout time.Duration
}

// Orchestrator drives the dual-provider fallback chain: resolve the location
// once, try the primary provider per kind, fall back to the secondary on
// failure, then union native alerts from every reachable provider with
// synthesized ones.
type Orchestrator struct {
	geocoder  Geocoder
	primary   Provider
	secondary Provider
	cache     Cache
	cfg       Config
}

// NewOrchestrator wires the fallback chain. cache may be nil to disable
// session caching.
func NewOrchestrator(geocoder Geocoder, primary, secondary Provider, cache Cache, cfg Config) *Orchestrator {
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 10
	}
	if cfg.WindThreshold <= 0 {
		cfg.WindThreshold = DefaultWindThreshold
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Orchestrator{
		geocoder:  geocoder,
		primary:   primary,
		secondary: secondary,
		cache:     cache,
		cfg:       cfg,
	}
}

// Perform answers one user query. It returns a fresh immutable Result, or an
// error that is either *NotFoundError wrapped in *TotalFailure (unresolvable
// city) or *TotalFailure (every requested kind failed on both providers).
// Partial results are successes.
func (o *Orchestrator) Perform(ctx context.Context, q Query) (*Result, error) {
	result, _, err := o.perform(ctx, q)
	return result, err
}

// request tracks the per-request state machine and accounting.
type request struct {
	query  Query
	trace  []State
	result *Result

	// anyProviderData is set once any provider call for a requested kind
	// succeeds; without it the request is a total failure.
	anyProviderData bool

	// providerOK marks providers that supplied data this request, by chain
	// position (0 primary, 1 secondary). Alert feeds are only consulted for
	// marked providers.
	providerOK [2]bool
}

func (r *request) transition(s State) {
	r.trace = append(r.trace, s)
}

func (o *Orchestrator) perform(ctx context.Context, q Query) (*Result, []State, error) {
	key := cacheKey(q)

	if o.cache != nil {
		if cached, err := o.cache.Get(key); err == nil {
			return cached, nil, nil
		}
	}

	var gen uint64
	if o.cache != nil {
		gen = o.cache.Begin(key)
	}

	req := &request{query: q, trace: []State{StateNotStarted}}

	// Resolve once per user action; shared by every sub-request.
	loc, err := o.resolve(ctx, q.City)
	if err != nil {
		req.transition(StateFailed)
		log.Printf("orchestrator: location resolution failed for %q: %v", q.City, err)
		return nil, req.trace, &TotalFailure{Query: q, Err: err}
	}

	req.result = &Result{
		Location:  loc,
		Alerts:    NewAlertSet(),
		Sources:   make(map[RequestKind]ProviderRole),
		FetchedAt: time.Now().UTC(),
		Units:     q.Units,
	}

	wantCurrent := q.Kind == KindCurrent || q.Kind == KindAll || q.Kind == KindAlerts
	wantForecast := q.Kind == KindForecast || q.Kind == KindAll

	var synthCurrent *CurrentConditions

	if wantCurrent {
		current, role, err := o.fetchCurrent(ctx, req, loc)
		if err != nil {
			req.note("current conditions unavailable: %v", err)
		} else {
			req.anyProviderData = true
			synthCurrent = current
			req.result.ProviderUsed = role
			// An alerts-only query fetches current data solely to feed the
			// synthesizer; the result advertises only the alerts kind.
			if q.Kind == KindAlerts {
				req.result.Sources[KindAlerts] = role
			} else {
				req.result.Current = current
				req.result.Sources[KindCurrent] = role
			}
		}
	}

	if wantForecast {
		forecast, role, truncated, err := o.fetchForecast(ctx, req, loc)
		if err != nil {
			req.note("forecast unavailable: %v", err)
		} else {
			req.anyProviderData = true
			req.result.Forecast = forecast
			req.result.Truncated = req.result.Truncated || truncated
			req.result.Sources[KindForecast] = role
			if req.result.Current == nil {
				req.result.ProviderUsed = role
			}
		}
	}

	o.collectAlerts(ctx, req, loc, synthCurrent)

	if !req.anyProviderData {
		req.transition(StateFailed)
		return nil, req.trace, &TotalFailure{
			Query: q,
			Err:   errors.New("all requested kinds failed on both providers"),
		}
	}

	req.transition(StateDone)

	if o.cache != nil {
		if ok := o.cache.Put(key, req.result, gen); !ok {
			log.Printf("orchestrator: dropped stale result for %q (superseded by a newer query)", key)
		}
		if q.Kind == KindAll {
			o.storeProjections(q, req.result)
		}
	}
	return req.result, req.trace, nil
}

// storeProjections caches per-kind views of a full snapshot under the keys
// the single-kind queries read, so a warm-up pass actually warms the entries
// interactive lookups hit.
func (o *Orchestrator) storeProjections(q Query, full *Result) {
	for _, kind := range []RequestKind{KindCurrent, KindForecast, KindAlerts} {
		proj := projectResult(full, kind)
		if proj == nil {
			continue
		}
		pq := q
		pq.Kind = kind
		key := cacheKey(pq)
		o.cache.Put(key, proj, o.cache.Begin(key))
	}
}

// projectResult narrows a full snapshot to what a single-kind query would
// have returned, or nil when the snapshot lacks that kind.
func projectResult(full *Result, kind RequestKind) *Result {
	proj := &Result{
		Location:  full.Location,
		Alerts:    full.Alerts,
		Notes:     full.Notes,
		FetchedAt: full.FetchedAt,
		Units:     full.Units,
		Sources:   make(map[RequestKind]ProviderRole),
	}
	switch kind {
	case KindCurrent:
		if full.Current == nil {
			return nil
		}
		proj.Current = full.Current
		proj.Sources[KindCurrent] = full.Sources[KindCurrent]
		proj.ProviderUsed = full.Sources[KindCurrent]
	case KindForecast:
		if len(full.Forecast) == 0 {
			return nil
		}
		proj.Forecast = full.Forecast
		proj.Truncated = full.Truncated
		proj.Sources[KindForecast] = full.Sources[KindForecast]
		proj.ProviderUsed = full.Sources[KindForecast]
	case KindAlerts:
		role, ok := full.Sources[KindCurrent]
		if !ok {
			role, ok = full.Sources[KindForecast]
		}
		if !ok {
			return nil
		}
		proj.Sources[KindAlerts] = role
		proj.ProviderUsed = role
	default:
		return nil
	}
	return proj
}

func (o *Orchestrator) resolve(ctx context.Context, city string) (ResolvedLocation, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()
	return o.geocoder.Resolve(ctx, city)
}

// fetchCurrent runs the primary/secondary chain for current conditions.
// Exactly one attempt per provider; no retry loops.
func (o *Orchestrator) fetchCurrent(ctx context.Context, req *request, loc ResolvedLocation) (*CurrentConditions, ProviderRole, error) {
	req.transition(StateTryingPrimary)
	current, primaryErr := o.currentFrom(ctx, o.primary, loc)
	if primaryErr == nil {
		req.providerOK[0] = true
		return current, RolePrimary, nil
	}
	log.Printf("orchestrator: primary provider %s current fetch failed for %s: %v", o.primary.Name(), loc.Name, primaryErr)

	req.transition(StateTryingSecondary)
	current, secondaryErr := o.currentFrom(ctx, o.secondary, loc)
	if secondaryErr == nil {
		req.providerOK[1] = true
		return current, RoleFallback, nil
	}
	log.Printf("orchestrator: secondary provider %s current fetch failed for %s: %v", o.secondary.Name(), loc.Name, secondaryErr)

	return nil, "", fmt.Errorf("primary: %v; secondary: %v", primaryErr, secondaryErr)
}

func (o *Orchestrator) currentFrom(ctx context.Context, p Provider, loc ResolvedLocation) (*CurrentConditions, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()
	return p.FetchCurrent(ctx, loc)
}

func (o *Orchestrator) fetchForecast(ctx context.Context, req *request, loc ResolvedLocation) (Forecast, ProviderRole, bool, error) {
	days := req.query.Days
	if days <= 0 {
		days = o.cfg.ForecastDays
	}

	req.transition(StateTryingPrimary)
	forecast, primaryErr := o.forecastFrom(ctx, o.primary, loc, days)
	if primaryErr == nil {
		req.providerOK[0] = true
		return forecast, RolePrimary, days > o.primary.MaxForecastDays(), nil
	}
	log.Printf("orchestrator: primary provider %s forecast fetch failed for %s: %v", o.primary.Name(), loc.Name, primaryErr)

	req.transition(StateTryingSecondary)
	forecast, secondaryErr := o.forecastFrom(ctx, o.secondary, loc, days)
	if secondaryErr == nil {
		req.providerOK[1] = true
		return forecast, RoleFallback, days > o.secondary.MaxForecastDays(), nil
	}
	log.Printf("orchestrator: secondary provider %s forecast fetch failed for %s: %v", o.secondary.Name(), loc.Name, secondaryErr)

	return nil, "", false, fmt.Errorf("primary: %v; secondary: %v", primaryErr, secondaryErr)
}

func (o *Orchestrator) forecastFrom(ctx context.Context, p Provider, loc ResolvedLocation, days int) (Forecast, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()
	return p.FetchForecast(ctx, loc, days)
}

// collectAlerts unions native alerts with synthesized ones. Only providers
// that supplied data this request are consulted for their alert feed; a
// provider that already failed (or was never reached) is left alone, and the
// synthesizer covers the gap. Feed failures degrade to notes, never to
// request failure.
func (o *Orchestrator) collectAlerts(ctx context.Context, req *request, loc ResolvedLocation, current *CurrentConditions) {
	for i, p := range []Provider{o.primary, o.secondary} {
		if !req.providerOK[i] {
			continue
		}
		alerts, err := o.alertsFrom(ctx, p, loc)
		if err != nil {
			log.Printf("orchestrator: provider %s alert fetch failed for %s: %v", p.Name(), loc.Name, err)
			req.note("alerts from %s unavailable: %v", p.Name(), err)
			continue
		}
		req.result.Alerts.Union(alerts)
	}

	req.transition(StateSynthesizing)
	derived := Synthesize(current, req.result.Forecast, o.cfg.WindThreshold)
	req.result.Alerts.Union(derived)
}

func (o *Orchestrator) alertsFrom(ctx context.Context, p Provider, loc ResolvedLocation) (AlertSet, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()
	return p.FetchAlerts(ctx, loc)
}

// ValidateKeys probes both providers with a fixed well-known city so startup
// can report credential problems before the first user query.
func (o *Orchestrator) ValidateKeys(ctx context.Context) map[string]bool {
	results := make(map[string]bool)

	loc, err := o.resolve(ctx, "London")
	if err != nil {
		results[o.primary.Name()] = false
		results[o.secondary.Name()] = false
		return results
	}

	for _, p := range []Provider{o.primary, o.secondary} {
		_, err := o.currentFrom(ctx, p, loc)
		results[p.Name()] = err == nil
	}
	return results
}

func (r *request) note(format string, args ...any) {
	r.result.Notes = append(r.result.Notes, fmt.Sprintf(format, args...))
}

func cacheKey(q Query) string {
	return q.Key() + ":" + string(q.Kind)
}

package weather

import "fmt"

// TransportError wraps network-level failures: connection errors, timeouts,
// context deadlines. It carries the provider name when one is known.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("transport error: %v", e.Err)
	}
	return fmt.Sprintf("transport error from %s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProviderError covers non-2xx responses and malformed payloads from a
// provider. HTTP 429 lands here so the orchestrator treats rate limiting as
// an ordinary fallback trigger.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// NotFoundError means the geocoding lookup returned zero matches.
type NotFoundError struct {
	City string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no location found for %q", e.City)
}

// TotalFailure is the terminal error: either the location could not be
// resolved, or every requested kind failed on both providers.
type TotalFailure struct {
	Query Query
	Err   error
}

func (e *TotalFailure) Error() string {
	return fmt.Sprintf("weather request for %q failed: %v", e.Query.City, e.Err)
}

func (e *TotalFailure) Unwrap() error { return e.Err }

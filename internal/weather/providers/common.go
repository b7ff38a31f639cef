package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mfields/weathervane/internal/weather"
)

// maxErrorBody bounds how much of an error response body is kept for the
// ProviderError message.
const maxErrorBody = 512

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doJSON executes a single GET attempt through the provider's circuit
// breaker and decodes the JSON response into target. There is no retry loop:
// the orchestrator's policy is exactly one attempt per provider per kind, so
// any failure is translated and returned immediately.
//
// Failure mapping: network errors and context deadlines become
// *weather.TransportError; non-2xx statuses (429 included), open breaker
// state, and undecodable payloads become *weather.ProviderError.
func doJSON(ctx context.Context, client *http.Client, cb *gobreaker.CircuitBreaker, provider, url string, target any) error {
	result, err := cb.Execute(func() (interface{}, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			return nil, reqErr
		}

		resp, doErr := client.Do(req)
		if doErr != nil {
			return nil, &weather.TransportError{Provider: provider, Err: doErr}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, &weather.ProviderError{
				Provider: provider,
				Status:   resp.StatusCode,
				Message:  string(body),
			}
		}

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, &weather.TransportError{Provider: provider, Err: readErr}
		}
		return data, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &weather.ProviderError{Provider: provider, Message: fmt.Sprintf("circuit breaker: %v", err)}
		}
		var te *weather.TransportError
		var pe *weather.ProviderError
		if errors.As(err, &te) || errors.As(err, &pe) {
			return err
		}
		return &weather.TransportError{Provider: provider, Err: err}
	}

	data, ok := result.([]byte)
	if !ok {
		return &weather.ProviderError{Provider: provider, Message: "unexpected result type from circuit breaker"}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return &weather.ProviderError{Provider: provider, Message: fmt.Sprintf("malformed payload: %v", err)}
	}
	return nil
}

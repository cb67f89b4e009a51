package fetcher

import "fmt"

// QuotaError signals an explicit rate-limit payload from the provider.
type QuotaError struct {
	Message string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("alpha vantage rate limit: %s", e.Message)
}

// APIError signals a provider-level error payload that is not a quota
// message (bad parameters, invalid API key, and similar).
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpha vantage: %s", e.Message)
}

// NoDataError signals a response that carried no usable series for the
// symbol, typically an unknown ticker.
type NoDataError struct {
	Symbol string
	Series string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no %s data returned for %s", e.Series, e.Symbol)
}

// TransportError signals an HTTP-level failure before any provider payload
// could be interpreted.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("alpha vantage request failed: %v", e.Err)
	}
	return fmt.Sprintf("alpha vantage HTTP %d", e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

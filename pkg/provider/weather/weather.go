// Package weather defines the Forecaster interface for weather data backends.
//
// A Forecaster wraps a remote weather API and normalizes its responses into
// [Forecast] values so that tools and the conversation loop never touch
// provider-specific payloads.
//
// Implementors must be safe for concurrent use.
package weather

import (
	"context"
	"time"
)

// WeatherDay is the normalized forecast for a single calendar day.
type WeatherDay struct {
	// Date is the local calendar day the forecast applies to (midnight,
	// location-local interpretation; only the date part is meaningful).
	Date time.Time

	// Condition is a short human-readable description ("Partly cloudy").
	Condition string

	// MaxTempC and MinTempC are the daily temperature extremes in Celsius.
	MaxTempC float64
	MinTempC float64

	// ChanceOfRain is the probability of precipitation in percent [0,100].
	ChanceOfRain int
}

// Forecast is the normalized multi-day forecast for one location.
type Forecast struct {
	// City is the resolved location name as reported by the provider, which
	// may differ from the query string ("NYC" -> "New York").
	City string

	// Country is the resolved country name.
	Country string

	// Days holds one entry per forecast day, in chronological order starting
	// with today.
	Days []WeatherDay
}

// Forecaster is the abstraction over any weather data backend.
//
// Implementations perform exactly one upstream request per call: no retries,
// no caching. An upstream failure is returned as an error and is never
// conflated with an empty forecast.
type Forecaster interface {
	// Forecast returns the forecast for the given location. days must be in
	// [1,7]; implementations reject out-of-range values before any network
	// activity. The call is bounded by ctx and the implementation's own
	// request timeout, whichever fires first.
	Forecast(ctx context.Context, location string, days int) (*Forecast, error)
}

// Package mock provides a test double for the weather.Forecaster interface.
package mock

import (
	"context"
	"sync"

	"github.com/daytrip-ai/daytrip/pkg/provider/weather"
)

// ForecastCall records a single invocation of Forecast.
type ForecastCall struct {
	// Location is the location string passed to Forecast.
	Location string
	// Days is the day count passed to Forecast.
	Days int
}

// Forecaster is a mock implementation of weather.Forecaster.
// Zero values for response fields cause methods to return zero values and nil errors.
type Forecaster struct {
	mu sync.Mutex

	// ForecastResponse is returned by Forecast. May be nil.
	ForecastResponse *weather.Forecast

	// ForecastErr, if non-nil, is returned as the error from Forecast.
	ForecastErr error

	// ForecastFunc, if non-nil, overrides the canned response entirely.
	// The call is still recorded.
	ForecastFunc func(ctx context.Context, location string, days int) (*weather.Forecast, error)

	// ForecastCalls records every invocation of Forecast in order.
	ForecastCalls []ForecastCall
}

// Forecast records the call and returns the configured response.
func (f *Forecaster) Forecast(ctx context.Context, location string, days int) (*weather.Forecast, error) {
	f.mu.Lock()
	f.ForecastCalls = append(f.ForecastCalls, ForecastCall{Location: location, Days: days})
	fn := f.ForecastFunc
	resp, err := f.ForecastResponse, f.ForecastErr
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, location, days)
	}
	return resp, err
}

// Ensure Forecaster implements weather.Forecaster at compile time.
var _ weather.Forecaster = (*Forecaster)(nil)

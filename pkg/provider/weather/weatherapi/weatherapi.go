// Package weatherapi provides a weather.Forecaster backed by the
// WeatherAPI.com forecast endpoint (GET /v1/forecast.json).
package weatherapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/daytrip-ai/daytrip/pkg/provider/weather"
)

const (
	defaultBaseURL = "https://api.weatherapi.com/v1"
	defaultTimeout = 8 * time.Second

	// maxForecastDays is the upper bound accepted by the free WeatherAPI tier.
	maxForecastDays = 7
)

// Option is a functional option for configuring the Forecaster.
type Option func(*Forecaster)

// WithBaseURL overrides the API base URL. Useful for tests pointing at an
// httptest server.
func WithBaseURL(u string) Option {
	return func(f *Forecaster) {
		f.baseURL = u
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Forecaster) {
		f.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Forecaster) {
		f.httpClient = c
	}
}

// Forecaster implements weather.Forecaster backed by WeatherAPI.com.
type Forecaster struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a new WeatherAPI Forecaster. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Forecaster, error) {
	if apiKey == "" {
		return nil, errors.New("weatherapi: apiKey must not be empty")
	}
	f := &Forecaster{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// ---- API response types ----

// forecastResponse is the subset of the /v1/forecast.json payload we consume.
type forecastResponse struct {
	Location struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"location"`
	Forecast struct {
		ForecastDay []forecastDay `json:"forecastday"`
	} `json:"forecast"`
}

type forecastDay struct {
	Date string `json:"date"` // "2026-08-25"
	Day  struct {
		MaxTempC          float64 `json:"maxtemp_c"`
		MinTempC          float64 `json:"mintemp_c"`
		DailyChanceOfRain int     `json:"daily_chance_of_rain"`
		Condition         struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"day"`
}

// apiError is the error envelope WeatherAPI returns on non-200 responses.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Forecast implements weather.Forecaster.
func (f *Forecaster) Forecast(ctx context.Context, location string, days int) (*weather.Forecast, error) {
	if location == "" {
		return nil, errors.New("weatherapi: location must not be empty")
	}
	if days < 1 || days > maxForecastDays {
		return nil, fmt.Errorf("weatherapi: days must be in [1,%d], got %d", maxForecastDays, days)
	}

	q := url.Values{}
	q.Set("key", f.apiKey)
	q.Set("q", location)
	q.Set("days", strconv.Itoa(days))

	reqURL := f.baseURL + "/forecast.json?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("weatherapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weatherapi: forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var ae apiError
		if err := json.NewDecoder(resp.Body).Decode(&ae); err == nil && ae.Error.Message != "" {
			return nil, fmt.Errorf("weatherapi: status %d: %s (code %d)", resp.StatusCode, ae.Error.Message, ae.Error.Code)
		}
		return nil, fmt.Errorf("weatherapi: unexpected status %d", resp.StatusCode)
	}

	var fr forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("weatherapi: decode response: %w", err)
	}

	return normalize(&fr), nil
}

// Healthcheck probes reachability of the WeatherAPI endpoint. Any HTTP
// response counts as healthy; only transport-level failures are reported.
func (f *Forecaster) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.baseURL+"/forecast.json", nil)
	if err != nil {
		return fmt.Errorf("weatherapi: build healthcheck request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("weatherapi: unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// normalize converts the raw API payload into the provider-neutral Forecast.
// Days whose date fails to parse are skipped rather than failing the whole call.
func normalize(fr *forecastResponse) *weather.Forecast {
	out := &weather.Forecast{
		City:    fr.Location.Name,
		Country: fr.Location.Country,
		Days:    make([]weather.WeatherDay, 0, len(fr.Forecast.ForecastDay)),
	}
	for _, fd := range fr.Forecast.ForecastDay {
		date, err := time.Parse("2006-01-02", fd.Date)
		if err != nil {
			continue
		}
		out.Days = append(out.Days, weather.WeatherDay{
			Date:         date,
			Condition:    fd.Day.Condition.Text,
			MaxTempC:     fd.Day.MaxTempC,
			MinTempC:     fd.Day.MinTempC,
			ChanceOfRain: fd.Day.DailyChanceOfRain,
		})
	}
	return out
}

// Ensure Forecaster implements weather.Forecaster at compile time.
var _ weather.Forecaster = (*Forecaster)(nil)

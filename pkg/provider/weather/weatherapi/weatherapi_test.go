package weatherapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

const forecastPayload = `{
	"location": {"name": "Seattle", "country": "United States of America"},
	"forecast": {
		"forecastday": [
			{
				"date": "2026-09-01",
				"day": {
					"maxtemp_c": 24.5,
					"mintemp_c": 14.2,
					"daily_chance_of_rain": 20,
					"condition": {"text": "Partly cloudy"}
				}
			},
			{
				"date": "not-a-date",
				"day": {"condition": {"text": "Garbled"}}
			},
			{
				"date": "2026-09-02",
				"day": {
					"maxtemp_c": 19.0,
					"mintemp_c": 12.8,
					"daily_chance_of_rain": 80,
					"condition": {"text": "Rain"}
				}
			}
		]
	}
}`

func newTestForecaster(t *testing.T, status int, body string, captured *url.Values) *Forecaster {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = r.URL.Query()
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	f, err := New("wapi-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestForecast_Success(t *testing.T) {
	var q url.Values
	f := newTestForecaster(t, http.StatusOK, forecastPayload, &q)

	got, err := f.Forecast(context.Background(), "Seattle", 3)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}

	if q.Get("key") != "wapi-key" {
		t.Errorf("key param = %q, want wapi-key", q.Get("key"))
	}
	if q.Get("q") != "Seattle" {
		t.Errorf("q param = %q, want Seattle", q.Get("q"))
	}
	if q.Get("days") != "3" {
		t.Errorf("days param = %q, want 3", q.Get("days"))
	}

	if got.City != "Seattle" || got.Country != "United States of America" {
		t.Errorf("location = %q/%q, want Seattle/United States of America", got.City, got.Country)
	}
	// The unparsable middle day is skipped, not fatal.
	if len(got.Days) != 2 {
		t.Fatalf("len(Days) = %d, want 2", len(got.Days))
	}

	d := got.Days[0]
	if !d.Date.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v, want 2026-09-01", d.Date)
	}
	if d.Condition != "Partly cloudy" || d.MaxTempC != 24.5 || d.MinTempC != 14.2 || d.ChanceOfRain != 20 {
		t.Errorf("day = %+v, want the normalized first forecast day", d)
	}
	if got.Days[1].ChanceOfRain != 80 {
		t.Errorf("second day ChanceOfRain = %d, want 80", got.Days[1].ChanceOfRain)
	}
}

// TestForecast_APIError verifies the WeatherAPI error envelope is surfaced.
func TestForecast_APIError(t *testing.T) {
	f := newTestForecaster(t, http.StatusForbidden,
		`{"error":{"code":2008,"message":"API key has been disabled."}}`, nil)

	_, err := f.Forecast(context.Background(), "Seattle", 1)
	if err == nil {
		t.Fatal("Forecast() error = nil, want failure on 403")
	}
	if !strings.Contains(err.Error(), "disabled") || !strings.Contains(err.Error(), "2008") {
		t.Errorf("error = %v, want the upstream message and code", err)
	}
}

func TestForecast_UpstreamErrorWithoutEnvelope(t *testing.T) {
	f := newTestForecaster(t, http.StatusInternalServerError, "boom", nil)

	_, err := f.Forecast(context.Background(), "Seattle", 1)
	if err == nil {
		t.Fatal("Forecast() error = nil, want failure on 5xx")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %v, want the status code mentioned", err)
	}
}

func TestForecast_MalformedPayload(t *testing.T) {
	f := newTestForecaster(t, http.StatusOK, `{"location": [`, nil)

	if _, err := f.Forecast(context.Background(), "Seattle", 1); err == nil {
		t.Fatal("Forecast() error = nil, want decode failure")
	}
}

func TestForecast_Validation(t *testing.T) {
	f := newTestForecaster(t, http.StatusOK, forecastPayload, nil)

	if _, err := f.Forecast(context.Background(), "", 3); err == nil {
		t.Error("Forecast() with empty location: error = nil, want failure")
	}
	if _, err := f.Forecast(context.Background(), "Seattle", 0); err == nil {
		t.Error("Forecast() with days=0: error = nil, want failure")
	}
	if _, err := f.Forecast(context.Background(), "Seattle", 8); err == nil {
		t.Error("Forecast() with days=8: error = nil, want failure")
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") error = nil, want failure")
	}
}

func TestHealthcheck(t *testing.T) {
	f := newTestForecaster(t, http.StatusUnauthorized, "", nil)
	// Any HTTP response, even an error status, means the endpoint is reachable.
	if err := f.Healthcheck(context.Background()); err != nil {
		t.Errorf("Healthcheck() = %v, want nil for a reachable endpoint", err)
	}

	down, err := New("wapi-key", WithBaseURL("http://127.0.0.1:0"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := down.Healthcheck(context.Background()); err == nil {
		t.Error("Healthcheck() = nil, want transport failure for an unreachable endpoint")
	}
}

// Package ticketmaster provides an events.Source backed by the Ticketmaster
// Discovery API v2 (GET /discovery/v2/events.json).
package ticketmaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/daytrip-ai/daytrip/pkg/provider/events"
)

const (
	defaultBaseURL = "https://app.ticketmaster.com/discovery/v2"
	defaultTimeout = 8 * time.Second

	// perCallCap bounds one Discovery page. The aggregator never needs more
	// than this from a single source.
	perCallCap = 20
)

// Option is a functional option for configuring the Source.
type Option func(*Source)

// WithBaseURL overrides the API base URL. Useful for tests pointing at an
// httptest server.
func WithBaseURL(u string) Option {
	return func(s *Source) {
		s.baseURL = u
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		s.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		s.httpClient = c
	}
}

// Source implements events.Source backed by the Ticketmaster Discovery API.
type Source struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Ticketmaster Source. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Source, error) {
	if apiKey == "" {
		return nil, errors.New("ticketmaster: apiKey must not be empty")
	}
	s := &Source{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Name implements events.Source.
func (s *Source) Name() string { return "ticketmaster" }

// ---- API response types ----

// discoveryResponse is the subset of the events.json payload we consume.
type discoveryResponse struct {
	Embedded struct {
		Events []discoveryEvent `json:"events"`
	} `json:"_embedded"`
}

type discoveryEvent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Dates struct {
		Start struct {
			LocalDate string `json:"localDate"` // "2026-08-25"
			DateTime  string `json:"dateTime"`  // RFC 3339
		} `json:"start"`
	} `json:"dates"`
	Embedded struct {
		Venues []discoveryVenue `json:"venues"`
	} `json:"_embedded"`
}

type discoveryVenue struct {
	Name string `json:"name"`
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	Location struct {
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	} `json:"location"`
}

// Fetch implements events.Source.
func (s *Source) Fetch(ctx context.Context, q events.Query) ([]events.RawEvent, error) {
	if q.City == "" {
		return nil, errors.New("ticketmaster: query city must not be empty")
	}
	if len(q.CountryCode) != 2 {
		return nil, fmt.Errorf("ticketmaster: country code must be 2 letters, got %q", q.CountryCode)
	}

	size := perCallCap
	if q.MaxResults > 0 && q.MaxResults < size {
		size = q.MaxResults
	}

	params := url.Values{}
	params.Set("apikey", s.apiKey)
	params.Set("city", strings.TrimSpace(q.City))
	params.Set("countryCode", strings.ToUpper(q.CountryCode))
	params.Set("size", strconv.Itoa(size))
	if q.Keyword != "" {
		params.Set("keyword", strings.TrimSpace(q.Keyword))
	}
	if !q.Date.IsZero() {
		params.Set("startDateTime", q.Date.UTC().Format("2006-01-02T15:04:05Z"))
	}

	reqURL := s.baseURL + "/events.json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ticketmaster: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticketmaster: events request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticketmaster: unexpected status %d", resp.StatusCode)
	}

	var dr discoveryResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("ticketmaster: decode response: %w", err)
	}

	out := make([]events.RawEvent, 0, len(dr.Embedded.Events))
	for _, de := range dr.Embedded.Events {
		ev, ok := s.normalize(de)
		if !ok {
			continue
		}
		out = append(out, ev)
		if len(out) >= size {
			break
		}
	}
	return out, nil
}

// Healthcheck probes reachability of the Discovery endpoint. Any HTTP
// response counts as healthy; only transport-level failures are reported.
func (s *Source) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.baseURL+"/events.json", nil)
	if err != nil {
		return fmt.Errorf("ticketmaster: build healthcheck request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ticketmaster: unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// normalize converts one Discovery event. Events without a resolvable start
// time are reported as not ok and dropped by the caller.
func (s *Source) normalize(de discoveryEvent) (events.RawEvent, bool) {
	start, ok := resolveStart(de.Dates.Start.DateTime, de.Dates.Start.LocalDate)
	if !ok {
		return events.RawEvent{}, false
	}

	ev := events.RawEvent{
		Source: s.Name(),
		ID:     de.ID,
		Title:  de.Name,
		Start:  start,
		URL:    de.URL,
	}
	if len(de.Embedded.Venues) > 0 {
		v := de.Embedded.Venues[0]
		ev.Venue = v.Name
		ev.City = v.City.Name
		if lat, err := strconv.ParseFloat(v.Location.Latitude, 64); err == nil {
			ev.Lat = lat
		}
		if lon, err := strconv.ParseFloat(v.Location.Longitude, 64); err == nil {
			ev.Lon = lon
		}
	}
	return ev, true
}

// resolveStart prefers the full dateTime and falls back to the local date.
func resolveStart(dateTime, localDate string) (time.Time, bool) {
	if dateTime != "" {
		if t, err := time.Parse(time.RFC3339, dateTime); err == nil {
			return t, true
		}
	}
	if localDate != "" {
		if t, err := time.Parse("2006-01-02", localDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Ensure Source implements events.Source at compile time.
var _ events.Source = (*Source)(nil)

// Package places provides an events.Source backed by the Google Places Text
// Search API.
//
// Google Places lists venues, not scheduled events, so this source surfaces
// entertainment venues that plausibly host events around the query's reference
// date. Each venue becomes a RawEvent whose start time is the reference date
// itself; callers downstream treat these as softer signals than ticketed
// events.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/daytrip-ai/daytrip/pkg/provider/events"
)

const (
	defaultBaseURL = "https://maps.googleapis.com/maps/api/place"
	defaultTimeout = 8 * time.Second

	// perCallCap bounds venue results from one text search. Venue inference
	// is noisier than ticketed inventory, so the cap is tighter than the
	// ticketmaster one.
	perCallCap = 15
)

// venueTypes are the Places type classifications accepted as event venues.
var venueTypes = map[string]struct{}{
	"night_club":         {},
	"casino":             {},
	"museum":             {},
	"amusement_park":     {},
	"stadium":            {},
	"movie_theater":      {},
	"bowling_alley":      {},
	"art_gallery":        {},
	"zoo":                {},
	"tourist_attraction": {},
	"establishment":      {},
	"point_of_interest":  {},
}

// venueNameHints match venues whose type tags are too generic but whose names
// give them away.
var venueNameHints = []string{
	"theater", "theatre", "concert", "hall", "center", "venue", "club", "arena",
}

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

// Source implements events.Source backed by Google Places Text Search.
type Source struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Places Source. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Source, error) {
	if apiKey == "" {
		return nil, errors.New("places: apiKey must not be empty")
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
func (s *Source) Name() string { return "places" }

// ---- API response types ----

// textSearchResponse is the subset of the textsearch/json payload we consume.
type textSearchResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		PlaceID          string   `json:"place_id"`
		Name             string   `json:"name"`
		FormattedAddress string   `json:"formatted_address"`
		Rating           float64  `json:"rating"`
		Types            []string `json:"types"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Fetch implements events.Source.
func (s *Source) Fetch(ctx context.Context, q events.Query) ([]events.RawEvent, error) {
	if q.City == "" {
		return nil, errors.New("places: query city must not be empty")
	}
	if len(q.CountryCode) != 2 {
		return nil, fmt.Errorf("places: country code must be 2 letters, got %q", q.CountryCode)
	}

	limit := perCallCap
	if q.MaxResults > 0 && q.MaxResults < limit {
		limit = q.MaxResults
	}

	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("query", buildQuery(q))
	params.Set("type", "establishment")

	reqURL := s.baseURL + "/textsearch/json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("places: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places: text search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places: unexpected status %d", resp.StatusCode)
	}

	var tr textSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("places: decode response: %w", err)
	}

	switch tr.Status {
	case "OK":
	case "ZERO_RESULTS":
		return []events.RawEvent{}, nil
	default:
		if tr.ErrorMessage != "" {
			return nil, fmt.Errorf("places: API status %s: %s", tr.Status, tr.ErrorMessage)
		}
		return nil, fmt.Errorf("places: API status %s", tr.Status)
	}

	// Venues have no schedule of their own; anchor them to the reference date
	// so they rank alongside dated events.
	start := q.Date
	if start.IsZero() {
		now := time.Now().UTC()
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	out := make([]events.RawEvent, 0, limit)
	for _, place := range tr.Results {
		if !isEventVenue(place.Name, place.Types) {
			continue
		}
		ev := events.RawEvent{
			Source: s.Name(),
			ID:     place.PlaceID,
			Title:  place.Name,
			Start:  start,
			City:   q.City,
			Lat:    place.Geometry.Location.Lat,
			Lon:    place.Geometry.Location.Lng,
		}
		if place.Rating > 0 {
			// Google ratings are on a 0-5 scale.
			pop := place.Rating / 5.0
			if pop > 1 {
				pop = 1
			}
			ev.Popularity = &pop
		}
		out = append(out, ev)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Healthcheck probes reachability of the Places endpoint. Any HTTP response
// counts as healthy; only transport-level failures are reported.
func (s *Source) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.baseURL+"/textsearch/json", nil)
	if err != nil {
		return fmt.Errorf("places: build healthcheck request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("places: unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// buildQuery assembles the free-text search string: user keywords first, then
// venue-oriented terms, then the geographic anchor.
func buildQuery(q events.Query) string {
	parts := make([]string, 0, 4)
	if q.Keyword != "" {
		parts = append(parts, strings.TrimSpace(q.Keyword))
	}
	parts = append(parts, "events entertainment venues concerts theaters halls")
	parts = append(parts, fmt.Sprintf("%s, %s", strings.TrimSpace(q.City), strings.ToUpper(q.CountryCode)))
	return strings.Join(parts, " ")
}

// isEventVenue reports whether a place looks like somewhere events happen,
// either by its type tags or by its name.
func isEventVenue(name string, types []string) bool {
	for _, t := range types {
		if _, ok := venueTypes[t]; ok {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, hint := range venueNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// Ensure Source implements events.Source at compile time.
var _ events.Source = (*Source)(nil)

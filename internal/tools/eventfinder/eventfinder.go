// Package eventfinder implements the built-in get_events tool on top of the
// multi-source event aggregator.
package eventfinder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	internalevents "github.com/daytrip-ai/daytrip/internal/events"
	"github.com/daytrip-ai/daytrip/internal/tools"
	"github.com/daytrip-ai/daytrip/pkg/provider/events"
	"github.com/daytrip-ai/daytrip/pkg/types"
)

// Name is the tool identifier offered to the model.
const Name = "get_events"

const (
	defaultMaxResults = 20
	maxMaxResults     = 100
)

// Aggregator is the slice of the event aggregator this tool needs.
type Aggregator interface {
	GetEvents(ctx context.Context, q events.Query) ([]internalevents.RankedEvent, internalevents.Coverage, error)
}

// args is the decoded get_events argument object.
type args struct {
	City        string `json:"city"`
	CountryCode string `json:"country_code"`
	Keywords    string `json:"keywords"`
	StartDate   string `json:"start_date"`
	MaxResults  int    `json:"max_results"`
}

// response is the JSON result handed back to the model: the echoed query,
// aggregation metadata, and the ranked events.
type response struct {
	Query    queryEcho       `json:"query"`
	Metadata metadata        `json:"metadata"`
	Events   []responseEvent `json:"events"`
}

type queryEcho struct {
	City        string `json:"city"`
	CountryCode string `json:"country_code"`
	Keywords    string `json:"keywords,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	MaxResults  int    `json:"max_results"`
}

type metadata struct {
	TotalResults int      `json:"total_results"`
	SourcesUsed  []string `json:"sources_used"`
	Errors       []string `json:"errors"`
	Timestamp    string   `json:"timestamp"`
}

type responseEvent struct {
	Source     string   `json:"source"`
	ID         string   `json:"id,omitempty"`
	Title      string   `json:"title"`
	Start      string   `json:"start"`
	Venue      string   `json:"venue,omitempty"`
	City       string   `json:"city,omitempty"`
	URL        string   `json:"url,omitempty"`
	Popularity *float64 `json:"popularity,omitempty"`
	Score      float64  `json:"score"`
}

// New builds the get_events tool backed by the given aggregator.
func New(agg Aggregator) tools.Tool {
	return tools.Tool{
		Definition: types.ToolDefinition{
			Name:        Name,
			Description: "Search for events and entertainment venues in a specified city using multiple data sources. Aggregates and ranks results from TicketMaster and Google Places to provide comprehensive event listings with intelligent scoring.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{
						"type":        "string",
						"description": "The city to search for events in (e.g., 'Austin', 'Los Angeles', 'Seattle', 'New York'). Supports major international cities.",
					},
					"country_code": map[string]any{
						"type":        "string",
						"description": "Two-letter ISO 3166-1 alpha-2 country code (e.g., 'US', 'CA', 'GB', 'AU')",
						"pattern":     "^[A-Z]{2}$",
						"minLength":   2,
						"maxLength":   2,
					},
					"keywords": map[string]any{
						"type":        "string",
						"description": "Optional keywords to filter events by category, genre, or type (e.g., 'music', 'comedy', 'sports', 'theater', 'concerts', 'festivals')",
					},
					"start_date": map[string]any{
						"type":        "string",
						"description": "Optional start date filter in ISO 8601 format (e.g., '2026-08-10T00:00:00Z') to find events occurring on or after this date",
						"format":      "date-time",
					},
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results to return from aggregation",
						"minimum":     1,
						"maximum":     maxMaxResults,
						"default":     defaultMaxResults,
					},
				},
				"required":             []any{"city", "country_code"},
				"additionalProperties": false,
			},
		},
		Handler: handler(agg),
	}
}

func handler(agg Aggregator) tools.Handler {
	return func(ctx context.Context, rawArgs string) (string, error) {
		var a args
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", fmt.Errorf("eventfinder: decode arguments: %w", err)
		}

		q, err := buildQuery(a)
		if err != nil {
			return "", err
		}

		ranked, cov, err := agg.GetEvents(ctx, q)
		if err != nil {
			return "", fmt.Errorf("eventfinder: %w", err)
		}

		resp := response{
			Query: queryEcho{
				City:        q.City,
				CountryCode: q.CountryCode,
				Keywords:    q.Keyword,
				StartDate:   a.StartDate,
				MaxResults:  q.MaxResults,
			},
			Metadata: metadata{
				TotalResults: len(ranked),
				SourcesUsed:  orEmpty(cov.SourcesUsed()),
				Errors:       orEmpty(cov.Errors()),
				Timestamp:    cov.Timestamp.Format(time.RFC3339),
			},
			Events: make([]responseEvent, 0, len(ranked)),
		}
		for _, ev := range ranked {
			resp.Events = append(resp.Events, responseEvent{
				Source:     ev.Source,
				ID:         ev.ID,
				Title:      ev.Title,
				Start:      ev.Start.Format(time.RFC3339),
				Venue:      ev.Venue,
				City:       ev.City,
				URL:        ev.URL,
				Popularity: ev.Popularity,
				Score:      ev.Score,
			})
		}

		out, err := json.Marshal(resp)
		if err != nil {
			return "", fmt.Errorf("eventfinder: encode response: %w", err)
		}
		return string(out), nil
	}
}

// buildQuery validates the decoded arguments and converts them to an
// aggregator query. Validation failures surface to the model as error
// results, not as faults.
func buildQuery(a args) (events.Query, error) {
	city := strings.TrimSpace(a.City)
	if city == "" {
		return events.Query{}, fmt.Errorf("eventfinder: city must not be empty")
	}

	cc := strings.ToUpper(strings.TrimSpace(a.CountryCode))
	if !isAlpha2(cc) {
		return events.Query{}, fmt.Errorf("eventfinder: country_code must be a two-letter ISO 3166-1 code, got %q", a.CountryCode)
	}

	maxResults := a.MaxResults
	if maxResults == 0 {
		maxResults = defaultMaxResults
	}
	if maxResults < 1 || maxResults > maxMaxResults {
		return events.Query{}, fmt.Errorf("eventfinder: max_results must be between 1 and %d, got %d", maxMaxResults, a.MaxResults)
	}

	date := time.Now().UTC()
	if a.StartDate != "" {
		parsed, err := time.Parse(time.RFC3339, a.StartDate)
		if err != nil {
			return events.Query{}, fmt.Errorf("eventfinder: start_date must be ISO 8601 (e.g. 2026-08-10T00:00:00Z), got %q", a.StartDate)
		}
		date = parsed
	}

	return events.Query{
		City:        city,
		CountryCode: cc,
		Keyword:     strings.TrimSpace(a.Keywords),
		Date:        date,
		MaxResults:  maxResults,
	}, nil
}

// isAlpha2 reports whether s is exactly two ASCII letters.
func isAlpha2(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// orEmpty turns a nil slice into an empty one so the JSON stays an array.
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

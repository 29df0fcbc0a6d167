// Package events defines the Source interface for event discovery backends.
//
// A Source wraps one upstream catalog (ticketed events, venue directories) and
// normalizes its payloads into [RawEvent] values. Ranking, deduplication, and
// fan-out across sources happen elsewhere; a Source only fetches and
// normalizes.
//
// Implementors must be safe for concurrent use.
package events

import (
	"context"
	"time"
)

// Query describes one event search.
type Query struct {
	// City is the target city name. Must be non-empty.
	City string

	// CountryCode is the ISO-3166 alpha-2 country code ("US", "DE").
	CountryCode string

	// Keyword optionally narrows the search ("jazz", "outdoor").
	Keyword string

	// Date is the reference date of the search. Sources that list undated
	// inventory (venue directories) resolve event start times from it.
	Date time.Time

	// MaxResults caps how many events the caller wants overall. Sources apply
	// their own per-source cap on top of it.
	MaxResults int
}

// RawEvent is a single normalized event as returned by one Source, before
// deduplication and ranking.
type RawEvent struct {
	// Source is the name of the Source that produced this event.
	Source string

	// ID is the upstream identifier, opaque and unique within a Source.
	ID string

	// Title is the event or venue name.
	Title string

	// Start is the event start time. Events without a resolvable start are
	// dropped by the Source.
	Start time.Time

	// Venue is the venue name. Empty when the upstream does not distinguish
	// the venue from the event itself.
	Venue string

	// City is the upstream-reported city, when available.
	City string

	// Lat and Lon are the venue coordinates; both zero when unknown.
	Lat float64
	Lon float64

	// URL links to the upstream detail page, when available.
	URL string

	// Popularity is the provider's popularity signal normalized to [0,1].
	// Nil when the provider has no such signal.
	Popularity *float64
}

// Source is the abstraction over one event discovery backend.
//
// Implementations perform exactly one upstream request per Fetch: no retries,
// no caching. An upstream failure is an error; a successful search with no
// matches returns an empty slice and a nil error. The two are never conflated.
type Source interface {
	// Name returns the stable source identifier ("ticketmaster", "places").
	Name() string

	// Fetch returns the normalized events matching q. The call is bounded by
	// ctx; implementations must return promptly once it is cancelled.
	Fetch(ctx context.Context, q Query) ([]RawEvent, error)
}

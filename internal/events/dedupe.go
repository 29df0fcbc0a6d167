package events

import (
	"strings"

	"github.com/daytrip-ai/daytrip/pkg/provider/events"
)

// sourcePriority breaks richness ties between duplicate events: lower wins.
// Ticketed inventory is preferred over venue inference.
var sourcePriority = map[string]int{
	"ticketmaster": 0,
	"places":       1,
}

// dedupe collapses events that describe the same real-world happening.
//
// Two events are duplicates when their normalized titles match, they start on
// the same calendar day, and their venues are equal after normalization or at
// least one venue is empty. Of each duplicate group the richest payload
// survives; on equal richness the source with the higher priority wins, and
// the earlier-seen event wins after that. The operation is idempotent and
// preserves first-seen order of the surviving events.
func dedupe(evs []events.RawEvent) []events.RawEvent {
	type slot struct {
		venue string // normalized, may be ""
		idx   int    // position in out
	}

	out := make([]events.RawEvent, 0, len(evs))
	buckets := make(map[string][]slot)

next:
	for _, ev := range evs {
		key := normalize(ev.Title) + "|" + ev.Start.Format("2006-01-02")
		venue := normalize(ev.Venue)

		for i := range buckets[key] {
			sl := &buckets[key][i]
			if sl.venue != "" && venue != "" && sl.venue != venue {
				continue
			}
			// Duplicate: keep the richer of the two in place. When the
			// replacement names a venue the slot must adopt it, so that later
			// events with a conflicting venue no longer match this group.
			if prefer(ev, out[sl.idx]) {
				out[sl.idx] = ev
				if venue != "" {
					sl.venue = venue
				}
			}
			continue next
		}

		buckets[key] = append(buckets[key], slot{venue: venue, idx: len(out)})
		out = append(out, ev)
	}
	return out
}

// prefer reports whether candidate should replace kept.
func prefer(candidate, kept events.RawEvent) bool {
	cr, kr := richness(candidate), richness(kept)
	if cr != kr {
		return cr > kr
	}
	cp, cok := sourcePriority[candidate.Source]
	kp, kok := sourcePriority[kept.Source]
	if cok && kok && cp != kp {
		return cp < kp
	}
	// Equal richness and priority: first seen wins.
	return false
}

// richness counts the populated fields of an event. Used to decide which of
// two duplicates carries more information.
func richness(ev events.RawEvent) int {
	n := 0
	if ev.ID != "" {
		n++
	}
	if ev.Title != "" {
		n++
	}
	if !ev.Start.IsZero() {
		n++
	}
	if ev.Venue != "" {
		n++
	}
	if ev.City != "" {
		n++
	}
	if ev.URL != "" {
		n++
	}
	if ev.Lat != 0 || ev.Lon != 0 {
		n++
	}
	if ev.Popularity != nil {
		n++
	}
	return n
}

// normalize lowercases, strips punctuation, and collapses whitespace so that
// "The Midnight — LIVE!" and "the midnight live" compare equal.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case isAlphanumeric(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

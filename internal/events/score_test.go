package events

import (
	"testing"
	"time"

	"github.com/daytrip-ai/daytrip/pkg/provider/events"
)

// fixedScorer returns a Scorer whose clock is pinned so recency is
// deterministic.
func fixedScorer(cfg ScoringConfig, now time.Time) *Scorer {
	s := NewScorer(cfg)
	s.now = func() time.Time { return now }
	return s
}

func ptr(v float64) *float64 { return &v }

// TestScore_PopularityMonotonic verifies that at equal dates a more popular
// event never scores below a less popular one.
func TestScore_PopularityMonotonic(t *testing.T) {
	t.Parallel()

	now := day("2026-09-01")
	s := fixedScorer(DefaultScoringConfig(), now)
	start := day("2026-09-03")

	low := events.RawEvent{Source: "places", Title: "A", Start: start, Popularity: ptr(0.2)}
	high := events.RawEvent{Source: "places", Title: "A", Start: start, Popularity: ptr(0.9)}

	if s.Score(high, "") <= s.Score(low, "") {
		t.Errorf("Score(popularity 0.9) = %v, want > Score(popularity 0.2) = %v",
			s.Score(high, ""), s.Score(low, ""))
	}
}

// TestScore_RecencyMonotonic verifies that at equal popularity a sooner event
// never scores below a later one.
func TestScore_RecencyMonotonic(t *testing.T) {
	t.Parallel()

	now := day("2026-09-01")
	s := fixedScorer(DefaultScoringConfig(), now)

	soon := events.RawEvent{Source: "ticketmaster", Title: "A", Start: day("2026-09-02")}
	later := events.RawEvent{Source: "ticketmaster", Title: "A", Start: day("2026-10-15")}

	if s.Score(soon, "") < s.Score(later, "") {
		t.Errorf("Score(soon) = %v, want >= Score(later) = %v",
			s.Score(soon, ""), s.Score(later, ""))
	}
}

// TestScore_RecencyBounded verifies the recency bonus never exceeds its
// configured weight, even for an event starting immediately.
func TestScore_RecencyBounded(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()
	now := day("2026-09-01")
	s := fixedScorer(cfg, now)

	immediate := events.RawEvent{Source: "ticketmaster", Title: "A", Start: now}
	withoutRecency := events.RawEvent{Source: "ticketmaster", Title: "A"} // zero start, no bonus

	diff := s.Score(immediate, "") - s.Score(withoutRecency, "")
	if diff > cfg.RecencyWeight+1e-9 {
		t.Errorf("recency bonus = %v, want <= %v", diff, cfg.RecencyWeight)
	}
}

func TestScore_PastEventsGetNoRecencyBonus(t *testing.T) {
	t.Parallel()

	now := day("2026-09-10")
	s := fixedScorer(DefaultScoringConfig(), now)

	past := events.RawEvent{Source: "ticketmaster", Title: "A", Start: day("2026-09-01")}
	undated := events.RawEvent{Source: "ticketmaster", Title: "A"}

	if got, want := s.Score(past, ""), s.Score(undated, ""); got != want {
		t.Errorf("Score(past) = %v, want %v (no recency bonus)", got, want)
	}
}

// TestScore_BaselineSubstitutesForMissingPopularity verifies the baseline is
// used only when the source has no popularity signal.
func TestScore_BaselineSubstitutesForMissingPopularity(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()
	now := day("2026-09-01")
	s := fixedScorer(cfg, now)

	noSignal := events.RawEvent{Source: "places", Title: "A"}
	atBaseline := events.RawEvent{Source: "places", Title: "A", Popularity: ptr(cfg.Baseline)}

	if got, want := s.Score(noSignal, ""), s.Score(atBaseline, ""); got != want {
		t.Errorf("Score(no signal) = %v, want %v", got, want)
	}
}

func TestScore_TrustWeights(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()
	now := day("2026-09-01")
	s := fixedScorer(cfg, now)

	tm := events.RawEvent{Source: "ticketmaster", Title: "A"}
	pl := events.RawEvent{Source: "places", Title: "A"}
	unknown := events.RawEvent{Source: "somewhere", Title: "A"}

	if s.Score(tm, "") <= s.Score(pl, "") {
		t.Errorf("ticketmaster score %v not above places score %v", s.Score(tm, ""), s.Score(pl, ""))
	}
	if got, want := s.Score(unknown, ""), cfg.Baseline; got != want {
		t.Errorf("Score(unknown source) = %v, want bare baseline %v", got, want)
	}
}

func TestScore_KeywordBonus(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()
	now := day("2026-09-01")
	s := fixedScorer(cfg, now)

	ev := events.RawEvent{Source: "places", Title: "Jazz Concert", Venue: "Blue Note"}

	tests := []struct {
		name    string
		keyword string
		matches int
	}{
		{"no keyword", "", 0},
		{"exact match", "jazz", 1},
		{"fuzzy plural", "concerts", 1},
		{"two keywords", "jazz concerts", 2},
		{"no match", "basketball", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := s.Score(ev, tt.keyword) - s.Score(ev, "")
			want := float64(tt.matches) * cfg.KeywordBonus
			if got < want-1e-9 || got > want+1e-9 {
				t.Errorf("keyword bonus for %q = %v, want %v", tt.keyword, got, want)
			}
		})
	}
}

// TestSortRanked verifies the full ordering chain: score descending, then
// start ascending, then title ascending.
func TestSortRanked(t *testing.T) {
	t.Parallel()

	evs := []RankedEvent{
		{RawEvent: events.RawEvent{Title: "C", Start: day("2026-09-03")}, Score: 1.0},
		{RawEvent: events.RawEvent{Title: "B", Start: day("2026-09-02")}, Score: 1.0},
		{RawEvent: events.RawEvent{Title: "A", Start: day("2026-09-02")}, Score: 1.0},
		{RawEvent: events.RawEvent{Title: "D", Start: day("2026-09-09")}, Score: 2.0},
	}
	sortRanked(evs)

	wantTitles := []string{"D", "A", "B", "C"}
	for i, want := range wantTitles {
		if evs[i].Title != want {
			t.Errorf("position %d = %q, want %q", i, evs[i].Title, want)
		}
	}
}

// TestNewScorer_FillsZeroFields verifies a partially specified config keeps
// defaults for everything it does not set.
func TestNewScorer_FillsZeroFields(t *testing.T) {
	t.Parallel()

	s := NewScorer(ScoringConfig{KeywordBonus: 0.5})
	def := DefaultScoringConfig()

	if s.cfg.KeywordBonus != 0.5 {
		t.Errorf("KeywordBonus = %v, want the override 0.5", s.cfg.KeywordBonus)
	}
	if s.cfg.Baseline != def.Baseline || s.cfg.RecencyWeight != def.RecencyWeight {
		t.Errorf("defaults not filled: %+v", s.cfg)
	}
	if s.cfg.Trust["ticketmaster"] != def.Trust["ticketmaster"] {
		t.Errorf("Trust = %v, want default trust map", s.cfg.Trust)
	}
}

package events

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/daytrip-ai/daytrip/pkg/provider/events"
)

// ScoringConfig holds the weights of the composite ranking score.
//
// The score of an event is:
//
//	popularity (or Baseline when the source has no signal)
//	+ recency bonus, decaying with days until the event, capped at RecencyWeight
//	+ per-source trust weight
//	+ KeywordBonus per query keyword fuzzy-matched in title or venue
type ScoringConfig struct {
	// Baseline substitutes for the popularity component when a source
	// provides no popularity signal.
	Baseline float64 `yaml:"baseline"`

	// RecencyWeight is the maximum recency bonus, awarded to events starting
	// right now. The bonus halves every RecencyHalfLifeDays.
	RecencyWeight float64 `yaml:"recency_weight"`

	// RecencyHalfLifeDays controls how fast the recency bonus decays.
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"`

	// Trust maps source names to a fixed trust weight added to every event
	// from that source. Unknown sources get zero.
	Trust map[string]float64 `yaml:"trust"`

	// KeywordBonus is added once per query keyword that fuzzy-matches a token
	// of the event title or venue.
	KeywordBonus float64 `yaml:"keyword_bonus"`

	// KeywordThreshold is the minimum Jaro-Winkler similarity for a keyword
	// to count as matched, in [0,1].
	KeywordThreshold float64 `yaml:"keyword_threshold"`
}

// DefaultScoringConfig returns the scoring weights used when the config file
// does not override them.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Baseline:            0.5,
		RecencyWeight:       0.3,
		RecencyHalfLifeDays: 7,
		Trust: map[string]float64{
			"ticketmaster": 0.2,
			"places":       0.1,
		},
		KeywordBonus:     0.25,
		KeywordThreshold: 0.85,
	}
}

// Scorer computes composite ranking scores for events.
type Scorer struct {
	cfg ScoringConfig

	// now is swapped out in tests for deterministic recency.
	now func() time.Time
}

// NewScorer creates a Scorer with the given weights. Zero-value fields take
// the [DefaultScoringConfig] value, so a config file may override weights
// selectively.
func NewScorer(cfg ScoringConfig) *Scorer {
	def := DefaultScoringConfig()
	if cfg.Baseline == 0 {
		cfg.Baseline = def.Baseline
	}
	if cfg.RecencyWeight == 0 {
		cfg.RecencyWeight = def.RecencyWeight
	}
	if cfg.RecencyHalfLifeDays == 0 {
		cfg.RecencyHalfLifeDays = def.RecencyHalfLifeDays
	}
	if cfg.Trust == nil {
		cfg.Trust = def.Trust
	}
	if cfg.KeywordBonus == 0 {
		cfg.KeywordBonus = def.KeywordBonus
	}
	if cfg.KeywordThreshold == 0 {
		cfg.KeywordThreshold = def.KeywordThreshold
	}
	return &Scorer{cfg: cfg, now: time.Now}
}

// Score computes the composite score of ev for the given query keyword string.
// keyword may be empty, in which case no relevance bonus applies.
func (s *Scorer) Score(ev events.RawEvent, keyword string) float64 {
	score := s.cfg.Baseline
	if ev.Popularity != nil {
		score = clamp01(*ev.Popularity)
	}

	score += s.recencyBonus(ev.Start)
	score += s.cfg.Trust[ev.Source]
	score += s.keywordBonus(ev, keyword)

	return score
}

// recencyBonus awards up to RecencyWeight for events starting now, halving
// every RecencyHalfLifeDays. Events already in the past get nothing.
func (s *Scorer) recencyBonus(start time.Time) float64 {
	if start.IsZero() || s.cfg.RecencyWeight <= 0 || s.cfg.RecencyHalfLifeDays <= 0 {
		return 0
	}
	days := start.Sub(s.now()).Hours() / 24
	if days < 0 {
		return 0
	}
	return s.cfg.RecencyWeight * math.Pow(0.5, days/s.cfg.RecencyHalfLifeDays)
}

// keywordBonus awards KeywordBonus once per query keyword whose best
// Jaro-Winkler similarity against the title and venue tokens reaches the
// configured threshold. Fuzzy matching lets "concerts" hit "concert".
func (s *Scorer) keywordBonus(ev events.RawEvent, keyword string) float64 {
	if keyword == "" || s.cfg.KeywordBonus == 0 {
		return 0
	}

	targets := tokenize(ev.Title + " " + ev.Venue)
	if len(targets) == 0 {
		return 0
	}

	bonus := 0.0
	for _, kw := range tokenize(keyword) {
		for _, t := range targets {
			if matchr.JaroWinkler(kw, t, true) >= s.cfg.KeywordThreshold {
				bonus += s.cfg.KeywordBonus
				break
			}
		}
	}
	return bonus
}

// tokenize lowercases and splits on non-letter/digit runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !isAlphanumeric(r)
	})
}

func isAlphanumeric(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// sortRanked orders events by score descending, then start ascending, then
// title ascending. The order is fully deterministic for any input.
func sortRanked(evs []RankedEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		if evs[i].Score != evs[j].Score {
			return evs[i].Score > evs[j].Score
		}
		if !evs[i].Start.Equal(evs[j].Start) {
			return evs[i].Start.Before(evs[j].Start)
		}
		return evs[i].Title < evs[j].Title
	})
}

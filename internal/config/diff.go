package config

import (
	"maps"

	"github.com/daytrip-ai/daytrip/internal/events"
)

// Diff describes what changed between two configs. Only fields that can be
// applied without a restart are tracked; everything else (backends, sources,
// MCP servers) needs a process restart to take effect.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SystemPromptChanged bool
	NewSystemPrompt     string

	ScoringChanged bool

	LimiterChanged bool
}

// Empty reports whether nothing hot-reloadable changed.
func (d Diff) Empty() bool {
	return !d.LogLevelChanged && !d.SystemPromptChanged && !d.ScoringChanged && !d.LimiterChanged
}

// Compare returns the hot-reloadable differences between old and updated.
func Compare(old, updated *Config) Diff {
	var d Diff

	if old.Server.LogLevel != updated.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = updated.Server.LogLevel
	}
	if old.Chat.SystemPrompt != updated.Chat.SystemPrompt {
		d.SystemPromptChanged = true
		d.NewSystemPrompt = updated.Chat.SystemPrompt
	}
	if !scoringEqual(old.Events.Scoring, updated.Events.Scoring) {
		d.ScoringChanged = true
	}
	if old.Limiter != updated.Limiter {
		d.LimiterChanged = true
	}
	return d
}

// scoringEqual compares scoring configs field by field; the Trust map rules
// out plain ==.
func scoringEqual(a, b events.ScoringConfig) bool {
	return a.Baseline == b.Baseline &&
		a.RecencyWeight == b.RecencyWeight &&
		a.RecencyHalfLifeDays == b.RecencyHalfLifeDays &&
		a.KeywordBonus == b.KeywordBonus &&
		a.KeywordThreshold == b.KeywordThreshold &&
		maps.Equal(a.Trust, b.Trust)
}

// Package accounting tracks per-turn LLM usage: tokens consumed, iterations
// run, and tools invoked, attributed to the client that initiated the turn.
//
// The conversation loop reports one [TurnRecord] per completed turn. Two
// implementations exist: an in-memory ledger for single-process runs and
// tests, and a PostgreSQL ledger for durable accounting across restarts.
package accounting

import (
	"context"
	"sync"
	"time"
)

// TurnRecord captures the usage of one conversation turn.
type TurnRecord struct {
	// ClientID identifies who is billed for the turn.
	ClientID string

	// Model is the model identifier the turn ran against.
	Model string

	// PromptTokens and CompletionTokens are summed over all model iterations
	// of the turn.
	PromptTokens     int
	CompletionTokens int

	// Iterations is how many model round trips the turn took.
	Iterations int

	// ToolCalls is how many tool invocations the turn executed.
	ToolCalls int

	// StartedAt is when the turn began.
	StartedAt time.Time

	// Duration is the wall-clock length of the turn.
	Duration time.Duration
}

// TotalTokens returns prompt plus completion tokens.
func (r TurnRecord) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Totals is an aggregate over recorded turns.
type Totals struct {
	Turns            int
	PromptTokens     int
	CompletionTokens int
	ToolCalls        int
}

// Ledger records turn usage. Implementations must be safe for concurrent use.
type Ledger interface {
	// RecordTurn appends one turn record.
	RecordTurn(ctx context.Context, rec TurnRecord) error

	// TotalsFor aggregates all recorded turns of one client.
	TotalsFor(ctx context.Context, clientID string) (Totals, error)
}

// MemoryLedger is an in-memory Ledger. The zero value is ready to use.
type MemoryLedger struct {
	mu      sync.Mutex
	records []TurnRecord
}

// RecordTurn implements Ledger.
func (l *MemoryLedger) RecordTurn(_ context.Context, rec TurnRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// TotalsFor implements Ledger.
func (l *MemoryLedger) TotalsFor(_ context.Context, clientID string) (Totals, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var t Totals
	for _, rec := range l.records {
		if rec.ClientID != clientID {
			continue
		}
		t.Turns++
		t.PromptTokens += rec.PromptTokens
		t.CompletionTokens += rec.CompletionTokens
		t.ToolCalls += rec.ToolCalls
	}
	return t, nil
}

// Records returns a copy of all recorded turns, in insertion order. Intended
// for tests and debugging.
func (l *MemoryLedger) Records() []TurnRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TurnRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Compile-time interface check.
var _ Ledger = (*MemoryLedger)(nil)

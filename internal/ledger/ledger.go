// Package ledger tracks which targets a campaign has already contacted.
//
// A Ledger keeps one in-memory set per category, seeded from the store when a
// campaign starts. Workers Reserve a target before acting on it; the check and
// the mark happen under one lock, so two workers can never hold the same target.
// Successful targets are committed: they join the sent set and are persisted in
// bulk. Persistence failures keep the ids pending for the next checkpoint.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"bitbucket.org/creachadair/stringset"
)

// Categories of contacted targets.
const (
	CategoryRequest  = "request"
	CategoryChatroom = "chatroom"
	CategoryLounge   = "lounge"
)

// Categories lists every known category.
var Categories = []string{CategoryRequest, CategoryChatroom, CategoryLounge}

// ValidCategory reports whether c is a known category.
func ValidCategory(c string) bool {
	return stringset.Index(c, Categories) >= 0
}

// Store persists ledger ids. Implementations must ignore ids that already exist.
type Store interface {
	SentIDs(ctx context.Context, owner, category string) ([]string, error)
	AddSentIDs(ctx context.Context, owner, category string, ids []string) error
}

// Stat summarizes one category.
type Stat struct {
	Sent     int `json:"sent"`
	InFlight int `json:"in_flight"`
	Pending  int `json:"pending"`
}

// Ledger is the shared dedup record of one campaign.
type Ledger struct {
	owner  string
	store  Store
	logger *slog.Logger

	mu       sync.Mutex
	sent     map[string]stringset.Set
	inFlight map[string]stringset.Set
	pending  map[string]stringset.Set
}

// New creates an empty ledger for owner. A nil store keeps the ledger in memory only.
func New(owner string, store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		owner:    owner,
		store:    store,
		logger:   logger,
		sent:     make(map[string]stringset.Set),
		inFlight: make(map[string]stringset.Set),
		pending:  make(map[string]stringset.Set),
	}
}

// Load merges the persisted ids of the given categories into the sent sets.
func (l *Ledger) Load(ctx context.Context, categories ...string) error {
	if l.store == nil {
		return nil
	}
	for _, c := range categories {
		ids, err := l.store.SentIDs(ctx, l.owner, c)
		if err != nil {
			return fmt.Errorf("load ledger %s: %w", c, err)
		}
		l.mu.Lock()
		l.set(l.sent, c).Add(ids...)
		l.mu.Unlock()
	}
	return nil
}

// Contains reports whether id is already sent or currently reserved.
func (l *Ledger) Contains(category, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent[category].Contains(id) || l.inFlight[category].Contains(id)
}

// Reserve marks id as in flight. It returns false if id is already sent or
// reserved by someone else; the caller must then skip the target.
func (l *Ledger) Reserve(category, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sent[category].Contains(id) || l.inFlight[category].Contains(id) {
		return false
	}
	l.set(l.inFlight, category).Add(id)
	return true
}

// Release drops a reservation without recording the target as sent.
func (l *Ledger) Release(category, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight[category].Discard(id)
}

// Commit records ids as sent and persists every pending id of the category.
// The in-memory state is updated even when persisting fails; the error is
// returned for logging and the ids are retried at the next Commit or Flush.
func (l *Ledger) Commit(ctx context.Context, category string, ids []string) error {
	l.mu.Lock()
	l.inFlight[category].Discard(ids...)
	l.set(l.sent, category).Add(ids...)
	if l.store != nil {
		l.set(l.pending, category).Add(ids...)
	}
	l.mu.Unlock()

	return l.persist(ctx, category)
}

// Flush persists every pending id of every category.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	categories := make([]string, 0, len(l.pending))
	for c, s := range l.pending {
		if !s.Empty() {
			categories = append(categories, c)
		}
	}
	l.mu.Unlock()
	sort.Strings(categories)

	var firstErr error
	for _, c := range categories {
		if err := l.persist(ctx, c); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns per-category counts.
func (l *Ledger) Stats() map[string]Stat {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := make(map[string]Stat)
	for _, c := range Categories {
		stats[c] = Stat{
			Sent:     l.sent[c].Len(),
			InFlight: l.inFlight[c].Len(),
			Pending:  l.pending[c].Len(),
		}
	}
	return stats
}

// persist writes a snapshot of the pending ids outside the lock and removes
// them from pending once stored.
func (l *Ledger) persist(ctx context.Context, category string) error {
	if l.store == nil {
		return nil
	}
	l.mu.Lock()
	batch := l.pending[category].Elements()
	l.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	if err := l.store.AddSentIDs(ctx, l.owner, category, batch); err != nil {
		l.logger.Warn("ledger commit failed; ids kept for next checkpoint",
			"module", "ledger",
			"operation", "commit",
			"category", category,
			"pending", len(batch),
			"error", err,
		)
		return fmt.Errorf("persist ledger %s: %w", category, err)
	}

	l.mu.Lock()
	l.pending[category].Discard(batch...)
	l.mu.Unlock()
	return nil
}

// set returns the set of category in m, creating it if needed. Callers hold mu.
func (l *Ledger) set(m map[string]stringset.Set, category string) *stringset.Set {
	s, ok := m[category]
	if !ok {
		s = stringset.New()
		m[category] = s
	}
	return &s
}

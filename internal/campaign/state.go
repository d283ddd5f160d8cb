package campaign

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hpungsan/herd/internal/ledger"
)

// State is the session object of one campaign run. It is created by Start,
// passed to every worker and the reporter, and never shared between runs.
type State struct {
	ID      string
	Owner   string
	Feature Feature
	Message string

	// MessageHandle is the sink message that shows progress.
	MessageHandle string

	StartedAt time.Time

	running    atomic.Bool
	stopped    atomic.Bool
	processed  atomic.Int64
	finishedAt atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}

	statuses []*WorkerStatus
	ledger   *ledger.Ledger
}

func newState(id, owner string, feature Feature, message string, statuses []*WorkerStatus, l *ledger.Ledger) *State {
	s := &State{
		ID:        id,
		Owner:     owner,
		Feature:   feature,
		Message:   message,
		StartedAt: time.Now(),
		stopCh:    make(chan struct{}),
		statuses:  statuses,
		ledger:    l,
	}
	s.running.Store(true)
	return s
}

// Running reports whether the campaign has neither finished nor been stopped.
func (s *State) Running() bool { return s.running.Load() }

// Stopped reports whether a stop was requested.
func (s *State) Stopped() bool { return s.stopped.Load() }

// Stop requests every worker to end at its next safe point.
func (s *State) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		s.running.Store(false)
		close(s.stopCh)
	})
}

func (s *State) finish() {
	s.running.Store(false)
	s.finishedAt.Store(time.Now().UnixNano())
}

// FinishedAt returns when teardown completed, or the zero time.
func (s *State) FinishedAt() time.Time {
	n := s.finishedAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Statuses returns the worker statuses in start order.
func (s *State) Statuses() []*WorkerStatus { return s.statuses }

// sleep waits d. It returns false when woken early by a stop or ctx.
func (s *State) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !s.Stopped() && ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// halted reports whether workers must not start new work.
func (s *State) halted(ctx context.Context) bool {
	return s.Stopped() || ctx.Err() != nil
}

// Totals aggregates worker counters.
type Totals struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Filtered  int `json:"filtered"`
	Errors    int `json:"errors"`
}

// Snapshot is a point-in-time copy of a campaign.
type Snapshot struct {
	ID            string           `json:"id"`
	Owner         string           `json:"owner"`
	Feature       Feature          `json:"feature"`
	Running       bool             `json:"running"`
	Stopped       bool             `json:"stopped"`
	MessageHandle string           `json:"message_handle,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
	Workers       []WorkerSnapshot `json:"workers"`
	Totals        Totals           `json:"totals"`
}

// Snapshot copies the campaign and its workers.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		ID:            s.ID,
		Owner:         s.Owner,
		Feature:       s.Feature,
		Running:       s.Running(),
		Stopped:       s.Stopped(),
		MessageHandle: s.MessageHandle,
		StartedAt:     s.StartedAt,
		Workers:       make([]WorkerSnapshot, 0, len(s.statuses)),
	}
	if t := s.FinishedAt(); !t.IsZero() {
		snap.FinishedAt = &t
	}
	for _, w := range s.statuses {
		ws := w.Snapshot()
		snap.Workers = append(snap.Workers, ws)
		snap.Totals.Sent += ws.Sent
		snap.Totals.Filtered += ws.Filtered
		snap.Totals.Errors += ws.Errors
	}
	snap.Totals.Processed = int(s.processed.Load())
	return snap
}

// Done reports whether every worker reached a terminal label.
func (s Snapshot) Done() bool {
	for _, w := range s.Workers {
		if !w.Status.Terminal() {
			return false
		}
	}
	return true
}

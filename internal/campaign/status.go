package campaign

import (
	"sync"
	"time"
)

// Label is the lifecycle label of one worker.
type Label string

const (
	LabelQueued        Label = "Queued"
	LabelFetching      Label = "Fetching"
	LabelProcessing    Label = "Processing"
	LabelRetry         Label = "Retry"
	LabelDone          Label = "Done"
	LabelNoUsers       Label = "No users"
	LabelLimitExceeded Label = "Limit Exceeded"
	LabelStopped       Label = "Stopped"
	LabelFailed        Label = "Failed"
)

// Terminal reports whether the label ends a worker.
func (l Label) Terminal() bool {
	switch l {
	case LabelDone, LabelNoUsers, LabelLimitExceeded, LabelStopped, LabelFailed:
		return true
	}
	return false
}

// WorkerStatus is the live state of one worker. Only the owning worker writes
// it; the reporter and the manager read snapshots.
type WorkerStatus struct {
	TokenID string
	Name    string

	mu        sync.Mutex
	label     Label
	sent      int
	filtered  int
	errors    int
	lastError string
	updatedAt time.Time
}

// WorkerSnapshot is a point-in-time copy of a WorkerStatus.
type WorkerSnapshot struct {
	TokenID   string    `json:"token_id"`
	Name      string    `json:"name"`
	Status    Label     `json:"status"`
	Sent      int       `json:"sent"`
	Filtered  int       `json:"filtered"`
	Errors    int       `json:"errors"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newWorkerStatus(tokenID, name string) *WorkerStatus {
	return &WorkerStatus{TokenID: tokenID, Name: name, label: LabelQueued, updatedAt: time.Now()}
}

// set moves to l. Terminal labels are final; later calls are ignored.
func (w *WorkerStatus) set(l Label) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.label.Terminal() {
		return false
	}
	w.label = l
	w.updatedAt = time.Now()
	return true
}

// finish sets a terminal label with an optional message.
func (w *WorkerStatus) finish(l Label, msg string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.label.Terminal() {
		return false
	}
	w.label = l
	if msg != "" {
		w.lastError = msg
	}
	w.updatedAt = time.Now()
	return true
}

func (w *WorkerStatus) addSent(n int) {
	w.mu.Lock()
	w.sent += n
	w.updatedAt = time.Now()
	w.mu.Unlock()
}

func (w *WorkerStatus) addFiltered(n int) {
	w.mu.Lock()
	w.filtered += n
	w.updatedAt = time.Now()
	w.mu.Unlock()
}

func (w *WorkerStatus) noteError(msg string) {
	w.mu.Lock()
	w.errors++
	w.lastError = msg
	w.updatedAt = time.Now()
	w.mu.Unlock()
}

// Label returns the current label.
func (w *WorkerStatus) Label() Label {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.label
}

// Sent returns the number of successful actions.
func (w *WorkerStatus) Sent() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sent
}

// Snapshot copies the status.
func (w *WorkerStatus) Snapshot() WorkerSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerSnapshot{
		TokenID:   w.TokenID,
		Name:      w.Name,
		Status:    w.label,
		Sent:      w.sent,
		Filtered:  w.filtered,
		Errors:    w.errors,
		LastError: w.lastError,
		UpdatedAt: w.updatedAt,
	}
}

// Package sink is where campaign progress is rendered: a chat front end, the
// web dashboard board or a terminal.
package sink

import (
	"context"
	"crypto/rand"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotModified is returned by Edit when the new text equals the current text.
// Callers treat it as success.
var ErrNotModified = errors.New("sink: message is not modified")

// ErrUnknownMessage is returned for a handle the sink never issued.
var ErrUnknownMessage = errors.New("sink: unknown message")

// Sink receives rendered progress messages.
type Sink interface {
	// Send posts a new message and returns its handle.
	Send(ctx context.Context, text string) (string, error)
	// Edit replaces the text of a message.
	Edit(ctx context.Context, handle, text string) error
	Pin(ctx context.Context, handle string) error
	Unpin(ctx context.Context, handle string) error
}

// Message is one message held by a Board.
type Message struct {
	Handle    string    `json:"handle"`
	Text      string    `json:"text"`
	Pinned    bool      `json:"pinned"`
	Edits     int       `json:"edits"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Board keeps messages in memory so the dashboard and the MCP tools can read
// the latest progress of every campaign.
type Board struct {
	mu       sync.RWMutex
	messages map[string]*Message
	entropy  *ulid.MonotonicEntropy
	now      func() time.Time
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		messages: make(map[string]*Message),
		entropy:  ulid.Monotonic(rand.Reader, 0),
		now:      time.Now,
	}
}

// Send implements Sink.
func (b *Board) Send(_ context.Context, text string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	id, err := ulid.New(ulid.Timestamp(now), b.entropy)
	if err != nil {
		return "", err
	}
	handle := id.String()
	b.messages[handle] = &Message{
		Handle:    handle,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return handle, nil
}

// Edit implements Sink.
func (b *Board) Edit(_ context.Context, handle, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.messages[handle]
	if !ok {
		return ErrUnknownMessage
	}
	if m.Text == text {
		return ErrNotModified
	}
	m.Text = text
	m.Edits++
	m.UpdatedAt = b.now()
	return nil
}

// Pin implements Sink.
func (b *Board) Pin(_ context.Context, handle string) error {
	return b.setPinned(handle, true)
}

// Unpin implements Sink.
func (b *Board) Unpin(_ context.Context, handle string) error {
	return b.setPinned(handle, false)
}

func (b *Board) setPinned(handle string, pinned bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.messages[handle]
	if !ok {
		return ErrUnknownMessage
	}
	m.Pinned = pinned
	return nil
}

// Get returns a copy of the message with the given handle.
func (b *Board) Get(handle string) (Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	m, ok := b.messages[handle]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Pinned returns copies of every pinned message, oldest first.
func (b *Board) Pinned() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Message
	for _, m := range b.messages {
		if m.Pinned {
			out = append(out, *m)
		}
	}
	sortByHandle(out)
	return out
}

// Delete forgets a message.
func (b *Board) Delete(handle string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.messages, handle)
}

// Handles are ULIDs, so lexical order is creation order.
func sortByHandle(ms []Message) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].Handle < ms[j].Handle })
}

package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Writer renders messages to a terminal or log stream. Every send or edit
// prints the full text preceded by a rule.
type Writer struct {
	mu   sync.Mutex
	w    io.Writer
	seq  int
	last map[string]string
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, last: make(map[string]string)}
}

// Send implements Sink.
func (w *Writer) Send(_ context.Context, text string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	handle := fmt.Sprintf("term-%d", w.seq)
	w.last[handle] = text
	return handle, w.print(text)
}

// Edit implements Sink.
func (w *Writer) Edit(_ context.Context, handle, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev, ok := w.last[handle]
	if !ok {
		return ErrUnknownMessage
	}
	if prev == text {
		return ErrNotModified
	}
	w.last[handle] = text
	return w.print(text)
}

// Pin is a no-op for terminals.
func (w *Writer) Pin(_ context.Context, handle string) error { return w.known(handle) }

// Unpin is a no-op for terminals.
func (w *Writer) Unpin(_ context.Context, handle string) error { return w.known(handle) }

func (w *Writer) known(handle string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.last[handle]; !ok {
		return ErrUnknownMessage
	}
	return nil
}

func (w *Writer) print(text string) error {
	_, err := fmt.Fprintf(w.w, "%s\n%s\n", strings.Repeat("─", 40), strings.TrimRight(text, "\n"))
	return err
}

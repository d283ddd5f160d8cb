package sink

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoard_SendEdit(t *testing.T) {
	b := NewBoard()
	ctx := context.Background()

	h, err := b.Send(ctx, "first")
	require.NoError(t, err)
	require.NotEmpty(t, h)

	require.NoError(t, b.Edit(ctx, h, "second"))
	m, ok := b.Get(h)
	require.True(t, ok)
	require.Equal(t, "second", m.Text)
	require.Equal(t, 1, m.Edits)
}

func TestBoard_EditSameTextNotModified(t *testing.T) {
	b := NewBoard()
	ctx := context.Background()

	h, err := b.Send(ctx, "same")
	require.NoError(t, err)

	err = b.Edit(ctx, h, "same")
	require.True(t, errors.Is(err, ErrNotModified))

	m, _ := b.Get(h)
	require.Zero(t, m.Edits)
}

func TestBoard_UnknownHandle(t *testing.T) {
	b := NewBoard()
	ctx := context.Background()

	require.ErrorIs(t, b.Edit(ctx, "nope", "x"), ErrUnknownMessage)
	require.ErrorIs(t, b.Pin(ctx, "nope"), ErrUnknownMessage)
	_, ok := b.Get("nope")
	require.False(t, ok)
}

func TestBoard_Pinned(t *testing.T) {
	b := NewBoard()
	ctx := context.Background()

	h1, _ := b.Send(ctx, "one")
	h2, _ := b.Send(ctx, "two")
	h3, _ := b.Send(ctx, "three")

	require.NoError(t, b.Pin(ctx, h3))
	require.NoError(t, b.Pin(ctx, h1))
	require.NoError(t, b.Pin(ctx, h2))
	require.NoError(t, b.Unpin(ctx, h2))

	pinned := b.Pinned()
	require.Len(t, pinned, 2)
	require.Equal(t, h1, pinned[0].Handle)
	require.Equal(t, h3, pinned[1].Handle)

	b.Delete(h1)
	require.Len(t, b.Pinned(), 1)
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	ctx := context.Background()

	h, err := w.Send(ctx, "progress 1")
	require.NoError(t, err)
	require.NoError(t, w.Edit(ctx, h, "progress 2"))
	require.ErrorIs(t, w.Edit(ctx, h, "progress 2"), ErrNotModified)
	require.NoError(t, w.Pin(ctx, h))
	require.ErrorIs(t, w.Unpin(ctx, "other"), ErrUnknownMessage)

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "progress 1"))
	require.Equal(t, 1, strings.Count(out, "progress 2"))
}

var _ Sink = (*Board)(nil)
var _ Sink = (*Writer)(nil)

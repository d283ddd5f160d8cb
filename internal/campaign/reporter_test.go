package campaign

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/herd/internal/ledger"
	"github.com/hpungsan/herd/internal/sink"
)

func newReporterFixture(t *testing.T, forceEvery int) (*Reporter, *State, *countingSink) {
	t.Helper()
	statuses := []*WorkerStatus{newWorkerStatus("t1", "Ann"), newWorkerStatus("t2", "Bo")}
	state := newState("01CAMPAIGN", "alice", FeatureRequests, "", statuses, ledger.New("alice", nil, nil))

	s := newCountingSink()
	body := renderBody(state.Snapshot())
	handle, err := s.Send(context.Background(), body)
	require.NoError(t, err)
	state.MessageHandle = handle

	settings := testSettings()
	settings.ForceRenderEvery = forceEvery
	r := newReporter(state, s, settings, slogDiscard(), body)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }
	return r, state, s
}

func TestReporter_IdenticalTicksRenderOnlyWhenForced(t *testing.T) {
	r, _, s := newReporterFixture(t, 5)
	ctx := context.Background()

	rendered := 0
	for i := 0; i < 10; i++ {
		if r.Tick(ctx) {
			rendered++
		}
	}
	require.Equal(t, 2, rendered)
	require.Equal(t, 2, r.Renders())
	require.Equal(t, 2, s.Edits())
}

func TestReporter_RendersOnChange(t *testing.T) {
	r, state, s := newReporterFixture(t, 0)
	ctx := context.Background()

	require.False(t, r.Tick(ctx))
	state.statuses[0].set(LabelFetching)
	require.True(t, r.Tick(ctx))
	require.False(t, r.Tick(ctx))
	state.statuses[1].addSent(3)
	require.True(t, r.Tick(ctx))

	msg, ok := s.Get(state.MessageHandle)
	require.True(t, ok)
	require.Contains(t, msg.Text, "| 2 | Bo | 3 | 0 | Queued |")
	require.Contains(t, msg.Text, "3 sent")
}

type notModifiedSink struct {
	*countingSink
}

func (n notModifiedSink) Edit(ctx context.Context, handle, text string) error {
	_ = n.countingSink.Edit(ctx, handle, text)
	return sink.ErrNotModified
}

func TestReporter_SwallowsNotModified(t *testing.T) {
	r, _, s := newReporterFixture(t, 1)
	r.sink = notModifiedSink{s}

	require.True(t, r.Tick(context.Background()))
	require.Equal(t, 1, s.Edits())
	require.Equal(t, 1, r.Renders())
}

func TestReporter_NotifyRendersChanges(t *testing.T) {
	r, state, s := newReporterFixture(t, 0)
	r.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	state.statuses[0].addSent(1)
	r.Notify()
	require.Eventually(t, func() bool { return s.Edits() == 1 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestReporter_Final(t *testing.T) {
	r, state, s := newReporterFixture(t, 0)
	state.statuses[0].finish(LabelDone, "")
	state.statuses[1].finish(LabelStopped, "")
	state.Stop()
	state.finish()

	r.Final(context.Background())
	msg, _ := s.Get(state.MessageHandle)
	require.True(t, strings.Contains(msg.Text, "stopped"))
	require.Equal(t, 1, s.Edits())
}

func TestRenderBody_EscapesAndShowsErrors(t *testing.T) {
	w := newWorkerStatus("t1", "a|b")
	w.noteError("bad\nthing")
	w.finish(LabelFailed, "token | rejected")
	state := newState("id", "alice", FeatureLounge, "hi", []*WorkerStatus{w}, ledger.New("alice", nil, nil))

	body := renderBody(state.Snapshot())
	require.Contains(t, body, "Lounge messages")
	require.Contains(t, body, `a\|b`)
	require.Contains(t, body, `Failed: token \| rejected`)
}

func TestWorkerStatus_TerminalIsFinal(t *testing.T) {
	w := newWorkerStatus("t1", "Ann")
	require.True(t, w.set(LabelFetching))
	require.True(t, w.finish(LabelLimitExceeded, "429"))
	require.False(t, w.set(LabelFetching))
	require.False(t, w.finish(LabelStopped, ""))
	require.Equal(t, LabelLimitExceeded, w.Label())
}

func TestParseFeature(t *testing.T) {
	f, err := ParseFeature(" Lounge ")
	require.NoError(t, err)
	require.Equal(t, FeatureLounge, f)
	require.Equal(t, ledger.CategoryLounge, f.Category())

	_, err = ParseFeature("nope")
	require.Error(t, err)
}

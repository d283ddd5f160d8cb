package campaign

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hpungsan/herd/internal/sink"
)

// Reporter renders campaign progress to a sink on a fixed interval. Renders
// are skipped while the table is unchanged, except on every forceEvery-th
// tick so that the elapsed time keeps moving.
type Reporter struct {
	state      *State
	sink       sink.Sink
	interval   time.Duration
	forceEvery int
	logger     *slog.Logger
	now        func() time.Time

	nudge chan struct{}

	mu       sync.Mutex
	lastBody string
	ticks    int
	renders  int
}

func newReporter(state *State, s sink.Sink, settings Settings, logger *slog.Logger, initialBody string) *Reporter {
	interval := settings.ReporterInterval
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	return &Reporter{
		state:      state,
		sink:       s,
		interval:   interval,
		forceEvery: settings.ForceRenderEvery,
		logger:     logger,
		now:        time.Now,
		nudge:      make(chan struct{}, 1),
		lastBody:   initialBody,
	}
}

// Run ticks until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		case <-r.nudge:
			r.refresh(ctx)
		}
	}
}

// Notify asks for a render as soon as possible. It never blocks.
func (r *Reporter) Notify() {
	select {
	case r.nudge <- struct{}{}:
	default:
	}
}

// Tick performs one scheduled render check and reports whether it rendered.
func (r *Reporter) Tick(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ticks++
	force := r.forceEvery > 0 && r.ticks%r.forceEvery == 0
	snap := r.state.Snapshot()
	body := renderBody(snap)
	if body == r.lastBody && !force {
		return false
	}
	r.publish(ctx, snap, body, false)
	return true
}

// refresh renders if the table changed, without counting a tick.
func (r *Reporter) refresh(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.state.Snapshot()
	body := renderBody(snap)
	if body == r.lastBody {
		return
	}
	r.publish(ctx, snap, body, false)
}

// Final renders the closing message. The manager calls it once, after Run has returned.
func (r *Reporter) Final(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.state.Snapshot()
	r.publish(ctx, snap, renderBody(snap), true)
}

// Renders returns how many edits were issued.
func (r *Reporter) Renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

// publish edits the progress message. Callers hold mu.
func (r *Reporter) publish(ctx context.Context, snap Snapshot, body string, final bool) {
	r.lastBody = body
	r.renders++
	if r.state.MessageHandle == "" {
		return
	}
	err := r.sink.Edit(ctx, r.state.MessageHandle, body+renderFooter(snap, r.now(), final))
	if err == nil || errors.Is(err, sink.ErrNotModified) {
		return
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}
	r.logger.Warn("progress render failed",
		"module", "campaign",
		"operation", "render",
		"campaign_id", r.state.ID,
		"error", err,
	)
}

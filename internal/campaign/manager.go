package campaign

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/errors"
	"github.com/hpungsan/herd/internal/ledger"
	"github.com/hpungsan/herd/internal/remote"
	"github.com/hpungsan/herd/internal/sink"
)

// maxFinished bounds how many finished campaigns are kept for status queries.
const maxFinished = 100

// StartInput contains parameters for Start.
type StartInput struct {
	Owner   string
	Feature Feature

	// Message is required for chatroom and lounge campaigns. Commas split it
	// into separate chat messages.
	Message string

	// SingleAccount runs one worker on the owner's current account instead
	// of one worker per active token. Country rotation is always single-account.
	SingleAccount bool

	// Sink overrides the manager's sink for this campaign.
	Sink sink.Sink
}

// Handle is the caller's reference to a started campaign.
type Handle struct {
	state    *State
	reporter *Reporter
	done     chan struct{}
	cancel   context.CancelFunc
}

// ID returns the campaign id.
func (h *Handle) ID() string { return h.state.ID }

// State returns the campaign session.
func (h *Handle) State() *State { return h.state }

// Stop requests the campaign to stop. It does not wait.
func (h *Handle) Stop() { h.state.Stop() }

// Done is closed once teardown completed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the campaign finished or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-h.done:
		return h.state.Snapshot(), nil
	case <-ctx.Done():
		return h.state.Snapshot(), ctx.Err()
	}
}

// Manager starts campaigns and owns every goroutine they run.
type Manager struct {
	store    Store
	dialer   Dialer
	sink     sink.Sink
	settings Settings
	logger   *slog.Logger

	mu       sync.Mutex
	running  map[string]*Handle
	starting map[string]struct{}
	all      map[string]*Handle
	finished []string
	wg       sync.WaitGroup
	entropy  *ulid.MonotonicEntropy
}

// NewManager creates a Manager. s receives progress of campaigns started without their own sink.
func NewManager(store Store, dialer Dialer, s sink.Sink, settings Settings, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		dialer:   dialer,
		sink:     s,
		settings: settings,
		logger:   logger,
		running:  make(map[string]*Handle),
		starting: make(map[string]struct{}),
		all:      make(map[string]*Handle),
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

func runKey(owner string, f Feature) string { return owner + "\x00" + string(f) }

// Start validates the request, loads tokens and the ledger, and launches the
// campaign. Every rejection happens before a goroutine is started.
func (m *Manager) Start(ctx context.Context, input StartInput) (*Handle, error) {
	if _, err := ParseFeature(string(input.Feature)); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	owner := account.NormalizeOwner(input.Owner)
	message := strings.TrimSpace(input.Message)
	if input.Feature.NeedsMessage() && len(remote.SplitMessage(message)) == 0 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("message is required for %s campaigns", input.Feature))
	}
	if input.Feature == FeatureCountries && len(m.settings.Regions) == 0 {
		return nil, errors.NewInvalidRequest("no regions configured for country rotation")
	}
	out := input.Sink
	if out == nil {
		out = m.sink
	}
	if out == nil {
		return nil, errors.NewInternal(fmt.Errorf("no progress sink configured"))
	}

	// The run key is reserved under the lock; store and sink I/O happen
	// outside it and the reservation is dropped if they fail.
	key := runKey(owner, input.Feature)
	m.mu.Lock()
	if h, ok := m.running[key]; ok {
		m.mu.Unlock()
		return nil, errors.NewAlreadyRunning(owner, string(input.Feature), h.ID())
	}
	if _, ok := m.starting[key]; ok {
		m.mu.Unlock()
		return nil, errors.NewAlreadyRunning(owner, string(input.Feature), "")
	}
	id, err := ulid.New(ulid.Timestamp(time.Now()), m.entropy)
	if err != nil {
		m.mu.Unlock()
		return nil, errors.NewInternal(err)
	}
	m.starting[key] = struct{}{}
	m.mu.Unlock()
	launched := false
	defer func() {
		if !launched {
			m.mu.Lock()
			delete(m.starting, key)
			m.mu.Unlock()
		}
	}()

	tokens, err := m.tokens(ctx, owner, input.SingleAccount || input.Feature == FeatureCountries)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, errors.NewNoActiveToken(owner)
	}

	l := ledger.New(owner, m.store, m.logger)
	if c := input.Feature.Category(); c != "" {
		if err := l.Load(ctx, c); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	statuses := make([]*WorkerStatus, len(tokens))
	for i, tok := range tokens {
		statuses[i] = newWorkerStatus(tok.ID, tok.Label())
	}
	state := newState(id.String(), owner, input.Feature, message, statuses, l)

	initial := state.Snapshot()
	initialBody := renderBody(initial)
	handle, err := out.Send(ctx, initialBody+renderFooter(initial, time.Now(), false))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("send progress message: %w", err))
	}
	state.MessageHandle = handle
	if err := out.Pin(ctx, handle); err != nil {
		m.logger.Warn("pin progress message failed",
			"module", "campaign",
			"operation", "start",
			"campaign_id", state.ID,
			"error", err,
		)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Handle{
		state:    state,
		reporter: newReporter(state, out, m.settings, m.logger, initialBody),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	m.mu.Lock()
	delete(m.starting, key)
	m.running[key] = h
	m.all[state.ID] = h
	m.wg.Add(1)
	m.mu.Unlock()
	launched = true

	m.logger.Info("campaign started",
		"module", "campaign",
		"operation", "start",
		"campaign_id", state.ID,
		"owner", owner,
		"feature", string(input.Feature),
		"workers", len(tokens),
	)

	go func() {
		defer m.wg.Done()
		m.run(runCtx, h, tokens, out)
	}()
	return h, nil
}

// tokens returns the tokens a campaign runs on.
func (m *Manager) tokens(ctx context.Context, owner string, single bool) ([]account.Token, error) {
	if single {
		cur, err := m.store.CurrentAccount(ctx, owner)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if cur != nil && cur.Active {
			return []account.Token{*cur}, nil
		}
	}
	active, err := m.store.ActiveTokens(ctx, owner)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if single && len(active) > 1 {
		active = active[:1]
	}
	return active, nil
}

// run executes the campaign and tears it down. Workers are joined before the
// reporter is cancelled; the final render happens after the reporter exited.
func (m *Manager) run(ctx context.Context, h *Handle, tokens []account.Token, out sink.Sink) {
	state := h.state
	defer h.cancel()

	repCtx, repCancel := context.WithCancel(ctx)
	repDone := make(chan struct{})
	go func() {
		defer close(repDone)
		h.reporter.Run(repCtx)
	}()

	var sem chan struct{}
	if n := m.settings.AccountsPerBatch; n > 0 && n < len(tokens) {
		sem = make(chan struct{}, n)
	}

	var wg sync.WaitGroup
	for i, tok := range tokens {
		wg.Add(1)
		go func(tok account.Token, status *WorkerStatus) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					status.finish(LabelFailed, fmt.Sprintf("panic: %v", r))
					m.logger.Error("worker panicked",
						"module", "campaign",
						"operation", "worker",
						"campaign_id", state.ID,
						"token_id", tok.ID,
						"panic", r,
					)
				}
			}()

			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-state.stopCh:
					status.finish(LabelStopped, "")
					return
				case <-ctx.Done():
					status.finish(LabelStopped, "")
					return
				}
			}
			m.runWorker(ctx, state, tok, status, h.reporter)
		}(tok, state.statuses[i])
	}
	wg.Wait()

	m.teardown(ctx, h, out, repCancel, repDone)
}

func (m *Manager) runWorker(ctx context.Context, state *State, tok account.Token, status *WorkerStatus, rep *Reporter) {
	if state.halted(ctx) {
		status.finish(LabelStopped, "")
		return
	}
	api, err := m.dialer.Dial(ctx, tok)
	if err != nil {
		status.finish(LabelFailed, "connect: "+err.Error())
		m.logger.Warn("dial failed",
			"module", "campaign",
			"operation", "dial",
			"campaign_id", state.ID,
			"token_id", tok.ID,
			"error", err,
		)
		return
	}

	w := &worker{
		state:    state,
		status:   status,
		token:    tok,
		api:      api,
		settings: m.settings,
		logger:   m.logger,
	}

	var filter *remote.Filter
	if state.Feature == FeatureRequests || state.Feature == FeatureCountries {
		filter, err = m.store.Filter(ctx, tok.ID)
		if err != nil {
			m.logger.Warn("load filter failed",
				"module", "campaign",
				"operation", "filter",
				"campaign_id", state.ID,
				"token_id", tok.ID,
				"error", err,
			)
			filter = nil
		}
	}

	if state.Feature == FeatureCountries {
		r := &rotator{
			worker:    w,
			regions:   m.settings.Regions,
			perRegion: max(m.settings.RegionCap, 1),
			notify:    rep.Notify,
		}
		if filter != nil {
			r.base = *filter
		}
		r.run(ctx)
		return
	}

	j, err := newJob(state.Feature, state.Message, filter)
	if err != nil {
		status.finish(LabelFailed, err.Error())
		return
	}
	w.job = j
	w.run(ctx)
}

// teardown runs once every worker has ended. Errors are logged and never
// block completion.
func (m *Manager) teardown(ctx context.Context, h *Handle, out sink.Sink, repCancel context.CancelFunc, repDone <-chan struct{}) {
	state := h.state

	if g := m.settings.ReporterGrace; g > 0 {
		t := time.NewTimer(g)
		select {
		case <-t.C:
		case <-ctx.Done():
		}
		t.Stop()
	}
	repCancel()
	<-repDone

	state.finish()

	bg := context.WithoutCancel(ctx)
	h.reporter.Final(bg)
	if err := out.Unpin(bg, state.MessageHandle); err != nil {
		m.logger.Warn("unpin progress message failed",
			"module", "campaign",
			"operation", "teardown",
			"campaign_id", state.ID,
			"error", err,
		)
	}
	if err := state.ledger.Flush(bg); err != nil {
		m.logger.Warn("ledger flush failed",
			"module", "campaign",
			"operation", "teardown",
			"campaign_id", state.ID,
			"error", err,
		)
	}

	m.mu.Lock()
	key := runKey(state.Owner, state.Feature)
	if m.running[key] == h {
		delete(m.running, key)
	}
	m.finished = append(m.finished, state.ID)
	for len(m.finished) > maxFinished {
		delete(m.all, m.finished[0])
		m.finished = m.finished[1:]
	}
	m.mu.Unlock()

	snap := state.Snapshot()
	m.logger.Info("campaign finished",
		"module", "campaign",
		"operation", "teardown",
		"campaign_id", state.ID,
		"owner", state.Owner,
		"feature", string(state.Feature),
		"stopped", snap.Stopped,
		"sent", snap.Totals.Sent,
		"filtered", snap.Totals.Filtered,
		"elapsed", time.Since(state.StartedAt).Round(time.Millisecond).String(),
	)
	close(h.done)
}

// Stop stops the running campaign of (owner, feature).
func (m *Manager) Stop(owner string, feature Feature) (*Handle, error) {
	owner = account.NormalizeOwner(owner)
	m.mu.Lock()
	h, ok := m.running[runKey(owner, feature)]
	m.mu.Unlock()
	if !ok {
		return nil, errors.NewNotFound("running campaign", fmt.Sprintf("%s/%s", owner, feature))
	}
	h.Stop()
	return h, nil
}

// StopByID stops a campaign by id. Stopping a finished campaign is a no-op.
func (m *Manager) StopByID(id string) (*Handle, error) {
	h, err := m.Handle(id)
	if err != nil {
		return nil, err
	}
	h.Stop()
	return h, nil
}

// Handle returns the handle of a known campaign.
func (m *Manager) Handle(id string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.all[id]
	if !ok {
		return nil, errors.NewNotFound("campaign", id)
	}
	return h, nil
}

// Get returns a snapshot of a campaign.
func (m *Manager) Get(id string) (Snapshot, error) {
	h, err := m.Handle(id)
	if err != nil {
		return Snapshot{}, err
	}
	return h.state.Snapshot(), nil
}

// List returns snapshots of the owner's campaigns, newest first. An empty
// owner lists every campaign.
func (m *Manager) List(owner string) []Snapshot {
	if owner != "" {
		owner = account.NormalizeOwner(owner)
	}
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.all))
	for _, h := range m.all {
		if owner == "" || h.state.Owner == owner {
			handles = append(handles, h)
		}
	}
	m.mu.Unlock()

	sort.Slice(handles, func(i, j int) bool { return handles[i].state.ID > handles[j].state.ID })
	out := make([]Snapshot, len(handles))
	for i, h := range handles {
		out[i] = h.state.Snapshot()
	}
	return out
}

// Shutdown stops every running campaign and waits for teardown.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, h := range m.running {
		h.Stop()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

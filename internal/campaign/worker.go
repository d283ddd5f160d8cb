package campaign

import (
	"context"
	"fmt"
	"log/slog"

	"bitbucket.org/creachadair/stringset"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/remote"
)

// target is one candidate of a batch.
type target struct {
	id      string
	summary string
}

// batch is one fetched page. next is the cursor of the following page for
// paged jobs; empty means the listing is exhausted.
type batch struct {
	targets []target
	next    string
}

// job is the feature-specific part of a worker.
type job interface {
	fetch(ctx context.Context, api API, cursor string) (batch, error)
	act(ctx context.Context, api API, t target) remote.Outcome
	// paged jobs walk a cursor to its end instead of re-fetching a feed.
	paged() bool
}

// preparer jobs run one call before the first fetch.
type preparer interface {
	prepare(ctx context.Context, api API) remote.Outcome
}

type stepResult struct {
	label Label
	msg   string
}

type cursor struct {
	next   string
	empty  int
	acted  bool
	failed int
}

// worker drives one account through a campaign.
type worker struct {
	state    *State
	status   *WorkerStatus
	token    account.Token
	api      API
	job      job
	settings Settings
	logger   *slog.Logger

	// counted holds ids already reported as filtered by this worker.
	counted stringset.Set
}

func (w *worker) run(ctx context.Context) Label {
	if p, ok := w.job.(preparer); ok {
		out := p.prepare(ctx, w.api)
		switch out.Kind {
		case remote.RateLimited:
			return w.end(LabelLimitExceeded, out.String())
		case remote.Fatal:
			return w.end(LabelFailed, fatalMessage(out))
		case remote.Transient:
			w.status.noteError("prepare: " + out.String())
		}
	}

	var cur cursor
	for {
		if w.state.halted(ctx) {
			return w.end(LabelStopped, "")
		}

		res, err := w.iterate(ctx, &cur)
		if res.label != "" {
			return w.end(res.label, res.msg)
		}
		if err == nil {
			cur.failed = 0
			continue
		}

		if remote.IsFatal(err) {
			return w.end(LabelFailed, "access token rejected: "+err.Error())
		}
		cur.failed++
		w.status.noteError(err.Error())
		w.logger.Warn("worker iteration failed",
			"module", "campaign",
			"operation", "iterate",
			"campaign_id", w.state.ID,
			"token_id", w.token.ID,
			"consecutive", cur.failed,
			"error", err,
		)
		if limit := w.settings.MaxConsecutiveErrors; limit > 0 && cur.failed >= limit {
			return w.end(LabelFailed, fmt.Sprintf("%d consecutive errors, last: %v", cur.failed, err))
		}
		w.status.set(LabelRetry)
		w.state.sleep(ctx, w.settings.RetryDelay)
	}
}

// iterate performs one fetch and processes the batch. Panics are converted
// to errors so that they end in the retry path.
func (w *worker) iterate(ctx context.Context, cur *cursor) (res stepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = stepResult{}, fmt.Errorf("panic: %v", r)
		}
	}()

	w.status.set(LabelFetching)
	b, err := w.job.fetch(ctx, w.api, cur.next)
	if err != nil {
		return stepResult{}, err
	}
	if w.state.halted(ctx) {
		return stepResult{label: LabelStopped}, nil
	}

	w.status.set(LabelProcessing)
	attempted, res := w.process(ctx, b.targets)
	if attempted > 0 {
		cur.acted = true
	}
	if res.label != "" {
		return res, nil
	}

	if w.job.paged() {
		if b.next == "" {
			if cur.acted {
				return stepResult{label: LabelDone}, nil
			}
			return stepResult{label: LabelNoUsers}, nil
		}
		cur.next = b.next
		return stepResult{}, nil
	}

	if attempted > 0 {
		cur.empty = 0
		return stepResult{}, nil
	}
	cur.empty++
	if limit := w.settings.MaxEmptyBatches; limit > 0 && cur.empty >= limit {
		return stepResult{label: LabelNoUsers}, nil
	}
	d := emptyBackoff(w.settings.EmptyBackoffBase, w.settings.EmptyBackoffMax, cur.empty)
	if w.settings.onBackoff != nil {
		w.settings.onBackoff(w.token.ID, cur.empty, d)
	}
	w.state.sleep(ctx, d)
	return stepResult{}, nil
}

// process acts on every new target of a batch and commits the successful ones.
// It returns how many targets were reserved and acted on.
func (w *worker) process(ctx context.Context, targets []target) (attempted int, res stepResult) {
	category := w.state.Feature.Category()
	var sent []string
	var held string
	defer func() {
		if held != "" {
			w.state.ledger.Release(category, held)
		}
		w.commit(ctx, category, sent)
	}()

	delay := w.settings.ActionDelay(w.state.Feature)
	for _, t := range targets {
		if w.state.halted(ctx) {
			return attempted, stepResult{label: LabelStopped}
		}
		if category != "" {
			if !w.state.ledger.Reserve(category, t.id) {
				w.filtered(t.id)
				continue
			}
			held = t.id
		}
		attempted++

		out := w.job.act(ctx, w.api, t)
		w.state.processed.Add(1)

		switch out.Kind {
		case remote.Success:
			if held != "" {
				sent = append(sent, held)
				held = ""
			}
			w.status.addSent(1)
		case remote.RateLimited:
			return attempted, stepResult{label: LabelLimitExceeded, msg: out.String()}
		case remote.Fatal:
			return attempted, stepResult{label: LabelFailed, msg: fatalMessage(out)}
		default:
			if held != "" {
				w.state.ledger.Release(category, held)
				held = ""
			}
			if out.RecipientDisabled() {
				w.filtered(t.id)
			} else {
				w.status.noteError(out.String())
				w.logger.Debug("action failed",
					"module", "campaign",
					"operation", string(w.state.Feature),
					"token_id", w.token.ID,
					"target", t.summary,
					"outcome", out.String(),
				)
			}
		}

		if limit := w.settings.MaxPerAccount; limit > 0 && w.status.Sent() >= limit {
			return attempted, stepResult{label: LabelDone, msg: fmt.Sprintf("reached %d per account", limit)}
		}
		w.state.sleep(ctx, delay)
	}
	return attempted, stepResult{}
}

// commit records ids in the ledger. Persistence errors are logged by the
// ledger and retried at the next checkpoint.
func (w *worker) commit(ctx context.Context, category string, ids []string) {
	if category == "" || len(ids) == 0 {
		return
	}
	_ = w.state.ledger.Commit(context.WithoutCancel(ctx), category, ids)
}

// filtered counts id as filtered the first time this worker skips it.
// Feeds that keep returning the same candidates do not inflate the count.
func (w *worker) filtered(id string) {
	if w.counted == nil {
		w.counted = stringset.New()
	}
	if w.counted.Contains(id) {
		return
	}
	w.counted.Add(id)
	w.status.addFiltered(1)
}

func (w *worker) end(l Label, msg string) Label {
	w.status.finish(l, msg)
	w.logger.Info("worker finished",
		"module", "campaign",
		"operation", string(w.state.Feature),
		"campaign_id", w.state.ID,
		"token_id", w.token.ID,
		"status", string(w.status.Label()),
		"sent", w.status.Sent(),
	)
	return w.status.Label()
}

func fatalMessage(out remote.Outcome) string {
	return fmt.Sprintf("access token rejected (%s); re-add or deactivate it", out.String())
}

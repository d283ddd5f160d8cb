package campaign

import (
	"context"
	"fmt"

	"github.com/hpungsan/herd/internal/remote"
)

// rotator cycles the account's nationality filter through a list of regions,
// liking a few new candidates per region. It ends only on a rate limit, a
// rejected token, repeated errors or a stop.
type rotator struct {
	*worker
	base      remote.Filter
	regions   []string
	perRegion int
	notify    func()
}

func (r *rotator) run(ctx context.Context) Label {
	if len(r.regions) == 0 {
		return r.end(LabelFailed, "no regions configured")
	}

	idx, failures := 0, 0
	for {
		if r.state.halted(ctx) {
			return r.end(LabelStopped, "")
		}

		region := r.regions[idx%len(r.regions)]
		res, err := r.visit(ctx, region)
		if res.label != "" {
			return r.end(res.label, res.msg)
		}
		if err != nil {
			if remote.IsFatal(err) {
				return r.end(LabelFailed, "access token rejected: "+err.Error())
			}
			failures++
			r.status.noteError(fmt.Sprintf("%s: %v", region, err))
			r.logger.Warn("region visit failed",
				"module", "campaign",
				"operation", "rotate",
				"campaign_id", r.state.ID,
				"region", region,
				"consecutive", failures,
				"error", err,
			)
			if limit := r.settings.MaxConsecutiveErrors; limit > 0 && failures >= limit {
				return r.end(LabelFailed, fmt.Sprintf("%d consecutive errors, last: %v", failures, err))
			}
			r.status.set(LabelRetry)
			r.state.sleep(ctx, r.settings.RetryDelay)
		} else {
			failures = 0
		}
		idx = (idx + 1) % len(r.regions)
	}
}

// visit applies one region and likes up to perRegion new candidates.
func (r *rotator) visit(ctx context.Context, region string) (res stepResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, err = stepResult{}, fmt.Errorf("panic: %v", rec)
		}
	}()

	r.status.set(LabelFetching)
	out := r.api.UpdateFilter(ctx, r.base.WithNationality(region))
	switch out.Kind {
	case remote.RateLimited:
		return stepResult{label: LabelLimitExceeded, msg: out.String()}, nil
	case remote.Fatal:
		return stepResult{label: LabelFailed, msg: fatalMessage(out)}, nil
	case remote.Transient:
		return stepResult{}, fmt.Errorf("update filter: %s", out.String())
	}

	users, err := r.api.Explore(ctx)
	if err != nil {
		return stepResult{}, err
	}
	if r.state.halted(ctx) {
		return stepResult{label: LabelStopped}, nil
	}

	r.status.set(LabelProcessing)
	category := r.state.Feature.Category()
	liked := 0
	var sent []string
	var held string
	defer func() {
		if held != "" {
			r.state.ledger.Release(category, held)
		}
		r.commit(ctx, category, sent)
	}()

	for _, t := range usersToTargets(users) {
		if liked >= r.perRegion {
			break
		}
		if r.state.halted(ctx) {
			return stepResult{label: LabelStopped}, nil
		}
		if !r.state.ledger.Reserve(category, t.id) {
			r.filtered(t.id)
			continue
		}
		held = t.id

		out := r.api.Like(ctx, t.id)
		r.state.processed.Add(1)
		if out.OK() {
			sent = append(sent, t.id)
			liked++
			r.status.addSent(1)
		} else {
			r.state.ledger.Release(category, t.id)
		}
		held = ""
		switch out.Kind {
		case remote.RateLimited:
			return stepResult{label: LabelLimitExceeded, msg: out.String()}, nil
		case remote.Fatal:
			return stepResult{label: LabelFailed, msg: fatalMessage(out)}, nil
		case remote.Transient:
			r.status.noteError(out.String())
		}
		r.notify()
		r.state.sleep(ctx, r.settings.CountryDelay)
	}
	if liked == 0 {
		r.state.sleep(ctx, r.settings.CountryDelay)
	}
	return stepResult{}, nil
}

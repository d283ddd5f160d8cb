package campaign

import (
	"context"
	"fmt"

	"github.com/hpungsan/herd/internal/remote"
)

// requestsJob likes explored users.
type requestsJob struct {
	filter *remote.Filter
}

// prepare applies the token's stored filter before exploring.
func (j requestsJob) prepare(ctx context.Context, api API) remote.Outcome {
	if j.filter == nil {
		return remote.Outcome{Kind: remote.Success}
	}
	return api.UpdateFilter(ctx, *j.filter)
}

func (requestsJob) fetch(ctx context.Context, api API, _ string) (batch, error) {
	users, err := api.Explore(ctx)
	if err != nil {
		return batch{}, err
	}
	return batch{targets: usersToTargets(users)}, nil
}

func (requestsJob) act(ctx context.Context, api API, t target) remote.Outcome {
	return api.Like(ctx, t.id)
}

func (requestsJob) paged() bool { return false }

// chatroomJob messages every chat partner once.
type chatroomJob struct {
	message string
}

func (chatroomJob) fetch(ctx context.Context, api API, cur string) (batch, error) {
	page, err := api.ChatRooms(ctx, cur)
	if err != nil {
		return batch{}, err
	}
	return batch{targets: roomsToTargets(page.Rooms), next: page.Next}, nil
}

func (j chatroomJob) act(ctx context.Context, api API, t target) remote.Outcome {
	return api.SendMessage(ctx, t.id, j.message)
}

func (chatroomJob) paged() bool { return true }

// loungeJob opens a room with each lounge match and messages it.
type loungeJob struct {
	message string
}

func (loungeJob) fetch(ctx context.Context, api API, _ string) (batch, error) {
	matches, err := api.LoungeDashboard(ctx)
	if err != nil {
		return batch{}, err
	}
	targets := make([]target, 0, len(matches))
	for _, m := range matches {
		if m.ID() == "" {
			continue
		}
		targets = append(targets, target{id: m.ID(), summary: m.User.Summary()})
	}
	return batch{targets: targets}, nil
}

func (j loungeJob) act(ctx context.Context, api API, t target) remote.Outcome {
	roomID, out := api.OpenChatroom(ctx, t.id)
	if !out.OK() {
		return out
	}
	return api.SendMessage(ctx, roomID, j.message)
}

func (loungeJob) paged() bool { return false }

// unsubscribeJob leaves every chat room.
type unsubscribeJob struct{}

func (unsubscribeJob) fetch(ctx context.Context, api API, cur string) (batch, error) {
	page, err := api.ChatRooms(ctx, cur)
	if err != nil {
		return batch{}, err
	}
	return batch{targets: roomsToTargets(page.Rooms), next: page.Next}, nil
}

func (unsubscribeJob) act(ctx context.Context, api API, t target) remote.Outcome {
	return api.Unsubscribe(ctx, t.id)
}

func (unsubscribeJob) paged() bool { return true }

// newJob builds the job of a feature. Country rotation has its own loop.
func newJob(f Feature, message string, filter *remote.Filter) (job, error) {
	switch f {
	case FeatureRequests:
		return requestsJob{filter: filter}, nil
	case FeatureChatroom:
		return chatroomJob{message: message}, nil
	case FeatureLounge:
		return loungeJob{message: message}, nil
	case FeatureUnsubscribe:
		return unsubscribeJob{}, nil
	}
	return nil, fmt.Errorf("feature %q has no batch job", f)
}

func usersToTargets(users []remote.User) []target {
	targets := make([]target, 0, len(users))
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		targets = append(targets, target{id: u.ID, summary: u.Summary()})
	}
	return targets
}

func roomsToTargets(rooms []remote.ChatRoom) []target {
	targets := make([]target, 0, len(rooms))
	for _, r := range rooms {
		if r.ID == "" {
			continue
		}
		targets = append(targets, target{id: r.ID, summary: r.Partner.Summary()})
	}
	return targets
}

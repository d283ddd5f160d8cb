// Package campaign runs bulk actions for every active account of an owner.
//
// A campaign fans out one worker per access token. Workers fetch candidates,
// reserve them in the shared ledger, act on them with a fixed delay and stop
// on rate limits, exhaustion or an explicit stop. A single reporter renders
// progress to a sink while the manager owns every goroutine it starts.
package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/config"
	"github.com/hpungsan/herd/internal/ledger"
	"github.com/hpungsan/herd/internal/remote"
)

// Feature names a kind of campaign.
type Feature string

const (
	FeatureRequests    Feature = "requests"
	FeatureChatroom    Feature = "chatroom"
	FeatureLounge      Feature = "lounge"
	FeatureUnsubscribe Feature = "unsubscribe"
	FeatureCountries   Feature = "countries"
)

// Features lists every feature in display order.
var Features = []Feature{FeatureRequests, FeatureChatroom, FeatureLounge, FeatureUnsubscribe, FeatureCountries}

// ParseFeature validates a feature name.
func ParseFeature(s string) (Feature, error) {
	f := Feature(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Features {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown feature %q", s)
}

// Title is the feature name used in progress messages.
func (f Feature) Title() string {
	switch f {
	case FeatureRequests:
		return "Requests"
	case FeatureChatroom:
		return "Chatroom messages"
	case FeatureLounge:
		return "Lounge messages"
	case FeatureUnsubscribe:
		return "Unsubscribe"
	case FeatureCountries:
		return "Country rotation"
	}
	return string(f)
}

// Category is the ledger category deduplicating the feature's targets.
// Unsubscribe keeps no ledger.
func (f Feature) Category() string {
	switch f {
	case FeatureRequests, FeatureCountries:
		return ledger.CategoryRequest
	case FeatureChatroom:
		return ledger.CategoryChatroom
	case FeatureLounge:
		return ledger.CategoryLounge
	}
	return ""
}

// NeedsMessage reports whether a start requires message text.
func (f Feature) NeedsMessage() bool {
	return f == FeatureChatroom || f == FeatureLounge
}

// API is the remote surface used by workers. *remote.Account implements it.
type API interface {
	Explore(ctx context.Context) ([]remote.User, error)
	Like(ctx context.Context, userID string) remote.Outcome
	ChatRooms(ctx context.Context, cursor string) (remote.ChatRoomPage, error)
	SendMessage(ctx context.Context, roomID, text string) remote.Outcome
	OpenChatroom(ctx context.Context, userID string) (string, remote.Outcome)
	LoungeDashboard(ctx context.Context) ([]remote.LoungeMatch, error)
	Unsubscribe(ctx context.Context, roomID string) remote.Outcome
	UpdateFilter(ctx context.Context, f remote.Filter) remote.Outcome
}

// Dialer binds a token to an API.
type Dialer interface {
	Dial(ctx context.Context, tok account.Token) (API, error)
}

// Store is the persistent state read by campaigns.
type Store interface {
	ledger.Store
	ActiveTokens(ctx context.Context, owner string) ([]account.Token, error)
	CurrentAccount(ctx context.Context, owner string) (*account.Token, error)
	Filter(ctx context.Context, tokenID string) (*remote.Filter, error)
}

// Settings holds the pacing and limits of campaigns.
type Settings struct {
	RequestDelay     time.Duration
	ChatroomDelay    time.Duration
	LoungeDelay      time.Duration
	UnsubscribeDelay time.Duration
	CountryDelay     time.Duration

	EmptyBackoffBase time.Duration
	EmptyBackoffMax  time.Duration
	MaxEmptyBatches  int

	RetryDelay           time.Duration
	MaxConsecutiveErrors int

	MaxPerAccount    int
	AccountsPerBatch int

	ReporterInterval time.Duration
	ForceRenderEvery int
	ReporterGrace    time.Duration

	Regions   []string
	RegionCap int

	// onBackoff observes every empty-batch backoff; used by tests.
	onBackoff func(tokenID string, n int, d time.Duration)
}

// SettingsFromConfig converts configuration into Settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		RequestDelay:         config.Duration(cfg.RequestDelayMS),
		ChatroomDelay:        config.Duration(cfg.ChatroomDelayMS),
		LoungeDelay:          config.Duration(cfg.LoungeDelayMS),
		UnsubscribeDelay:     config.Duration(cfg.UnsubscribeDelayMS),
		CountryDelay:         config.Duration(cfg.CountryDelayMS),
		EmptyBackoffBase:     config.Duration(cfg.EmptyBackoffBaseMS),
		EmptyBackoffMax:      config.Duration(cfg.EmptyBackoffMaxMS),
		MaxEmptyBatches:      cfg.MaxEmptyBatches,
		RetryDelay:           config.Duration(cfg.RetryDelayMS),
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		MaxPerAccount:        cfg.MaxPerAccount,
		AccountsPerBatch:     cfg.AccountsPerBatch,
		ReporterInterval:     config.Duration(cfg.ReporterIntervalMS),
		ForceRenderEvery:     cfg.ForceRenderEvery,
		ReporterGrace:        config.Duration(cfg.ReporterGraceMS),
		Regions:              append([]string(nil), cfg.Regions...),
		RegionCap:            cfg.RegionCap,
	}
}

// ActionDelay is the pause after every action of feature f.
func (s Settings) ActionDelay(f Feature) time.Duration {
	switch f {
	case FeatureRequests:
		return s.RequestDelay
	case FeatureChatroom:
		return s.ChatroomDelay
	case FeatureLounge:
		return s.LoungeDelay
	case FeatureUnsubscribe:
		return s.UnsubscribeDelay
	case FeatureCountries:
		return s.CountryDelay
	}
	return 0
}

// emptyBackoff is the delay after the n-th consecutive empty batch:
// base * 2^(n-1), capped at ceiling.
func emptyBackoff(base, ceiling time.Duration, n int) time.Duration {
	if base <= 0 || n <= 0 {
		return 0
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if ceiling > 0 && d >= ceiling {
			return ceiling
		}
	}
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/remote"
	"github.com/hpungsan/herd/internal/sink"
)

// fakeAPI is a scriptable API. Nil hooks return empty results.
type fakeAPI struct {
	mu sync.Mutex

	explore      func(call int) ([]remote.User, error)
	like         func(id string) remote.Outcome
	chatRooms    func(cursor string) (remote.ChatRoomPage, error)
	lounge       func(call int) ([]remote.LoungeMatch, error)
	openChatroom func(id string) (string, remote.Outcome)
	send         func(roomID, text string) remote.Outcome
	unsubscribe  func(roomID string) remote.Outcome

	exploreCalls int
	loungeCalls  int
	liked        []string
	sent         []string
	unsubscribed []string
	filters      []remote.Filter
}

func (f *fakeAPI) Explore(_ context.Context) ([]remote.User, error) {
	f.mu.Lock()
	f.exploreCalls++
	call, hook := f.exploreCalls, f.explore
	f.mu.Unlock()
	if hook == nil {
		return nil, nil
	}
	return hook(call)
}

func (f *fakeAPI) Like(_ context.Context, id string) remote.Outcome {
	f.mu.Lock()
	f.liked = append(f.liked, id)
	hook := f.like
	f.mu.Unlock()
	if hook == nil {
		return remote.Outcome{Kind: remote.Success, Status: 200}
	}
	return hook(id)
}

func (f *fakeAPI) ChatRooms(_ context.Context, cursor string) (remote.ChatRoomPage, error) {
	if f.chatRooms == nil {
		return remote.ChatRoomPage{}, nil
	}
	return f.chatRooms(cursor)
}

func (f *fakeAPI) SendMessage(_ context.Context, roomID, text string) remote.Outcome {
	f.mu.Lock()
	f.sent = append(f.sent, roomID)
	hook := f.send
	f.mu.Unlock()
	if hook == nil {
		return remote.Outcome{Kind: remote.Success, Status: 200}
	}
	return hook(roomID, text)
}

func (f *fakeAPI) OpenChatroom(_ context.Context, id string) (string, remote.Outcome) {
	if f.openChatroom == nil {
		return "room-" + id, remote.Outcome{Kind: remote.Success, Status: 200}
	}
	return f.openChatroom(id)
}

func (f *fakeAPI) LoungeDashboard(_ context.Context) ([]remote.LoungeMatch, error) {
	f.mu.Lock()
	f.loungeCalls++
	call, hook := f.loungeCalls, f.lounge
	f.mu.Unlock()
	if hook == nil {
		return nil, nil
	}
	return hook(call)
}

func (f *fakeAPI) Unsubscribe(_ context.Context, roomID string) remote.Outcome {
	f.mu.Lock()
	f.unsubscribed = append(f.unsubscribed, roomID)
	hook := f.unsubscribe
	f.mu.Unlock()
	if hook == nil {
		return remote.Outcome{Kind: remote.Success, Status: 200}
	}
	return hook(roomID)
}

func (f *fakeAPI) UpdateFilter(_ context.Context, filter remote.Filter) remote.Outcome {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	return remote.Outcome{Kind: remote.Success, Status: 200}
}

func (f *fakeAPI) counts() (explores, likes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exploreCalls, len(f.liked)
}

// fakeDialer hands out one fakeAPI per token id.
type fakeDialer struct {
	apis map[string]*fakeAPI
}

func (d *fakeDialer) Dial(_ context.Context, tok account.Token) (API, error) {
	api, ok := d.apis[tok.ID]
	if !ok {
		return nil, fmt.Errorf("no api for %s", tok.ID)
	}
	return api, nil
}

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	tokens  []account.Token
	current string
	filters map[string]remote.Filter
	sent    map[string]map[string]bool
}

func newMemStore(tokens ...account.Token) *memStore {
	return &memStore{
		tokens:  tokens,
		filters: make(map[string]remote.Filter),
		sent:    make(map[string]map[string]bool),
	}
}

func (s *memStore) ActiveTokens(_ context.Context, owner string) ([]account.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []account.Token
	for _, t := range s.tokens {
		if t.Owner == owner && t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) CurrentAccount(_ context.Context, owner string) (*account.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.ID == s.current && t.Owner == owner {
			tok := t
			return &tok, nil
		}
	}
	return nil, nil
}

func (s *memStore) Filter(_ context.Context, tokenID string) (*remote.Filter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.filters[tokenID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *memStore) SentIDs(_ context.Context, owner, category string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.sent[owner+"/"+category] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) AddSentIDs(_ context.Context, owner, category string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := owner + "/" + category
	if s.sent[key] == nil {
		s.sent[key] = make(map[string]bool)
	}
	for _, id := range ids {
		s.sent[key][id] = true
	}
	return nil
}

func (s *memStore) stored(owner, category string) []string {
	ids, _ := s.SentIDs(context.Background(), owner, category)
	sort.Strings(ids)
	return ids
}

// countingSink counts edits on top of a Board.
type countingSink struct {
	*sink.Board
	mu    sync.Mutex
	edits int
}

func newCountingSink() *countingSink {
	return &countingSink{Board: sink.NewBoard()}
}

func (c *countingSink) Edit(ctx context.Context, handle, text string) error {
	c.mu.Lock()
	c.edits++
	c.mu.Unlock()
	return c.Board.Edit(ctx, handle, text)
}

func (c *countingSink) Edits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.edits
}

func testToken(id string) account.Token {
	return account.Token{ID: id, Owner: "alice", Value: "value-" + id, Name: "acct-" + id, Active: true}
}

func testSettings() Settings {
	return Settings{
		MaxEmptyBatches:      2,
		MaxConsecutiveErrors: 3,
		ReporterInterval:     5 * time.Millisecond,
		ForceRenderEvery:     5,
		Regions:              []string{"US", "JP"},
		RegionCap:            2,
	}
}

func users(ids ...string) []remote.User {
	out := make([]remote.User, len(ids))
	for i, id := range ids {
		out[i] = remote.User{ID: id, Name: "user " + id}
	}
	return out
}

// firstThen returns page on the first call and nothing afterwards.
func firstThen(page []remote.User) func(int) ([]remote.User, error) {
	return func(call int) ([]remote.User, error) {
		if call == 1 {
			return page, nil
		}
		return nil, nil
	}
}

func waitDone(t *testing.T, h *Handle) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := h.Wait(ctx)
	require.NoError(t, err, "campaign did not finish")
	return snap
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

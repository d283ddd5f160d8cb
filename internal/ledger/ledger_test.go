package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	ids   map[string][]string
	fail  bool
	calls int
}

func newMemStore() *memStore {
	return &memStore{ids: make(map[string][]string)}
}

func (m *memStore) SentIDs(_ context.Context, owner, category string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids[owner+"/"+category]...), nil
}

func (m *memStore) AddSentIDs(_ context.Context, owner, category string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return errors.New("disk full")
	}
	key := owner + "/" + category
	seen := make(map[string]bool)
	for _, id := range m.ids[key] {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			m.ids[key] = append(m.ids[key], id)
			seen[id] = true
		}
	}
	return nil
}

func (m *memStore) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func (m *memStore) stored(owner, category string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]string(nil), m.ids[owner+"/"+category]...)
	sort.Strings(ids)
	return ids
}

func TestReserve_Twice(t *testing.T) {
	l := New("alice", nil, nil)

	require.True(t, l.Reserve(CategoryRequest, "u1"))
	require.False(t, l.Reserve(CategoryRequest, "u1"))
	require.True(t, l.Contains(CategoryRequest, "u1"))

	// Categories are independent
	require.True(t, l.Reserve(CategoryLounge, "u1"))
}

func TestRelease_AllowsRetry(t *testing.T) {
	l := New("alice", nil, nil)

	require.True(t, l.Reserve(CategoryRequest, "u1"))
	l.Release(CategoryRequest, "u1")
	require.False(t, l.Contains(CategoryRequest, "u1"))
	require.True(t, l.Reserve(CategoryRequest, "u1"))
}

func TestReserve_ConcurrentSingleWinner(t *testing.T) {
	l := New("alice", nil, nil)

	const workers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if l.Reserve(CategoryRequest, "shared") {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
}

func TestCommit_PersistsAndBlocksReserve(t *testing.T) {
	store := newMemStore()
	l := New("alice", store, nil)
	ctx := context.Background()

	require.True(t, l.Reserve(CategoryRequest, "u1"))
	require.True(t, l.Reserve(CategoryRequest, "u2"))
	require.NoError(t, l.Commit(ctx, CategoryRequest, []string{"u1", "u2"}))

	require.Equal(t, []string{"u1", "u2"}, store.stored("alice", CategoryRequest))
	require.False(t, l.Reserve(CategoryRequest, "u1"))

	stats := l.Stats()[CategoryRequest]
	require.Equal(t, Stat{Sent: 2}, stats)
}

func TestCommit_FailureRetriedAtNextCheckpoint(t *testing.T) {
	store := newMemStore()
	l := New("alice", store, nil)
	ctx := context.Background()

	store.setFail(true)
	require.True(t, l.Reserve(CategoryRequest, "u1"))
	require.Error(t, l.Commit(ctx, CategoryRequest, []string{"u1"}))

	// Still recorded in memory
	require.False(t, l.Reserve(CategoryRequest, "u1"))
	require.Equal(t, 1, l.Stats()[CategoryRequest].Pending)
	require.Empty(t, store.stored("alice", CategoryRequest))

	store.setFail(false)
	require.True(t, l.Reserve(CategoryRequest, "u2"))
	require.NoError(t, l.Commit(ctx, CategoryRequest, []string{"u2"}))

	require.Equal(t, []string{"u1", "u2"}, store.stored("alice", CategoryRequest))
	require.Zero(t, l.Stats()[CategoryRequest].Pending)
}

func TestFlush(t *testing.T) {
	store := newMemStore()
	l := New("alice", store, nil)
	ctx := context.Background()

	store.setFail(true)
	require.Error(t, l.Commit(ctx, CategoryLounge, []string{"l1"}))
	require.Error(t, l.Commit(ctx, CategoryChatroom, []string{"c1"}))

	store.setFail(false)
	require.NoError(t, l.Flush(ctx))
	require.Equal(t, []string{"l1"}, store.stored("alice", CategoryLounge))
	require.Equal(t, []string{"c1"}, store.stored("alice", CategoryChatroom))

	calls := store.calls
	require.NoError(t, l.Flush(ctx))
	require.Equal(t, calls, store.calls, "nothing pending")
}

func TestLoad_SeedsFromStore(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.AddSentIDs(ctx, "alice", CategoryRequest, []string{"old"}))
	require.NoError(t, store.AddSentIDs(ctx, "bob", CategoryRequest, []string{"other"}))

	l := New("alice", store, nil)
	require.NoError(t, l.Load(ctx, CategoryRequest))

	require.True(t, l.Contains(CategoryRequest, "old"))
	require.False(t, l.Reserve(CategoryRequest, "old"))
	require.True(t, l.Reserve(CategoryRequest, "other"))
	require.Equal(t, 1, l.Stats()[CategoryRequest].Sent)
}

func TestValidCategory(t *testing.T) {
	require.True(t, ValidCategory(CategoryLounge))
	require.False(t, ValidCategory("countries"))
}

package db

import (
	"context"
	"database/sql"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/device"
	"github.com/hpungsan/herd/internal/errors"
	"github.com/hpungsan/herd/internal/remote"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func insertTestToken(t *testing.T, database *sql.DB, id, owner, value string, active bool, createdAt int64) *account.Token {
	t.Helper()
	tok := &account.Token{
		ID:        id,
		Owner:     owner,
		Value:     value,
		Active:    active,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, InsertToken(context.Background(), database, tok))
	return tok
}

func TestInsertToken_GetToken(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	insertTestToken(t, database, "01TOK1", "alice", "secret-value-1", true, 1000)

	got, err := GetToken(ctx, database, "01TOK1")
	require.NoError(t, err)
	require.Equal(t, "alice", got.Owner)
	require.Equal(t, "secret-value-1", got.Value)
	require.True(t, got.Active)
	require.Empty(t, got.Name)
}

func TestInsertToken_DuplicateValue(t *testing.T) {
	database := setupDB(t)

	insertTestToken(t, database, "01TOK1", "alice", "same", true, 1000)
	err := InsertToken(context.Background(), database, &account.Token{
		ID: "01TOK2", Owner: "alice", Value: "same", CreatedAt: 1001, UpdatedAt: 1001,
	})
	require.Equal(t, ErrUniqueConstraint, err)

	// The same value under another owner is allowed
	insertTestToken(t, database, "01TOK3", "bob", "same", true, 1002)
}

func TestGetToken_NotFound(t *testing.T) {
	database := setupDB(t)

	_, err := GetToken(context.Background(), database, "missing")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestActiveTokens(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	insertTestToken(t, database, "01B", "alice", "v2", true, 2000)
	insertTestToken(t, database, "01A", "alice", "v1", true, 1000)
	insertTestToken(t, database, "01C", "alice", "v3", false, 3000)
	insertTestToken(t, database, "01D", "bob", "v4", true, 4000)

	active, err := ActiveTokens(ctx, database, "alice")
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "01A", active[0].ID, "oldest first")
	require.Equal(t, "01B", active[1].ID)

	all, err := ListTokens(ctx, database, "alice")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestSetTokenActive(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	insertTestToken(t, database, "01A", "alice", "v1", true, 1000)

	require.NoError(t, SetTokenActive(ctx, database, "01A", false))
	active, err := ActiveTokens(ctx, database, "alice")
	require.NoError(t, err)
	require.Empty(t, active)

	err = SetTokenActive(ctx, database, "missing", true)
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestUpdateTokenProfile(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	insertTestToken(t, database, "01A", "alice", "v1", true, 1000)
	require.NoError(t, UpdateTokenProfile(ctx, database, "01A", "Ann", "remote-1"))

	got, err := GetToken(ctx, database, "01A")
	require.NoError(t, err)
	require.Equal(t, "Ann", got.Name)
	require.Equal(t, "remote-1", got.RemoteUserID)
}

func TestDeleteToken_RemovesAssociatedRecords(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	insertTestToken(t, database, "01A", "alice", "v1", true, 1000)
	require.NoError(t, SetFilter(ctx, database, "01A", remote.Filter{NationalityCode: "US"}))
	require.NoError(t, PutDeviceIdentity(ctx, database, "01A", device.Generate("en")))
	require.NoError(t, PutInfoCard(ctx, database, "01A", map[string]string{"name": "Ann"}))
	require.NoError(t, SetCurrentAccount(ctx, database, "alice", "01A"))

	require.NoError(t, DeleteToken(ctx, database, "01A"))

	for _, table := range []string{"token_filters", "device_identities", "info_cards", "current_accounts"} {
		var n int
		require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		require.Zero(t, n, "table %s should be empty", table)
	}

	err := DeleteToken(ctx, database, "01A")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestFilter_RoundTrip(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	insertTestToken(t, database, "01A", "alice", "v1", true, 1000)

	f, err := GetFilter(ctx, database, "01A")
	require.NoError(t, err)
	require.Nil(t, f)

	require.NoError(t, SetFilter(ctx, database, "01A", remote.Filter{BirthYearFrom: 1995, NationalityCode: "JP"}))
	require.NoError(t, SetFilter(ctx, database, "01A", remote.Filter{BirthYearFrom: 1990, NationalityCode: "KR"}))

	f, err = GetFilter(ctx, database, "01A")
	require.NoError(t, err)
	require.Equal(t, 1990, f.BirthYearFrom)
	require.Equal(t, "KR", f.NationalityCode)
}

func TestDeviceIdentity_KeepsFirst(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	insertTestToken(t, database, "01A", "alice", "v1", true, 1000)

	first := device.Generate("en")
	require.NoError(t, PutDeviceIdentity(ctx, database, "01A", first))
	require.NoError(t, PutDeviceIdentity(ctx, database, "01A", device.Generate("en")))

	got, err := GetDeviceIdentity(ctx, database, "01A")
	require.NoError(t, err)
	require.Equal(t, first.DeviceID, got.DeviceID)
}

func TestCurrentAccount(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	id, err := GetCurrentAccount(ctx, database, "alice")
	require.NoError(t, err)
	require.Empty(t, id)

	insertTestToken(t, database, "01A", "alice", "v1", true, 1000)
	insertTestToken(t, database, "01B", "alice", "v2", true, 1001)
	require.NoError(t, SetCurrentAccount(ctx, database, "alice", "01A"))
	require.NoError(t, SetCurrentAccount(ctx, database, "alice", "01B"))

	id, err = GetCurrentAccount(ctx, database, "alice")
	require.NoError(t, err)
	require.Equal(t, "01B", id)

	store := NewStore(database)
	tok, err := store.CurrentAccount(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "v2", tok.Value)

	none, err := store.CurrentAccount(ctx, "bob")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestSentIDs(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	require.NoError(t, AddSentIDs(ctx, database, "alice", "request", []string{"u1", "u2"}))
	require.NoError(t, AddSentIDs(ctx, database, "alice", "request", []string{"u2", "u3"}))
	require.NoError(t, AddSentIDs(ctx, database, "alice", "lounge", []string{"l1"}))
	require.NoError(t, AddSentIDs(ctx, database, "bob", "request", []string{"u9"}))
	require.NoError(t, AddSentIDs(ctx, database, "alice", "request", nil))

	ids, err := SentIDs(ctx, database, "alice", "request")
	require.NoError(t, err)
	sort.Strings(ids)
	require.Equal(t, []string{"u1", "u2", "u3"}, ids)

	sent, err := IsAlreadySent(ctx, database, "alice", "lounge", "l1")
	require.NoError(t, err)
	require.True(t, sent)
	sent, err = IsAlreadySent(ctx, database, "alice", "lounge", "u1")
	require.NoError(t, err)
	require.False(t, sent)

	counts, err := CountSentIDs(ctx, database, "alice")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"request": 3, "lounge": 1}, counts)
}

func TestClearSentIDs(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	require.NoError(t, AddSentIDs(ctx, database, "alice", "request", []string{"u1", "u2"}))
	require.NoError(t, AddSentIDs(ctx, database, "alice", "lounge", []string{"l1"}))
	require.NoError(t, AddSentIDs(ctx, database, "bob", "lounge", []string{"l1"}))

	n, err := ClearSentIDs(ctx, database, "alice", "request")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = ClearSentIDs(ctx, database, "alice", "")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	counts, err := CountSentIDs(ctx, database, "bob")
	require.NoError(t, err)
	require.Equal(t, 1, counts["lounge"])
}

package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/remote"
)

// Store adapts the query functions to the interfaces consumed by campaigns
// and the ledger.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an initialized database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// ActiveTokens returns the owner's active tokens.
func (s *Store) ActiveTokens(ctx context.Context, owner string) ([]account.Token, error) {
	return ActiveTokens(ctx, s.DB, owner)
}

// CurrentAccount returns the token selected for single-account campaigns, or nil.
func (s *Store) CurrentAccount(ctx context.Context, owner string) (*account.Token, error) {
	id, err := GetCurrentAccount(ctx, s.DB, owner)
	if err != nil || id == "" {
		return nil, err
	}
	return GetToken(ctx, s.DB, id)
}

// Filter returns the stored filter of a token, or nil.
func (s *Store) Filter(ctx context.Context, tokenID string) (*remote.Filter, error) {
	return GetFilter(ctx, s.DB, tokenID)
}

// SentIDs returns the ledger ids of (owner, category).
func (s *Store) SentIDs(ctx context.Context, owner, category string) ([]string, error) {
	return SentIDs(ctx, s.DB, owner, category)
}

// AddSentIDs persists ledger ids of (owner, category).
func (s *Store) AddSentIDs(ctx context.Context, owner, category string, ids []string) error {
	return AddSentIDs(ctx, s.DB, owner, category, ids)
}

package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/db"
	"github.com/hpungsan/herd/internal/errors"
	"github.com/hpungsan/herd/internal/ledger"
)

// ClearLedgerOutput contains the result of the ClearLedger operation.
type ClearLedgerOutput struct {
	Category string `json:"category"`
	Cleared  int64  `json:"cleared"`
}

// ClearLedger forgets contacted targets so that later campaigns reach them
// again. An empty category clears every category.
func ClearLedger(ctx context.Context, database *sql.DB, owner, category string) (*ClearLedgerOutput, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category != "" && !ledger.ValidCategory(category) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("category must be one of: %s", strings.Join(ledger.Categories, ", ")))
	}
	n, err := db.ClearSentIDs(ctx, database, account.NormalizeOwner(owner), category)
	if err != nil {
		return nil, err
	}
	label := category
	if label == "" {
		label = "all"
	}
	return &ClearLedgerOutput{Category: label, Cleared: n}, nil
}

// LedgerStatsOutput contains the result of the LedgerStats operation.
type LedgerStatsOutput struct {
	Owner  string         `json:"owner"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// LedgerStats counts persisted ledger ids per category.
func LedgerStats(ctx context.Context, database *sql.DB, owner string) (*LedgerStatsOutput, error) {
	owner = account.NormalizeOwner(owner)
	counts, err := db.CountSentIDs(ctx, database, owner)
	if err != nil {
		return nil, err
	}
	out := &LedgerStatsOutput{Owner: owner, Counts: make(map[string]int, len(ledger.Categories))}
	for _, c := range ledger.Categories {
		out.Counts[c] = counts[c]
		out.Total += counts[c]
	}
	return out, nil
}

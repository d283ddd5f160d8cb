package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/db"
	"github.com/hpungsan/herd/internal/errors"
	"github.com/hpungsan/herd/internal/remote"
)

// SetFilterInput contains parameters for the SetFilter operation.
type SetFilterInput struct {
	Owner   string
	TokenID string // empty applies the filter to every token of the owner
	Filter  remote.Filter
}

// SetFilterOutput contains the result of the SetFilter operation.
type SetFilterOutput struct {
	Updated []string      `json:"updated"`
	Filter  remote.Filter `json:"filter"`
}

// SetFilter stores the search filter applied at the start of request campaigns.
func SetFilter(ctx context.Context, database *sql.DB, input SetFilterInput) (*SetFilterOutput, error) {
	f := input.Filter
	if err := validateFilter(&f); err != nil {
		return nil, err
	}

	var ids []string
	if tokenID := strings.TrimSpace(input.TokenID); tokenID != "" {
		if _, err := loadOwned(ctx, database, input.Owner, tokenID); err != nil {
			return nil, err
		}
		ids = []string{tokenID}
	} else {
		tokens, err := db.ListTokens(ctx, database, account.NormalizeOwner(input.Owner))
		if err != nil {
			return nil, err
		}
		if len(tokens) == 0 {
			return nil, errors.NewNotFound("token", account.NormalizeOwner(input.Owner))
		}
		for _, t := range tokens {
			ids = append(ids, t.ID)
		}
	}

	for _, id := range ids {
		if err := db.SetFilter(ctx, database, id, f); err != nil {
			return nil, err
		}
	}
	return &SetFilterOutput{Updated: ids, Filter: f}, nil
}

// GetFilterOutput contains the result of the GetFilter operation.
type GetFilterOutput struct {
	TokenID string         `json:"token_id"`
	Filter  *remote.Filter `json:"filter"`
}

// GetFilter returns the stored filter of a token. An empty id reads the
// owner's current account.
func GetFilter(ctx context.Context, database *sql.DB, owner, tokenID string) (*GetFilterOutput, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		current, err := db.GetCurrentAccount(ctx, database, account.NormalizeOwner(owner))
		if err != nil {
			return nil, err
		}
		if current == "" {
			return nil, errors.NewInvalidRequest("no current account; pass a token id or select an account")
		}
		tokenID = current
	}
	if _, err := loadOwned(ctx, database, owner, tokenID); err != nil {
		return nil, err
	}
	f, err := db.GetFilter(ctx, database, tokenID)
	if err != nil {
		return nil, err
	}
	return &GetFilterOutput{TokenID: tokenID, Filter: f}, nil
}

// validateFilter normalizes codes and checks ranges.
func validateFilter(f *remote.Filter) error {
	f.NationalityCode = strings.ToUpper(strings.TrimSpace(f.NationalityCode))
	f.LanguageCodes = strings.TrimSpace(f.LanguageCodes)

	if f.GenderType < 0 || f.GenderType > 2 {
		return errors.NewInvalidRequest("gender_type must be 0 (all), 1 or 2")
	}
	maxYear := time.Now().Year()
	for _, y := range []int{f.BirthYearFrom, f.BirthYearTo} {
		if y != 0 && (y < 1900 || y > maxYear) {
			return errors.NewInvalidRequest("birth years must be between 1900 and the current year")
		}
	}
	if f.BirthYearFrom != 0 && f.BirthYearTo != 0 && f.BirthYearFrom > f.BirthYearTo {
		return errors.NewInvalidRequest("birth_year_from must not be after birth_year_to")
	}
	if f.Distance < 0 {
		return errors.NewInvalidRequest("distance must not be negative")
	}
	if n := len(f.NationalityCode); n != 0 && n != 2 {
		return errors.NewInvalidRequest("nationality must be a two-letter country code")
	}
	return nil
}

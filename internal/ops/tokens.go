package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/db"
	"github.com/hpungsan/herd/internal/device"
	"github.com/hpungsan/herd/internal/errors"
	"github.com/hpungsan/herd/internal/remote"
)

// AddTokenInput contains parameters for the AddToken operation.
type AddTokenInput struct {
	Owner  string
	Value  string // required
	Name   string // default: the remote profile name
	Locale string // device identity locale, default "en"
}

// AddTokenOutput contains the result of the AddToken operation.
type AddTokenOutput struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RemoteUserID string `json:"remote_user_id,omitempty"`
	Masked       string `json:"token"`
	Current      bool   `json:"current"`
}

// AddToken verifies a token against the platform and stores it with a fresh
// device identity and a snapshot of the account profile. The first token of
// an owner becomes the current account.
func AddToken(ctx context.Context, database *sql.DB, client *remote.Client, input AddTokenInput) (*AddTokenOutput, error) {
	value := strings.TrimSpace(input.Value)
	if value == "" {
		return nil, errors.NewInvalidRequest("token is required")
	}
	if len(value) > MaxTokenLength {
		return nil, errors.NewInvalidRequest("token is too long")
	}
	owner := account.NormalizeOwner(input.Owner)

	ident := device.Generate(input.Locale)
	profile, out := client.Account(remote.Credentials{Token: value, DeviceInfo: ident.HeaderValue()}).Me(ctx)
	switch out.Kind {
	case remote.Success:
	case remote.Fatal:
		return nil, errors.NewInvalidRequest("the platform rejected this token (" + out.String() + ")")
	default:
		return nil, errors.NewUpstream("verify token", out.Status, out.ErrorCode)
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = profile.Name
	}
	now := time.Now().Unix()
	tok := &account.Token{
		ID:           id,
		Owner:        owner,
		Value:        value,
		Name:         name,
		RemoteUserID: profile.ID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.InsertToken(ctx, database, tok); err != nil {
		if err == db.ErrUniqueConstraint {
			return nil, errors.NewConflict("this token is already added")
		}
		return nil, err
	}
	if err := db.PutDeviceIdentity(ctx, database, id, ident); err != nil {
		return nil, err
	}
	if err := db.PutInfoCard(ctx, database, id, profile); err != nil {
		return nil, err
	}

	current, err := db.GetCurrentAccount(ctx, database, owner)
	if err != nil {
		return nil, err
	}
	if current == "" {
		if err := db.SetCurrentAccount(ctx, database, owner, id); err != nil {
			return nil, err
		}
		current = id
	}

	return &AddTokenOutput{
		ID:           id,
		Name:         name,
		RemoteUserID: profile.ID,
		Masked:       tok.Masked(),
		Current:      current == id,
	}, nil
}

// TokenSummary is a token as shown to its owner. The value is masked.
type TokenSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Masked    string `json:"token"`
	Active    bool   `json:"active"`
	Current   bool   `json:"current"`
	CreatedAt int64  `json:"created_at"`
}

// ListTokensOutput contains the result of the ListTokens operation.
type ListTokensOutput struct {
	Items  []TokenSummary `json:"items"`
	Active int            `json:"active"`
}

// ListTokens returns the owner's tokens, oldest first.
func ListTokens(ctx context.Context, database *sql.DB, owner string) (*ListTokensOutput, error) {
	owner = account.NormalizeOwner(owner)
	tokens, err := db.ListTokens(ctx, database, owner)
	if err != nil {
		return nil, err
	}
	current, err := db.GetCurrentAccount(ctx, database, owner)
	if err != nil {
		return nil, err
	}

	out := &ListTokensOutput{Items: make([]TokenSummary, 0, len(tokens))}
	for _, t := range tokens {
		out.Items = append(out.Items, TokenSummary{
			ID:        t.ID,
			Name:      t.Name,
			Masked:    t.Masked(),
			Active:    t.Active,
			Current:   t.ID == current,
			CreatedAt: t.CreatedAt,
		})
		if t.Active {
			out.Active++
		}
	}
	return out, nil
}

// SetActiveInput contains parameters for the SetActive operation.
type SetActiveInput struct {
	Owner  string
	ID     string
	Active bool
}

// SetActive activates or deactivates a token.
func SetActive(ctx context.Context, database *sql.DB, input SetActiveInput) (*TokenSummary, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}
	tok, err := loadOwned(ctx, database, input.Owner, id)
	if err != nil {
		return nil, err
	}
	if err := db.SetTokenActive(ctx, database, id, input.Active); err != nil {
		return nil, err
	}
	tok.Active = input.Active
	return summarize(ctx, database, tok)
}

// DeleteTokenOutput contains the result of the DeleteToken operation.
type DeleteTokenOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// DeleteToken removes a token with its filter, device identity and profile snapshot.
func DeleteToken(ctx context.Context, database *sql.DB, owner, id string) (*DeleteTokenOutput, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	if _, err := loadOwned(ctx, database, owner, id); err != nil {
		return nil, err
	}
	if err := db.DeleteToken(ctx, database, id); err != nil {
		return nil, err
	}
	return &DeleteTokenOutput{Deleted: true, ID: id}, nil
}

// SelectAccount makes a token the owner's current account.
func SelectAccount(ctx context.Context, database *sql.DB, owner, id string) (*TokenSummary, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	tok, err := loadOwned(ctx, database, owner, id)
	if err != nil {
		return nil, err
	}
	if err := db.SetCurrentAccount(ctx, database, tok.Owner, id); err != nil {
		return nil, err
	}
	return summarize(ctx, database, tok)
}

func loadOwned(ctx context.Context, database *sql.DB, owner, id string) (*account.Token, error) {
	tok, err := db.GetToken(ctx, database, id)
	if err != nil {
		return nil, err
	}
	return ownedToken(tok, owner, id)
}

func summarize(ctx context.Context, database *sql.DB, tok *account.Token) (*TokenSummary, error) {
	current, err := db.GetCurrentAccount(ctx, database, tok.Owner)
	if err != nil {
		return nil, err
	}
	return &TokenSummary{
		ID:        tok.ID,
		Name:      tok.Name,
		Masked:    tok.Masked(),
		Active:    tok.Active,
		Current:   tok.ID == current,
		CreatedAt: tok.CreatedAt,
	}, nil
}

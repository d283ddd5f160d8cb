// Package ops implements the account operations behind the MCP tools, the CLI
// and the dashboard: tokens, filters, the current account and the ledger.
package ops

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/errors"
)

// MaxTokenLength bounds accepted access token values.
const MaxTokenLength = 4096

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// requireID trims id and rejects empty values.
func requireID(field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest(field + " is required")
	}
	return id, nil
}

// ownedToken loads a token and checks that it belongs to owner.
// Tokens of other owners are reported as not found.
func ownedToken(tok *account.Token, owner, id string) (*account.Token, error) {
	if tok.Owner != account.NormalizeOwner(owner) {
		return nil, errors.NewNotFound("token", id)
	}
	return tok, nil
}

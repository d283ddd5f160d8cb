// Package account holds the access-token model shared by the store, ops and campaigns.
package account

import (
	"regexp"
	"strings"
)

// Token is one controlled platform account.
type Token struct {
	// ID is a ULID that uniquely identifies this token record
	ID string

	// Owner is the normalized chat user that owns the token
	Owner string

	// Value is the opaque access token sent to the platform
	Value string

	// Name is the display name captured at verification
	Name string

	// RemoteUserID is the platform's id for the account
	RemoteUserID string

	// Active tokens take part in multi-account campaigns
	Active bool

	CreatedAt int64
	UpdatedAt int64
}

// Masked returns the token value with all but its edges hidden.
func (t Token) Masked() string {
	return Mask(t.Value)
}

// Label is the name shown in progress tables.
func (t Token) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Masked()
}

// Mask hides the middle of a credential.
func Mask(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + "…" + v[len(v)-4:]
}

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeOwner trims, lowercases and collapses whitespace.
// An empty result becomes "default".
func NormalizeOwner(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespaceRegex.ReplaceAllString(s, " ")
	if s == "" {
		return "default"
	}
	return s
}

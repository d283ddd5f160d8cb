package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/device"
	"github.com/hpungsan/herd/internal/errors"
	"github.com/hpungsan/herd/internal/remote"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.HerdError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// =============================================================================
// Tokens
// =============================================================================

// InsertToken stores a new token.
func InsertToken(ctx context.Context, db *sql.DB, t *account.Token) error {
	query := `
		INSERT INTO tokens (id, owner, value, name, remote_user_id, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		t.ID, t.Owner, t.Value, toNullString(t.Name), toNullString(t.RemoteUserID),
		boolToInt(t.Active), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetToken retrieves a token by id.
func GetToken(ctx context.Context, db *sql.DB, id string) (*account.Token, error) {
	row := db.QueryRowContext(ctx, tokenSelect+` WHERE id = ?`, id)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("token", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// ListTokens returns every token of an owner, oldest first.
func ListTokens(ctx context.Context, db *sql.DB, owner string) ([]account.Token, error) {
	return queryTokens(ctx, db, tokenSelect+` WHERE owner = ? ORDER BY created_at, id`, owner)
}

// ActiveTokens returns the active tokens of an owner, oldest first.
func ActiveTokens(ctx context.Context, db *sql.DB, owner string) ([]account.Token, error) {
	return queryTokens(ctx, db, tokenSelect+` WHERE owner = ? AND active = 1 ORDER BY created_at, id`, owner)
}

// SetTokenActive flips the active flag of a token.
func SetTokenActive(ctx context.Context, db *sql.DB, id string, active bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE tokens SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().Unix(), id,
	)
	return expectOneRow(result, err, id)
}

// UpdateTokenProfile records the display name and remote id captured at verification.
func UpdateTokenProfile(ctx context.Context, db *sql.DB, id, name, remoteUserID string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE tokens SET name = ?, remote_user_id = ?, updated_at = ? WHERE id = ?`,
		toNullString(name), toNullString(remoteUserID), time.Now().Unix(), id,
	)
	return expectOneRow(result, err, id)
}

// DeleteToken removes a token and every record hanging off it.
func DeleteToken(ctx context.Context, db *sql.DB, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM token_filters WHERE token_id = ?`,
		`DELETE FROM device_identities WHERE token_id = ?`,
		`DELETE FROM info_cards WHERE token_id = ?`,
		`DELETE FROM current_accounts WHERE token_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return errors.NewInternal(err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE id = ?`, id)
	if err := expectOneRow(result, err, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

const tokenSelect = `
	SELECT id, owner, value, name, remote_user_id, active, created_at, updated_at
	FROM tokens`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*account.Token, error) {
	var (
		t            account.Token
		name         sql.NullString
		remoteUserID sql.NullString
		active       int
	)
	if err := row.Scan(&t.ID, &t.Owner, &t.Value, &name, &remoteUserID, &active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Name = name.String
	t.RemoteUserID = remoteUserID.String
	t.Active = active == 1
	return &t, nil
}

func queryTokens(ctx context.Context, db *sql.DB, query string, args ...any) ([]account.Token, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	tokens := make([]account.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return tokens, nil
}

// =============================================================================
// Per-token records
// =============================================================================

// GetFilter returns the stored filter of a token, or nil if none was set.
func GetFilter(ctx context.Context, db *sql.DB, tokenID string) (*remote.Filter, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT filter_json FROM token_filters WHERE token_id = ?`, tokenID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	var f remote.Filter
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &f, nil
}

// SetFilter stores (or replaces) the filter of a token.
func SetFilter(ctx context.Context, db *sql.DB, tokenID string, f remote.Filter) error {
	return upsertJSON(ctx, db,
		`INSERT INTO token_filters (token_id, filter_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(token_id) DO UPDATE SET filter_json = excluded.filter_json, updated_at = excluded.updated_at`,
		tokenID, f)
}

// GetDeviceIdentity returns the device identity of a token, or nil if none exists yet.
func GetDeviceIdentity(ctx context.Context, db *sql.DB, tokenID string) (*device.Identity, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT identity_json FROM device_identities WHERE token_id = ?`, tokenID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	var id device.Identity
	if err := json.Unmarshal([]byte(data), &id); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &id, nil
}

// PutDeviceIdentity stores the device identity of a token. An existing identity is kept.
func PutDeviceIdentity(ctx context.Context, db *sql.DB, tokenID string, id device.Identity) error {
	return upsertJSON(ctx, db,
		`INSERT INTO device_identities (token_id, identity_json, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(token_id) DO NOTHING`,
		tokenID, id)
}

// PutInfoCard stores (or replaces) the profile snapshot of a token.
func PutInfoCard(ctx context.Context, db *sql.DB, tokenID string, card any) error {
	return upsertJSON(ctx, db,
		`INSERT INTO info_cards (token_id, card_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(token_id) DO UPDATE SET card_json = excluded.card_json, updated_at = excluded.updated_at`,
		tokenID, card)
}

// GetInfoCard returns the raw profile snapshot of a token, or "" if none exists.
func GetInfoCard(ctx context.Context, db *sql.DB, tokenID string) (string, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT card_json FROM info_cards WHERE token_id = ?`, tokenID).Scan(&data)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return data, nil
}

// GetCurrentAccount returns the token id selected for single-account campaigns, or "".
func GetCurrentAccount(ctx context.Context, db *sql.DB, owner string) (string, error) {
	var tokenID string
	err := db.QueryRowContext(ctx, `SELECT token_id FROM current_accounts WHERE owner = ?`, owner).Scan(&tokenID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return tokenID, nil
}

// SetCurrentAccount selects the token used by single-account campaigns.
func SetCurrentAccount(ctx context.Context, db *sql.DB, owner, tokenID string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO current_accounts (owner, token_id) VALUES (?, ?)
		 ON CONFLICT(owner) DO UPDATE SET token_id = excluded.token_id`,
		owner, tokenID)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// =============================================================================
// Deduplication ledger
// =============================================================================

// SentIDs returns every target id recorded for (owner, category).
func SentIDs(ctx context.Context, db *sql.DB, owner, category string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT target_id FROM sent_ids WHERE owner = ? AND category = ?`, owner, category)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewInternal(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return ids, nil
}

// IsAlreadySent reports whether a target id is recorded for (owner, category).
func IsAlreadySent(ctx context.Context, db *sql.DB, owner, category, targetID string) (bool, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM sent_ids WHERE owner = ? AND category = ? AND target_id = ? LIMIT 1`,
		owner, category, targetID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// AddSentIDs records target ids in one transaction. Already recorded ids are ignored.
func AddSentIDs(ctx context.Context, db *sql.DB, owner, category string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO sent_ids (owner, category, target_id, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, owner, category, id, now); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ClearSentIDs removes recorded ids of an owner. An empty category clears all categories.
func ClearSentIDs(ctx context.Context, db *sql.DB, owner, category string) (int64, error) {
	query := `DELETE FROM sent_ids WHERE owner = ?`
	args := []any{owner}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// CountSentIDs returns the number of recorded ids per category for an owner.
func CountSentIDs(ctx context.Context, db *sql.DB, owner string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM sent_ids WHERE owner = ? GROUP BY category`, owner)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, errors.NewInternal(err)
		}
		counts[category] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return counts, nil
}

// =============================================================================
// Helpers
// =============================================================================

func upsertJSON(ctx context.Context, db *sql.DB, query, tokenID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternal(err)
	}
	if _, err := db.ExecContext(ctx, query, tokenID, string(data), time.Now().Unix()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func expectOneRow(result sql.Result, err error, id string) error {
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("token", id)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// toNullString converts an empty string to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

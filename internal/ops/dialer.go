package ops

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/campaign"
	"github.com/hpungsan/herd/internal/db"
	"github.com/hpungsan/herd/internal/device"
	"github.com/hpungsan/herd/internal/remote"
)

// Dialer binds tokens to the remote client with their persisted device identity.
type Dialer struct {
	DB     *sql.DB
	Client *remote.Client
	Locale string
}

// Dial implements campaign.Dialer.
func (d *Dialer) Dial(ctx context.Context, tok account.Token) (campaign.API, error) {
	ident, err := EnsureDeviceIdentity(ctx, d.DB, tok.ID, d.Locale)
	if err != nil {
		return nil, err
	}
	return d.Client.Account(remote.Credentials{Token: tok.Value, DeviceInfo: ident.HeaderValue()}), nil
}

// EnsureDeviceIdentity returns the token's device identity, creating it on first use.
func EnsureDeviceIdentity(ctx context.Context, database *sql.DB, tokenID, locale string) (*device.Identity, error) {
	ident, err := db.GetDeviceIdentity(ctx, database, tokenID)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		if err := db.PutDeviceIdentity(ctx, database, tokenID, device.Generate(locale)); err != nil {
			return nil, err
		}
		// Another caller may have stored one first; the stored identity wins.
		if ident, err = db.GetDeviceIdentity(ctx, database, tokenID); err != nil {
			return nil, err
		}
	}
	if ident == nil || !ident.Valid() {
		return nil, fmt.Errorf("device identity of token %s is invalid", tokenID)
	}
	return ident, nil
}

var _ campaign.Dialer = (*Dialer)(nil)

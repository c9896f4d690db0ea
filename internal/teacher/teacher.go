package teacher

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateUsername is returned by Create when the username is taken.
var ErrDuplicateUsername = errors.New("username already exists")

// Account is a registered teacher and its webhook configuration.
type Account struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	SheetURL      *string   `json:"sheet_url,omitempty"`
	WebhookURL    string    `json:"webapp_url"`
	WebhookSecret string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasWebhook reports whether submissions can be relayed for this account.
func (a *Account) HasWebhook() bool {
	return a != nil && a.WebhookURL != "" && a.WebhookSecret != ""
}

// Store persists teacher accounts. Lookups return (nil, nil) when no
// account matches.
type Store interface {
	Create(ctx context.Context, acct Account) (int64, error)
	ByUsername(ctx context.Context, username string) (*Account, error)
	ByID(ctx context.Context, id int64) (*Account, error)
}

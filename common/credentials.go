package common

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common/model"
)

// CredentialStore persists the session token pair. Each call is individually
// atomic; the store has no knowledge of refresh cycles.
type CredentialStore interface {
	// Get returns ErrNoCredentials when nothing is stored.
	Get(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
	Remove(ctx context.Context) error
}

// ProfileStore persists the signed in user's profile.
type ProfileStore interface {
	// GetUser returns ErrNoCredentials when nothing is stored.
	GetUser(ctx context.Context) (*model.User, error)
	SaveUser(ctx context.Context, user *model.User) error
	RemoveUser(ctx context.Context) error
}

// SessionStore is a backend holding both tokens and profile.
type SessionStore interface {
	CredentialStore
	ProfileStore
}

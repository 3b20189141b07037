package common

import (
	"context"

	"golang.org/x/oauth2"
)

// RefreshClient defines the ability to exchange a refresh token for a new
// token pair.
type RefreshClient interface {
	// RefreshToken attempts to refresh using the given refresh token string.
	// Returns a new *oauth2.Token on success, or an error if refresh fails.
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

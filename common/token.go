package common

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// NewToken builds the token pair handed out by the API. When the access token
// is a JWT carrying an exp claim, Expiry is filled from it. The signature is
// not verified; the client only uses the expiry for diagnostics.
func NewToken(accessToken, refreshToken string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		Expiry:       accessTokenExpiry(accessToken),
	}
}

func accessTokenExpiry(accessToken string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// BearerPrefix starts every Authorization value set by the client.
const BearerPrefix = "Bearer "

// BearerHeader formats an Authorization header value.
func BearerHeader(accessToken string) string {
	return BearerPrefix + accessToken
}

// Package store holds CredentialStore and ProfileStore backends.
package store

import (
	"time"

	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
)

// tokenRecord is the persisted shape of a token pair.
type tokenRecord struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refresh_token"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

func newTokenRecord(token *oauth2.Token) tokenRecord {
	record := tokenRecord{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		record.Expiry = &expiry
	}
	return record
}

func (r tokenRecord) oauth2Token() *oauth2.Token {
	token := common.NewToken(r.Token, r.RefreshToken)
	if token.Expiry.IsZero() && r.Expiry != nil {
		token.Expiry = *r.Expiry
	}
	return token
}

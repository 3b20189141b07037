package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/model"
)

// RefreshPath is the session refresh endpoint.
const RefreshPath = "/sessions/refresh-token"

var _ common.RefreshClient = (*Refresher)(nil)

// Refresher calls the session refresh endpoint. It talks to the transport
// directly so the refresh call never passes through the response
// interceptors.
type Refresher struct {
	baseURL    string
	httpClient common.HttpClient
}

func NewRefresher(baseURL string, httpClient common.HttpClient) *Refresher {
	return &Refresher{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// RefreshToken posts {refresh_token} and returns the new pair. Any non-2xx
// status is a failure. When the response omits a refresh token the one sent
// is kept.
func (r *Refresher) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	urlStr, err := resolveURL(r.baseURL, RefreshPath)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(model.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, common.NewTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.NewTransportError(fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, common.NewHTTPError(resp.StatusCode, data)
	}

	var tr model.TokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if tr.Token == "" {
		return nil, errors.New("refresh response carries no token")
	}
	if tr.RefreshToken == "" {
		tr.RefreshToken = refreshToken
	}
	return common.NewToken(tr.Token, tr.RefreshToken), nil
}

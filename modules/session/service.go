package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/model"
	"github.com/guarzo/gymapi/modules/api"
)

var _ api.SessionTerminator = (*Manager)(nil)

// Manager owns the signed in user. Its SignOut is the session terminator the
// refresh coordinator calls when a session cannot be recovered.
type Manager struct {
	client *api.Client
	store  common.SessionStore
	logger *zap.Logger

	mu   sync.RWMutex
	user *model.User
}

func NewManager(client *api.Client, store common.SessionStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client: client,
		store:  store,
		logger: logger,
	}
}

// CurrentUser returns a copy of the signed in user, or nil.
func (m *Manager) CurrentUser() *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.user == nil {
		return nil
	}
	user := *m.user
	return &user
}

func (m *Manager) SignedIn() bool {
	return m.CurrentUser() != nil
}

// SignIn exchanges credentials for a session, persists it and installs the
// access token on the client.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	var resp model.SessionResponse
	err := m.client.JSON(ctx, http.MethodPost, "/sessions", model.SignInRequest{
		Email:    email,
		Password: password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" || resp.RefreshToken == "" || resp.User.Email == "" {
		return nil, errors.New("sign in response is missing user or tokens")
	}

	if err := m.store.SaveUser(ctx, &resp.User); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	if err := m.store.Save(ctx, common.NewToken(resp.Token, resp.RefreshToken)); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	m.install(&resp.User, resp.Token)

	m.logger.Info("signed in", zap.Int64("user", resp.User.ID))
	return m.CurrentUser(), nil
}

// SignOut forgets the user and the stored session. Safe to call when already
// signed out.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	wasSignedIn := m.user != nil
	m.user = nil
	m.mu.Unlock()

	m.client.SetDefaultAuthHeader("")

	err := errors.Join(m.store.RemoveUser(ctx), m.store.Remove(ctx))
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if wasSignedIn {
		m.logger.Info("signed out")
	}
	return nil
}

// Restore loads a stored session. It returns common.ErrNoCredentials when
// there is none.
func (m *Manager) Restore(ctx context.Context) (*model.User, error) {
	user, err := m.store.GetUser(ctx)
	if err != nil {
		return nil, err
	}
	token, err := m.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, common.ErrNoCredentials
	}

	m.install(user, token.AccessToken)
	return m.CurrentUser(), nil
}

// UpdateProfile replaces the local profile after the server accepted it.
func (m *Manager) UpdateProfile(ctx context.Context, user *model.User) error {
	if err := m.store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	stored := *user
	m.mu.Lock()
	m.user = &stored
	m.mu.Unlock()
	return nil
}

// SignUp creates an account. It does not sign in.
func (m *Manager) SignUp(ctx context.Context, name, email, password string) error {
	return m.client.JSON(ctx, http.MethodPost, "/users", model.SignUpRequest{
		Name:     name,
		Email:    email,
		Password: password,
	}, nil)
}

func (m *Manager) install(user *model.User, accessToken string) {
	m.client.SetDefaultAuthHeader(accessToken)

	stored := *user
	m.mu.Lock()
	m.user = &stored
	m.mu.Unlock()
}

package store

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/model"
)

var _ common.SessionStore = (*Memory)(nil)

// Memory keeps the session in process memory.
type Memory struct {
	mu    sync.RWMutex
	token *tokenRecord
	user  *model.User
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(_ context.Context) (*oauth2.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == nil {
		return nil, common.ErrNoCredentials
	}
	return m.token.oauth2Token(), nil
}

func (m *Memory) Save(_ context.Context, token *oauth2.Token) error {
	record := newTokenRecord(token)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = &record
	return nil
}

func (m *Memory) Remove(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = nil
	return nil
}

func (m *Memory) GetUser(_ context.Context) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.user == nil {
		return nil, common.ErrNoCredentials
	}
	user := *m.user
	return &user, nil
}

func (m *Memory) SaveUser(_ context.Context, user *model.User) error {
	stored := *user

	m.mu.Lock()
	defer m.mu.Unlock()

	m.user = &stored
	return nil
}

func (m *Memory) RemoveUser(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.user = nil
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/model"
)

const (
	tokenFileName = "auth_token.json"
	userFileName  = "user.json"
)

var _ common.SessionStore = (*File)(nil)

// File keeps the session as JSON documents in a directory.
type File struct {
	dir string
	mu  sync.Mutex
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}
	return &File{dir: dir}, nil
}

func (f *File) Get(_ context.Context) (*oauth2.Token, error) {
	var record tokenRecord
	if err := f.read(tokenFileName, &record); err != nil {
		return nil, err
	}
	return record.oauth2Token(), nil
}

func (f *File) Save(_ context.Context, token *oauth2.Token) error {
	return f.write(tokenFileName, newTokenRecord(token))
}

func (f *File) Remove(_ context.Context) error {
	return f.remove(tokenFileName)
}

func (f *File) GetUser(_ context.Context) (*model.User, error) {
	var user model.User
	if err := f.read(userFileName, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (f *File) SaveUser(_ context.Context, user *model.User) error {
	return f.write(userFileName, user)
}

func (f *File) RemoveUser(_ context.Context) error {
	return f.remove(userFileName)
}

func (f *File) read(name string, out interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return common.ErrNoCredentials
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// write replaces the file atomically through a rename.
func (f *File) write(name string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := filepath.Join(f.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func (f *File) remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(filepath.Join(f.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

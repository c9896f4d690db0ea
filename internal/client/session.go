package client

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionStore holds the session token between client invocations.
// Token returns "" when no session is stored.
type SessionStore interface {
	Token(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// MemorySession keeps the token in memory.
type MemorySession struct {
	mu    sync.Mutex
	token string
}

func (m *MemorySession) Token(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemorySession) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemorySession) Clear(context.Context) error {
	return m.Save(context.Background(), "")
}

// FileSession persists the token in a YAML file readable only by the user.
type FileSession struct {
	Path string
	now  func() time.Time
}

type sessionFile struct {
	Token   string    `yaml:"token"`
	SavedAt time.Time `yaml:"saved_at"`
}

// NewFileSession stores the session at path.
func NewFileSession(path string) *FileSession {
	return &FileSession{Path: path, now: time.Now}
}

// DefaultSessionPath is $XDG_CONFIG_HOME/rollsheet/session.yaml or its
// platform equivalent.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "rollsheet", "session.yaml"), nil
}

func (f *FileSession) Token(context.Context) (string, error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	var sf sessionFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	return sf.Token, nil
}

func (f *FileSession) Save(_ context.Context, token string) error {
	raw, err := yaml.Marshal(sessionFile{Token: token, SavedAt: f.now().UTC()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp, f.Path)
}

func (f *FileSession) Clear(context.Context) error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

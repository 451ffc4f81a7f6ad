// Package artifact stores generated stack outputs as addressable blobs.
// Three backends share one interface: in-memory (tests), a local directory,
// and an S3-compatible bucket. The storage collaborator serves artifacts
// back to users by key.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/fieldline/geostack/internal/errors"
)

// Store persists artifact blobs by key.
//
// Put is all-or-nothing: either the complete blob becomes readable under
// the key or nothing does. Re-putting a key replaces the previous blob,
// which is how re-generation swaps a stack's current artifact.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Close() error
}

// Memory is an in-memory Store.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]memBlob
}

type memBlob struct {
	data        []byte
	contentType string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]memBlob)}
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = memBlob{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blobs[key]
	if !ok {
		return nil, "", apperrors.NewNotFound("artifact", key)
	}
	return append([]byte(nil), b.data...), b.contentType, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// Filesystem stores blobs under a root directory. Writes go through a temp
// file and a rename so a crash never leaves a partial artifact under its
// final key.
type Filesystem struct {
	root string
}

// NewFilesystem creates the store, ensuring the root exists.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./artifacts"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Filesystem{root: root}, nil
}

func (f *Filesystem) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

// Put implements Store.
func (f *Filesystem) Put(_ context.Context, key string, data []byte, contentType string) error {
	final := f.path(key)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(final), ".artifact-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.WriteFile(final+".type", []byte(contentType), 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Get implements Store.
func (f *Filesystem) Get(_ context.Context, key string) ([]byte, string, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, "", apperrors.NewNotFound("artifact", key)
	}
	if err != nil {
		return nil, "", err
	}

	contentType := "application/octet-stream"
	if ct, err := os.ReadFile(f.path(key) + ".type"); err == nil {
		contentType = strings.TrimSpace(string(ct))
	}
	return data, contentType, nil
}

// Close implements Store.
func (f *Filesystem) Close() error { return nil }

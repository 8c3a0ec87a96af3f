// Package fsblob stores uploaded blobs as flat files on the local
// filesystem, keyed by opaque storage id. It backs the file-reference
// cleanup in the handler factories and the orphan sweeper.
package fsblob

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Store is a filesystem-backed blob store. Blob ids are hex strings
// generated on Put; they never contain path separators.
type Store struct {
	dir     string
	baseURL string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsblob: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes the blob content and returns its generated storage id.
func (s *Store) Put(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := newID()
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("fsblob: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("fsblob: write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("fsblob: close blob: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		return "", fmt.Errorf("fsblob: store blob %s: %w", id, err)
	}
	return id, nil
}

// Open returns a reader over the blob content. The caller closes it.
func (s *Store) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("fsblob: blob %s: %w", id, fs.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("fsblob: open blob %s: %w", id, err)
	}
	return f, nil
}

// URL returns the public URL for a blob id.
func (s *Store) URL(id string) string {
	return s.baseURL + "/" + url.PathEscape(id)
}

// Delete removes a blob. Deleting an absent blob is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("fsblob: delete blob %s: %w", id, err)
	}
	return nil
}

// List returns every stored blob id. Used by the orphan sweeper.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("fsblob: list %s: %w", s.dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id)
}

func newID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("fsblob: generate id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("fsblob: invalid blob id %q", id)
	}
	return nil
}

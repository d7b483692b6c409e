package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
)

// FileKV implements a key/value backend using the local file system.
// Each key is stored as one file whose name is the base64url encoding of
// the key, so arbitrary custom ids never escape the base directory.
type FileKV struct {
	baseDir string
	log     *slog.Logger
}

// NewFileKV creates a file backend rooted at baseDir, creating it if needed.
func NewFileKV(baseDir string, log *slog.Logger) (*FileKV, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FileKV{baseDir: baseDir, log: log}, nil
}

// Get reads the file for key. Returns ErrKeyNotFound if the file doesn't exist.
func (b *FileKV) Get(ctx context.Context, key string) ([]byte, error) {
	filePath := b.getFilePath(key)
	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched key from file",
		slog.String("key", key),
		slog.Int("size", len(data)))

	return data, nil
}

// Put writes to a temporary file and renames it over the target, so
// readers never observe a partially written value.
func (b *FileKV) Put(ctx context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(b.baseDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.getFilePath(key)); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	b.log.Debug("Stored key in file", slog.String("key", key))
	return nil
}

func (b *FileKV) Delete(ctx context.Context, key string) error {
	err := os.Remove(b.getFilePath(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileKV) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileKV) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

func (b *FileKV) getFilePath(key string) string {
	return filepath.Join(b.baseDir, base64.RawURLEncoding.EncodeToString([]byte(key)))
}

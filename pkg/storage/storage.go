// Package storage keeps downloaded reports and derived artifacts by name.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for names that are not stored.
var ErrNotFound = errors.New("artifact not found")

// FileInfo contains metadata about a stored artifact
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	SourceURL   string    `json:"source_url,omitempty"`
	Path        string    `json:"path"` // Internal storage path
	CreatedAt   time.Time `json:"created_at"`
}

// Meta describes an artifact being stored.
type Meta struct {
	ContentType string
	SourceURL   string
}

// File is an opened artifact. PDF readers need random access.
type File interface {
	io.Reader
	io.ReaderAt
	io.Closer
}

// Storage defines the interface for artifact storage operations
type Storage interface {
	// Put stores r under name, replacing an existing artifact of the same name
	Put(ctx context.Context, name string, r io.Reader, meta Meta) (*FileInfo, error)

	// Open returns the content of an artifact
	Open(ctx context.Context, name string) (File, *FileInfo, error)

	// Exists reports whether an artifact is stored
	Exists(ctx context.Context, name string) (bool, error)

	// Stat returns metadata without opening the artifact
	Stat(ctx context.Context, name string) (*FileInfo, error)

	// List returns all artifacts whose name ends in suffix, sorted by name
	List(ctx context.Context, suffix string) ([]*FileInfo, error)

	// Remove deletes an artifact and its metadata
	Remove(ctx context.Context, name string) error
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
)

// Config holds storage configuration
type Config struct {
	Type      StorageType `yaml:"type"`
	LocalPath string      `yaml:"local_path"`
}

// New creates a new Storage implementation based on configuration
func New(cfg *Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	default:
		return nil, errors.New("unsupported storage type: " + string(cfg.Type))
	}
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const metaDirName = ".meta"

// LocalStorage implements Storage using the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// Ensure base path exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{basePath: basePath}, nil
}

// Dir returns the base directory.
func (s *LocalStorage) Dir() string {
	return s.basePath
}

// Put stores r under name. The content is written to a temporary file first so a partial
// download never shows up under its final name.
func (s *LocalStorage) Put(ctx context.Context, name string, r io.Reader, meta Meta) (*FileInfo, error) {
	safeName := sanitizeFilename(name)
	filePath := filepath.Join(s.basePath, safeName)

	tmp, err := os.CreateTemp(s.basePath, "."+safeName+".*.part")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after the rename

	size, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	info := &FileInfo{
		ID:          uuid.New(),
		Name:        safeName,
		Size:        size,
		ContentType: meta.ContentType,
		SourceURL:   meta.SourceURL,
		Path:        safeName,
		CreatedAt:   time.Now(),
	}

	// Save metadata
	if err := s.saveMetadata(info); err != nil {
		os.Remove(filePath) // Cleanup on error
		return nil, err
	}

	return info, nil
}

// Open returns the content of an artifact
func (s *LocalStorage) Open(ctx context.Context, name string) (File, *FileInfo, error) {
	info, err := s.Stat(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.basePath, info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	return f, info, nil
}

// Exists reports whether an artifact is stored
func (s *LocalStorage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.basePath, sanitizeFilename(name)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
}

// Stat returns metadata for an artifact. Files placed in the directory by other means have no
// metadata sidecar; their info is derived from the file itself.
func (s *LocalStorage) Stat(ctx context.Context, name string) (*FileInfo, error) {
	safeName := sanitizeFilename(name)
	st, err := os.Stat(filepath.Join(s.basePath, safeName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	info, err := s.readMetadata(safeName)
	if err != nil {
		return nil, err
	}
	if info == nil {
		info = &FileInfo{
			ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(safeName)),
			Name:        safeName,
			ContentType: contentTypeFor(safeName),
			Path:        safeName,
			CreatedAt:   st.ModTime(),
		}
	}
	info.Size = st.Size()
	return info, nil
}

// List returns all artifacts whose name ends in suffix
func (s *LocalStorage) List(ctx context.Context, suffix string) ([]*FileInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	files := make([]*FileInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, suffix) {
			continue
		}

		info, err := s.Stat(ctx, name)
		if err != nil {
			continue
		}
		files = append(files, info)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Remove deletes an artifact and its metadata
func (s *LocalStorage) Remove(ctx context.Context, name string) error {
	safeName := sanitizeFilename(name)
	if err := os.Remove(filepath.Join(s.basePath, safeName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	// Delete metadata
	os.Remove(s.metaPath(safeName))

	return nil
}

func (s *LocalStorage) metaPath(name string) string {
	return filepath.Join(s.basePath, metaDirName, name+".json")
}

func (s *LocalStorage) readMetadata(name string) (*FileInfo, error) {
	data, err := os.ReadFile(s.metaPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &info, nil
}

// saveMetadata saves file metadata to a JSON file
func (s *LocalStorage) saveMetadata(info *FileInfo) error {
	metaDir := filepath.Join(s.basePath, metaDirName)
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(s.metaPath(info.Name), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	// Replace path separators and other dangerous characters
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}

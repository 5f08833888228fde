// Package fs provides a filesystem-backed storage service. Blobs are stored
// as flat files named by generated ids under a base directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/storage"
)

// Service stores blobs as files under a base directory.
type Service struct {
	name string
	base string
}

// NewService creates the base directory if needed and returns the service.
func NewService(name, base string) (*Service, error) {
	if base == "" {
		return nil, domain.InvalidArgument("fs storage service %q: path is required", name)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory %s: %w", base, err)
	}
	return &Service{name: name, base: base}, nil
}

func (s *Service) Name() string { return s.name }
func (s *Service) Type() string { return "fs" }

func (s *Service) path(id string) (string, error) {
	// Ids are generated here, but never trust a stored id enough to let it
	// escape the base directory.
	clean := filepath.Clean(id)
	if clean != id || filepath.IsAbs(clean) || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == "." {
		return "", domain.InvalidArgument("invalid storage id %q", id)
	}
	return filepath.Join(s.base, clean), nil
}

func (s *Service) Store(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	path := filepath.Join(s.base, id)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating blob file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing blob file: %w", err)
	}
	return id, nil
}

func (s *Service) Retrieve(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.NotFound("blob", id)
	}
	if err != nil {
		return nil, fmt.Errorf("opening blob %s: %w", id, err)
	}
	return f, nil
}

func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := s.path(id)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("removing blob %s: %w", id, err)
	}
	return true, nil
}

func (s *Service) Copy(ctx context.Context, id string, dst storage.Service) (string, error) {
	return storage.CopyContents(ctx, s, id, dst)
}

func (s *Service) SupportsDirectDownload() bool { return false }
func (s *Service) SupportsDirectUpload() bool   { return false }

func (s *Service) DirectDownloadURL(ctx context.Context, id string, ttl time.Duration) (string, error) {
	return "", storage.ErrDirectURLsNotSupported
}

func (s *Service) DirectUploadURL(ctx context.Context, id string, ttl time.Duration) (string, error) {
	return "", storage.ErrDirectURLsNotSupported
}

// Package memory provides an in-memory storage service for tests and
// ephemeral deployments. Blobs vanish on restart.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/storage"
)

// Service keeps blobs in a map.
type Service struct {
	name string

	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewService(name string) *Service {
	return &Service{name: name, blobs: make(map[string][]byte)}
}

func (s *Service) Name() string { return s.name }
func (s *Service) Type() string { return "memory" }

func (s *Service) Store(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.blobs[id] = data
	s.mu.Unlock()
	return id, nil
}

func (s *Service) Retrieve(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound("blob", id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
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

// Len reports the number of stored blobs. Used by tests.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

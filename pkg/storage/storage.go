// Package storage defines the blob service interface file versions are
// stored through, and the provider that routes version records to the
// service that holds their bytes.
//
// A deployment configures any number of named services (filesystem, memory,
// S3) with one designated default. Each file version records the service
// name and the opaque id the service returned, so versions of one file may
// live on different services and a service can never be renamed without
// migrating the versions that point at it.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/castellan-io/castellan/pkg/domain"
)

// ErrDirectURLsNotSupported is returned by services that cannot mint
// presigned URLs. Callers fall back to proxied transfer.
var ErrDirectURLsNotSupported = errors.New("storage: service does not support direct URLs")

// Service stores and retrieves opaque blobs.
type Service interface {
	// Name is the configured service name recorded on file versions.
	Name() string

	// Type identifies the backend kind (fs, memory, s3).
	Type() string

	// Store writes the blob and returns the service-assigned id.
	Store(ctx context.Context, r io.Reader) (string, error)

	// Retrieve opens the blob for reading. The caller closes the reader.
	// Fails with a domain NotFound error if the id is unknown.
	Retrieve(ctx context.Context, id string) (io.ReadCloser, error)

	// Delete removes the blob. Deleting an unknown id reports success so
	// interrupted deletions can be retried.
	Delete(ctx context.Context, id string) (bool, error)

	// Copy streams the blob into dst and returns the id dst assigned.
	Copy(ctx context.Context, id string, dst Service) (string, error)

	// SupportsDirectDownload and SupportsDirectUpload report whether the
	// service can mint presigned URLs.
	SupportsDirectDownload() bool
	SupportsDirectUpload() bool

	// DirectDownloadURL and DirectUploadURL mint presigned URLs valid for
	// ttl. They fail with ErrDirectURLsNotSupported when unsupported.
	DirectDownloadURL(ctx context.Context, id string, ttl time.Duration) (string, error)
	DirectUploadURL(ctx context.Context, id string, ttl time.Duration) (string, error)
}

// CopyContents is the generic cross-service copy used by backends without a
// native copy path.
func CopyContents(ctx context.Context, src Service, id string, dst Service) (string, error) {
	r, err := src.Retrieve(ctx, id)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return dst.Store(ctx, r)
}

// Provider holds the configured services and the default routing target.
type Provider struct {
	services    map[string]Service
	defaultName string
}

// NewProvider creates an empty provider.
func NewProvider() *Provider {
	return &Provider{services: make(map[string]Service)}
}

// Register adds a service under its name. The first registered service
// becomes the default until SetDefault says otherwise.
func (p *Provider) Register(svc Service) error {
	name := svc.Name()
	if name == "" {
		return domain.InvalidArgument("storage service name cannot be empty")
	}
	if _, ok := p.services[name]; ok {
		return domain.AlreadyExists("storage service", name)
	}
	p.services[name] = svc
	if p.defaultName == "" {
		p.defaultName = name
	}
	return nil
}

// SetDefault routes unqualified stores to the named service.
func (p *Provider) SetDefault(name string) error {
	if _, ok := p.services[name]; !ok {
		return domain.NotFound("storage service", name)
	}
	p.defaultName = name
	return nil
}

// Get resolves a service by name. The empty name resolves to the default.
func (p *Provider) Get(name string) (Service, error) {
	if name == "" {
		name = p.defaultName
	}
	svc, ok := p.services[name]
	if !ok {
		return nil, domain.NotFound("storage service", name)
	}
	return svc, nil
}

// DefaultName returns the name of the default service.
func (p *Provider) DefaultName() string {
	return p.defaultName
}

// Names lists the registered service names.
func (p *Provider) Names() []string {
	names := make([]string, 0, len(p.services))
	for name := range p.services {
		names = append(names, name)
	}
	return names
}

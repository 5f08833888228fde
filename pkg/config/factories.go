package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/castellan-io/castellan/internal/logger"
	"github.com/castellan-io/castellan/pkg/event"
	"github.com/castellan-io/castellan/pkg/graph"
	graphBadger "github.com/castellan-io/castellan/pkg/graph/badger"
	graphMemory "github.com/castellan-io/castellan/pkg/graph/memory"
	"github.com/castellan-io/castellan/pkg/storage"
	storageFs "github.com/castellan-io/castellan/pkg/storage/fs"
	storageMemory "github.com/castellan-io/castellan/pkg/storage/memory"
	storageS3 "github.com/castellan-io/castellan/pkg/storage/s3"
)

// CreateGraphStore creates a graph store based on configuration.
//
// This factory function uses the Type field to determine which store
// implementation to create, then decodes the type-specific configuration
// from the corresponding map and passes it to the store's constructor.
//
// Supported types:
//   - "memory": Uses pkg/graph/memory (in-memory storage, ephemeral)
//   - "badger": Uses pkg/graph/badger (BadgerDB storage, persistent)
func CreateGraphStore(ctx context.Context, cfg *GraphConfig) (graph.Store, error) {
	switch cfg.Type {
	case "memory":
		return graphMemory.NewStore(), nil
	case "badger":
		return createBadgerGraphStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown graph store type: %q (supported: memory, badger)", cfg.Type)
	}
}

// createBadgerGraphStore creates a BadgerDB-backed graph store.
func createBadgerGraphStore(ctx context.Context, options map[string]any) (graph.Store, error) {
	type BadgerGraphStoreOptions struct {
		Path             string `mapstructure:"path"`
		InMemory         bool   `mapstructure:"in_memory"`
		BlockCacheSizeMB int64  `mapstructure:"block_cache_size_mb"`
		IndexCacheSizeMB int64  `mapstructure:"index_cache_size_mb"`
	}

	var storeOpts BadgerGraphStoreOptions
	if err := mapstructure.Decode(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode badger graph store options: %w", err)
	}

	if storeOpts.Path == "" && !storeOpts.InMemory {
		return nil, fmt.Errorf("badger graph store: path is required")
	}

	store, err := graphBadger.NewStore(ctx, graphBadger.Config{
		Path:             storeOpts.Path,
		InMemory:         storeOpts.InMemory,
		BlockCacheSizeMB: storeOpts.BlockCacheSizeMB,
		IndexCacheSizeMB: storeOpts.IndexCacheSizeMB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger graph store: %w", err)
	}

	logger.Info("badger graph store initialized: path=%s, in_memory=%t", storeOpts.Path, storeOpts.InMemory)
	return store, nil
}

// CreateStorageProvider creates the storage service registry from
// configuration. Every configured service is constructed and registered;
// the configured default (or the first service) becomes the fallback for
// requests that do not name a service.
func CreateStorageProvider(ctx context.Context, cfg *StorageConfig) (*storage.Provider, error) {
	provider := storage.NewProvider()

	for i, svcCfg := range cfg.Services {
		svc, err := createStorageService(ctx, &svcCfg)
		if err != nil {
			return nil, fmt.Errorf("storage.services[%d] (%s): %w", i, svcCfg.Name, err)
		}
		if err := provider.Register(svc); err != nil {
			return nil, fmt.Errorf("storage.services[%d] (%s): %w", i, svcCfg.Name, err)
		}
	}

	if cfg.Default != "" {
		if err := provider.SetDefault(cfg.Default); err != nil {
			return nil, err
		}
	}

	return provider, nil
}

// createStorageService creates one storage service based on its type.
func createStorageService(ctx context.Context, cfg *StorageServiceConfig) (storage.Service, error) {
	switch cfg.Type {
	case "fs":
		return createFsStorageService(cfg.Name, cfg.Options)
	case "memory":
		return storageMemory.NewService(cfg.Name), nil
	case "s3":
		return createS3StorageService(ctx, cfg.Name, cfg.Options)
	default:
		return nil, fmt.Errorf("unknown storage service type: %q (supported: fs, memory, s3)", cfg.Type)
	}
}

// createFsStorageService creates a filesystem-backed storage service.
func createFsStorageService(name string, options map[string]any) (storage.Service, error) {
	type FsStorageServiceOptions struct {
		Path string `mapstructure:"path"`
	}

	var svcOpts FsStorageServiceOptions
	if err := mapstructure.Decode(options, &svcOpts); err != nil {
		return nil, fmt.Errorf("failed to decode fs storage service options: %w", err)
	}

	if svcOpts.Path == "" {
		return nil, fmt.Errorf("fs storage service: path is required")
	}

	return storageFs.NewService(name, svcOpts.Path)
}

// createS3StorageService creates an S3-backed storage service.
func createS3StorageService(ctx context.Context, name string, options map[string]any) (storage.Service, error) {
	type S3StorageServiceOptions struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var svcOpts S3StorageServiceOptions
	if err := mapstructure.Decode(options, &svcOpts); err != nil {
		return nil, fmt.Errorf("failed to decode s3 storage service options: %w", err)
	}

	if svcOpts.Bucket == "" {
		return nil, fmt.Errorf("s3 storage service: bucket is required")
	}
	if svcOpts.Region == "" {
		return nil, fmt.Errorf("s3 storage service: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(svcOpts.Region))

	// Custom endpoint support for MinIO, Localstack, etc.
	if svcOpts.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               svcOpts.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Static credentials if provided, otherwise the default credential chain
	if svcOpts.AccessKeyID != "" && svcOpts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			svcOpts.AccessKeyID,
			svcOpts.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := svcOpts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for compatibility with MinIO/Localstack
		if svcOpts.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	svc, err := storageS3.NewService(ctx, storageS3.Config{
		Name:      name,
		Client:    client,
		Bucket:    svcOpts.Bucket,
		KeyPrefix: svcOpts.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 storage service: %w", err)
	}

	logger.Info("s3 storage service %q initialized: bucket=%s, region=%s, prefix=%s",
		name, svcOpts.Bucket, svcOpts.Region, svcOpts.KeyPrefix)

	return svc, nil
}

// CreateEventDispatcher creates the event dispatcher with every configured
// sink. With no sinks configured delivery is disabled and nil is returned.
func CreateEventDispatcher(cfg *EventsConfig) (*event.Dispatcher, error) {
	if len(cfg.Sinks) == 0 {
		return nil, nil
	}

	sinks := make([]event.Sink, 0, len(cfg.Sinks))
	for i, sinkCfg := range cfg.Sinks {
		sink, err := createEventSink(&sinkCfg)
		if err != nil {
			return nil, fmt.Errorf("events.sinks[%d] (%s): %w", i, sinkCfg.Name, err)
		}
		sinks = append(sinks, sink)
	}

	return event.NewDispatcher(sinks...), nil
}

// createEventSink creates one event sink based on its type.
func createEventSink(cfg *EventSinkConfig) (event.Sink, error) {
	switch cfg.Type {
	case "log":
		return event.NewLogSink(cfg.Name), nil
	case "webhook":
		return createWebhookSink(cfg.Name, cfg.Options)
	default:
		return nil, fmt.Errorf("unknown event sink type: %q (supported: log, webhook)", cfg.Type)
	}
}

// createWebhookSink creates a webhook event sink.
func createWebhookSink(name string, options map[string]any) (event.Sink, error) {
	type WebhookSinkOptions struct {
		URL     string            `mapstructure:"url"`
		Headers map[string]string `mapstructure:"headers"`
	}

	var sinkOpts WebhookSinkOptions
	if err := mapstructure.Decode(options, &sinkOpts); err != nil {
		return nil, fmt.Errorf("failed to decode webhook sink options: %w", err)
	}

	if sinkOpts.URL == "" {
		return nil, fmt.Errorf("webhook sink: url is required")
	}

	return event.NewWebhookSink(name, sinkOpts.URL, sinkOpts.Headers), nil
}

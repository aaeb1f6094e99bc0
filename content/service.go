package content

import (
	"context"
	"time"

	"github.com/dfe-analytical-services/ees-cache/cache"
	"github.com/dfe-analytical-services/ees-cache/logger"
	"github.com/google/uuid"
)

// TreeSource builds the publication tree from the system of record.
type TreeSource interface {
	PublicationTree(ctx context.Context) (PublicationTree, error)
}

// TreeSourceFunc adapts a function to a TreeSource.
type TreeSourceFunc func(ctx context.Context) (PublicationTree, error)

func (f TreeSourceFunc) PublicationTree(ctx context.Context) (PublicationTree, error) {
	return f(ctx)
}

// DefaultTreeMemoryPolicy keeps the tree in memory until the next half
// hour boundary, or ten minutes, whichever comes first.
var DefaultTreeMemoryPolicy = cache.ExpiryPolicy{Duration: 10 * time.Minute, Schedule: cache.ScheduleHalfHourly}

type serviceConfig struct {
	logger       logger.Logger
	memoryPolicy cache.ExpiryPolicy
	memoryName   string
	blobName     string
}

type ServiceOption func(*serviceConfig)

func WithServiceLogger(log logger.Logger) ServiceOption {
	return func(c *serviceConfig) { c.logger = log }
}

// WithTreeMemoryPolicy replaces DefaultTreeMemoryPolicy. Memory overrides
// configured on the dispatcher still apply on top.
func WithTreeMemoryPolicy(policy cache.ExpiryPolicy) ServiceOption {
	return func(c *serviceConfig) { c.memoryPolicy = policy }
}

// WithServiceNames selects registered services other than the defaults.
func WithServiceNames(memory, blob string) ServiceOption {
	return func(c *serviceConfig) {
		c.memoryName = memory
		c.blobName = blob
	}
}

// Service serves cached public content.
type Service struct {
	dispatcher *cache.Dispatcher
	source     TreeSource
	logger     logger.Logger
	blobName   string

	treeMemory  *cache.MemoryDirective[MemoryKey]
	treeBlob    *cache.BlobDirective[BlobKey]
	forceMemory *cache.MemoryDirective[MemoryKey]
	forceBlob   *cache.BlobDirective[BlobKey]
}

// NewService returns a Service reading through d. It fails only when the
// memory policy is invalid.
func NewService(d *cache.Dispatcher, source TreeSource, opts ...ServiceOption) (*Service, error) {
	cfg := serviceConfig{memoryPolicy: DefaultTreeMemoryPolicy}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.NewConsoleLogger(logger.LevelInfo)
	}
	treeMemory, err := cache.NewMemoryDirective[MemoryKey](cfg.memoryPolicy,
		cache.WithServiceName(cfg.memoryName), cache.WithPriority(1), cache.WithOverridable())
	if err != nil {
		return nil, err
	}
	forceMemory, err := cache.NewMemoryDirective[MemoryKey](cfg.memoryPolicy,
		cache.WithServiceName(cfg.memoryName), cache.WithPriority(1), cache.WithOverridable(), cache.WithForceUpdate())
	if err != nil {
		return nil, err
	}
	return &Service{
		dispatcher:  d,
		source:      source,
		logger:      cfg.logger.WithPrefix("[content]"),
		blobName:    cfg.blobName,
		treeMemory:  treeMemory,
		treeBlob:    cache.MustBlobDirective[BlobKey](cache.WithServiceName(cfg.blobName)),
		forceMemory: forceMemory,
		forceBlob:   cache.MustBlobDirective[BlobKey](cache.WithServiceName(cfg.blobName), cache.WithForceUpdate()),
	}, nil
}

// GetPublicationTree returns the tree from memory, then blob storage, then
// the source, filling whichever caches missed.
func (s *Service) GetPublicationTree(ctx context.Context) (PublicationTree, error) {
	return cache.Exec(ctx, s.dispatcher, s.source.PublicationTree,
		s.treeMemory.For(ThemesMemoryKey()),
		s.treeBlob.For(PublicationTreeKey()),
	)
}

// UpdatePublicationTree rebuilds the tree from the source and overwrites
// both caches with it.
func (s *Service) UpdatePublicationTree(ctx context.Context) (PublicationTree, error) {
	tree, err := cache.Exec(ctx, s.dispatcher, s.source.PublicationTree,
		s.forceMemory.For(ThemesMemoryKey()),
		s.forceBlob.For(PublicationTreeKey()),
	)
	if err != nil {
		return PublicationTree{}, err
	}
	s.logger.Info("publication tree rebuilt with %d themes and %d publications", len(tree.Themes), tree.PublicationCount())
	return tree, nil
}

// InvalidateRelease removes everything cached for a release version. It is
// a no-op when no blob service is registered.
func (s *Service) InvalidateRelease(ctx context.Context, releaseID uuid.UUID) error {
	folder, err := ReleaseContentFolderKey(releaseID)
	if err != nil {
		return err
	}
	svc, ok := s.dispatcher.Blob().Service(s.blobName)
	if !ok {
		s.logger.Debug("no blob service %q, nothing to invalidate for release %s", s.blobName, releaseID)
		return nil
	}
	if err := svc.DeleteCacheFolder(ctx, folder); err != nil {
		return err
	}
	s.logger.Info("invalidated cached content for release %s", releaseID)
	return nil
}

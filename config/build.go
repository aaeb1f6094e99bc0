package config

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dfe-analytical-services/ees-cache/blobstore"
	"github.com/dfe-analytical-services/ees-cache/cache"
	"github.com/dfe-analytical-services/ees-cache/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultContainers are the buckets created for a minio service with
// createBuckets set and no explicit containers.
var DefaultContainers = []cache.Container{
	cache.ContainerCache,
	cache.ContainerPublicContent,
	cache.ContainerPrivateContent,
	cache.ContainerPublicReleaseFiles,
}

type closers struct {
	once sync.Once
	fns  []func() error
	err  error
}

func (c *closers) add(fn func() error) { c.fns = append(c.fns, fn) }

// Close releases everything Build opened, in reverse order.
func (c *closers) Close() error {
	c.once.Do(func() {
		for i := len(c.fns) - 1; i >= 0; i-- {
			c.err = errors.CombineErrors(c.err, c.fns[i]())
		}
	})
	return c.err
}

// Build creates a dispatcher with every configured service registered and
// the memory override applied. The closer stops memory sweepers and closes
// storage clients; it is safe to call more than once.
func Build(ctx context.Context, cfg *Config, log logger.Logger, opts ...cache.DispatcherOption) (*cache.Dispatcher, io.Closer, error) {
	if log == nil {
		log = logger.NewConsoleLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	opts = append([]cache.DispatcherOption{
		cache.WithLogger(log),
		cache.WithEnabled(cfg.Caching.IsEnabled()),
	}, opts...)
	d := cache.NewDispatcher(opts...)
	c := &closers{}

	for _, svc := range cfg.Caching.Memory.Services {
		var memOpts []cache.MemoryOption
		if svc.CleanupInterval != nil {
			memOpts = append(memOpts, cache.WithCleanupInterval(svc.CleanupInterval.Std()))
		}
		if svc.Shards > 0 {
			memOpts = append(memOpts, cache.WithShards(svc.Shards))
		}
		memory := cache.NewMemory(memOpts...)
		c.add(memory.Close)
		if err := d.Memory().AddService(svc.Name, memory); err != nil {
			_ = c.Close()
			return nil, nil, err
		}
		log.Debug("registered memory service %q", serviceName(svc.Name))
	}

	for _, svc := range cfg.Caching.Blob.Services {
		storage, err := openStorage(ctx, svc, c)
		if err != nil {
			_ = c.Close()
			return nil, nil, errors.Wrapf(err, "config: blob service %q", serviceName(svc.Name))
		}
		codec, err := cache.CodecByName(svc.Codec)
		if err != nil {
			_ = c.Close()
			return nil, nil, err
		}
		blobOpts := []cache.BlobOption{cache.WithCodec(codec), cache.WithBlobLogger(log)}
		if svc.MaxItemSize > 0 {
			blobOpts = append(blobOpts, cache.WithMaxItemSize(int64(svc.MaxItemSize)))
		}
		if err := d.Blob().AddService(svc.Name, cache.NewBlob(storage, blobOpts...)); err != nil {
			_ = c.Close()
			return nil, nil, err
		}
		log.Debug("registered %s blob service %q using %s", strings.ToLower(svc.Type), serviceName(svc.Name), codec.Name())
	}

	if ov := cfg.Caching.Overrides.MemoryCache; ov != nil {
		if err := d.Overrides().SetMemory(*ov); err != nil {
			_ = c.Close()
			return nil, nil, err
		}
	}
	if !d.Enabled() {
		log.Info("caching disabled, every call goes to its source")
	}
	return d, c, nil
}

// openStorage returns the storage for svc. Remote storage is wrapped with
// retries and a circuit breaker.
func openStorage(ctx context.Context, svc BlobService, c *closers) (blobstore.Storage, error) {
	switch strings.ToLower(svc.Type) {
	case BlobTypeMemory:
		return blobstore.NewMemory(), nil
	case BlobTypeRedis:
		opts, err := redis.ParseURL(svc.URL)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "invalid redis url"), cache.ErrConfiguration)
		}
		client := redis.NewClient(opts)
		c.add(client.Close)
		redisOpts := []blobstore.RedisOption{blobstore.WithRedisPrefix(svc.Prefix)}
		if svc.QueryTimeout > 0 {
			redisOpts = append(redisOpts, blobstore.WithRedisQueryTimeout(svc.QueryTimeout.Std()))
		}
		storage := blobstore.NewRedis(client, redisOpts...)
		return blobstore.NewResilient(storage, svc.resilience()), nil
	case BlobTypeMinio:
		storage, err := blobstore.NewMinio(blobstore.MinioConfig{
			Endpoint:     svc.Endpoint,
			AccessKey:    svc.AccessKey,
			SecretKey:    svc.SecretKey,
			UseSSL:       svc.UseSSL,
			Region:       svc.Region,
			BucketPrefix: svc.Prefix,
			QueryTimeout: svc.QueryTimeout.Std(),
		})
		if err != nil {
			return nil, err
		}
		if svc.CreateBuckets {
			containers := svc.Containers
			if len(containers) == 0 {
				for _, container := range DefaultContainers {
					containers = append(containers, container.String())
				}
			}
			if err := storage.EnsureBuckets(ctx, containers...); err != nil {
				return nil, err
			}
		}
		return blobstore.NewResilient(storage, svc.resilience()), nil
	}
	return nil, invalidf("unknown type %q", svc.Type)
}

func (s BlobService) resilience() blobstore.ResilientConfig {
	rc := blobstore.DefaultResilientConfig()
	b := s.Breaker
	if b.MaxFailures > 0 {
		rc.Breaker.MaxFailures = b.MaxFailures
	}
	if b.ResetTimeout > 0 {
		rc.Breaker.ResetTimeout = b.ResetTimeout.Std()
	}
	if b.HalfOpenRequests > 0 {
		rc.Breaker.HalfOpenRequests = b.HalfOpenRequests
	}
	if b.SuccessThreshold > 0 {
		rc.Breaker.SuccessThreshold = b.SuccessThreshold
	}
	if b.RequestTimeout > 0 {
		rc.Breaker.RequestTimeout = b.RequestTimeout.Std()
	}
	r := s.Retry
	switch {
	case r.Disabled:
		rc.Retry.MaxRetries = 0
	case r.MaxRetries > 0:
		rc.Retry.MaxRetries = r.MaxRetries
	}
	if r.InitialBackoff > 0 {
		rc.Retry.InitialBackoff = r.InitialBackoff.Std()
	}
	if r.MaxBackoff > 0 {
		rc.Retry.MaxBackoff = r.MaxBackoff.Std()
	}
	return rc
}

package blobstore

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	fieldValue       = "v"
	fieldContentType = "ct"
	fieldStoredAt    = "at"
	fieldExpiresAt   = "exp"

	defaultScanCount         = 500
	defaultDeleteConcurrency = 4
)

// Redis stores each blob as a hash. Blobs with an expiry also carry a native
// key TTL so Redis reclaims them without a sweeper.
type Redis struct {
	client            *redis.Client
	prefix            string
	queryTimeout      time.Duration
	scanCount         int64
	deleteConcurrency int
}

var _ Storage = (*Redis)(nil)

// RedisOption configures a Redis storage.
type RedisOption func(*Redis)

// WithRedisPrefix namespaces every key, so several environments can share
// one Redis instance.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithRedisQueryTimeout sets the per-operation timeout. Defaults to
// DefaultQueryTimeout.
func WithRedisQueryTimeout(d time.Duration) RedisOption {
	return func(r *Redis) { r.queryTimeout = d }
}

// WithScanCount sets the SCAN batch hint used by DeletePrefix, which is also
// the size of each DEL batch.
func WithScanCount(n int64) RedisOption {
	return func(r *Redis) { r.scanCount = n }
}

// NewRedis returns a Storage backed by Redis.
// The caller owns the redis.Client lifecycle.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client:            client,
		queryTimeout:      DefaultQueryTimeout,
		scanCount:         defaultScanCount,
		deleteConcurrency: defaultDeleteConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.scanCount <= 0 {
		r.scanCount = defaultScanCount
	}
	return r
}

func (r *Redis) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, r.queryTimeout)
}

func (r *Redis) key(container, path string) string {
	if r.prefix == "" {
		return container + ":" + path
	}
	return r.prefix + ":" + container + ":" + path
}

func (r *Redis) Put(ctx context.Context, container, path string, data []byte, meta Metadata) error {
	fields := []any{
		fieldValue, data,
		fieldContentType, meta.ContentType,
		fieldStoredAt, formatTime(meta.StoredAt),
	}
	if meta.ExpiresAt != nil {
		fields = append(fields, fieldExpiresAt, formatTime(*meta.ExpiresAt))
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	k := r.key(container, path)
	pipe := r.client.TxPipeline()
	pipe.Del(qctx, k)
	pipe.HSet(qctx, k, fields...)
	if meta.ExpiresAt != nil {
		pipe.PExpireAt(qctx, k, *meta.ExpiresAt)
	}
	if _, err := pipe.Exec(qctx); err != nil {
		return errors.Wrapf(err, "redis put %s", k)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, container, path string) ([]byte, Metadata, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	k := r.key(container, path)
	fields, err := r.client.HGetAll(qctx, k).Result()
	if err != nil {
		return nil, Metadata{}, errors.Wrapf(err, "redis get %s", k)
	}
	value, ok := fields[fieldValue]
	if !ok {
		return nil, Metadata{}, ErrNotFound
	}
	meta := Metadata{ContentType: fields[fieldContentType]}
	if at := fields[fieldStoredAt]; at != "" {
		if meta.StoredAt, err = parseTime(at); err != nil {
			return nil, Metadata{}, errors.Wrapf(err, "redis get %s", k)
		}
	}
	if exp := fields[fieldExpiresAt]; exp != "" {
		expiresAt, err := parseTime(exp)
		if err != nil {
			return nil, Metadata{}, errors.Wrapf(err, "redis get %s", k)
		}
		meta.ExpiresAt = &expiresAt
	}
	return []byte(value), meta, nil
}

func (r *Redis) Delete(ctx context.Context, container, path string) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	k := r.key(container, path)
	if err := r.client.Del(qctx, k).Err(); err != nil {
		return errors.Wrapf(err, "redis delete %s", k)
	}
	return nil
}

// DeletePrefix scans for matching keys and deletes them in batches, with up
// to four DEL commands in flight. Each DEL gets its own query timeout; the
// scan itself is bounded only by ctx.
func (r *Redis) DeletePrefix(ctx context.Context, container, prefix string) error {
	pattern := escapeGlob(r.key(container, prefix)) + "*"
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.deleteConcurrency)
	flush := func(keys []string) {
		g.Go(func() error {
			qctx, cancel := r.queryCtx(gctx)
			defer cancel()
			if err := r.client.Del(qctx, keys...).Err(); err != nil {
				return errors.Wrapf(err, "redis delete %d keys matching %s", len(keys), pattern)
			}
			return nil
		})
	}

	batch := make([]string, 0, r.scanCount)
	iter := r.client.Scan(gctx, 0, pattern, r.scanCount).Iterator()
	for iter.Next(gctx) {
		batch = append(batch, iter.Val())
		if int64(len(batch)) >= r.scanCount {
			flush(batch)
			batch = make([]string, 0, r.scanCount)
		}
	}
	if len(batch) > 0 {
		flush(batch)
	}
	scanErr := iter.Err()
	if err := g.Wait(); err != nil {
		return err
	}
	if scanErr != nil {
		return errors.Wrapf(scanErr, "redis scan %s", pattern)
	}
	return nil
}

// escapeGlob escapes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
